package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/forgeflow/internal/api/http/dto"
	"github.com/forgeflow/forgeflow/internal/auth"
)

func TestTicketLifecycle(t *testing.T, router *gin.Engine, authConfig auth.Config) {
	t.Run("issue requires admin key", func(t *testing.T) {
		body := dto.IssueTicketRequest{SubjectID: "subject-1"}
		rr := doJSON(router, "POST", "/api/v1/tickets", body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("issue and redeem", func(t *testing.T) {
		body := dto.IssueTicketRequest{SubjectID: "subject-1"}
		rr := doJSONWithHeader(router, "POST", "/api/v1/tickets", body, "X-API-Key", "admin-key")
		require.Equal(t, http.StatusCreated, rr.Code)

		var issued dto.IssueTicketResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &issued))
		require.NotEmpty(t, issued.Token)

		rr = doJSON(router, "POST", "/api/v1/tickets/redeem", dto.RedeemTicketRequest{Token: issued.Token})
		require.Equal(t, http.StatusOK, rr.Code)

		var redeemed dto.RedeemTicketResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &redeemed))

		claims, err := auth.ValidateToken(authConfig.Secret, redeemed.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "subject-1", claims.SubjectID)

		// The redeemed token authenticates API calls.
		rr = doJSONWithHeader(router, "POST", "/api/v1/provision",
			dto.ProvisionRequest{ProjectName: "system-test"},
			"Authorization", "Bearer "+redeemed.AccessToken)
		assert.NotEqual(t, http.StatusUnauthorized, rr.Code)

		// Second redemption is refused.
		rr = doJSON(router, "POST", "/api/v1/tickets/redeem", dto.RedeemTicketRequest{Token: issued.Token})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("redeem unknown ticket", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/tickets/redeem", dto.RedeemTicketRequest{Token: "pt_unknown"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
