package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/oauth"
	"github.com/forgeflow/forgeflow/internal/provider"
)

const appRedirect = "https://app.forgeflow.test/connect"

func newOAuthFixture(t *testing.T) (*gin.Engine, *credstore.MemoryStore) {
	t.Helper()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"sbp_token","refresh_token":"sbr_refresh","token_type":"bearer"}`))
	}))
	t.Cleanup(tokenServer.Close)

	exchanger := oauth.NewExchanger(oauth.Config{
		StateSecret: "state-secret",
		Providers: map[provider.ID]oauth.ProviderConfig{
			provider.Database: {
				ClientID:     "client-id",
				ClientSecret: "client-secret",
				AuthURL:      "https://provider.test/authorize",
				TokenURL:     tokenServer.URL + "/token",
				RedirectURL:  "https://forgeflow.test/oauth/database/callback",
			},
		},
	})

	tokens := credstore.NewMemoryStore()
	h := NewOAuthHandler(exchanger, tokens, appRedirect)

	r := gin.New()
	r.GET("/oauth/:provider/start", subjectAs("subject-1"), h.Start)
	r.GET("/oauth/:provider/callback", h.Callback)
	return r, tokens
}

func startFlow(t *testing.T, r *gin.Engine) string {
	t.Helper()

	req, _ := http.NewRequest("GET", "/oauth/database/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "provider.test", location.Host)

	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestOAuthStartAndCallback(t *testing.T) {
	r, tokens := newOAuthFixture(t)

	state := startFlow(t, r)

	req, _ := http.NewRequest("GET", "/oauth/database/callback?code=auth-code&state="+url.QueryEscape(state), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	assert.Contains(t, location, "connect=ok")
	assert.Contains(t, location, "provider=database")

	stored, err := tokens.Get(context.Background(), "subject-1", provider.Database)
	require.NoError(t, err)
	assert.Equal(t, "sbp_token", stored.AccessToken)
	assert.Equal(t, "sbr_refresh", stored.RefreshToken)
}

func TestOAuthCallbackTamperedState(t *testing.T) {
	r, tokens := newOAuthFixture(t)

	state := startFlow(t, r)
	tampered := state[:len(state)-2] + "xx"

	req, _ := http.NewRequest("GET", "/oauth/database/callback?code=auth-code&state="+url.QueryEscape(tampered), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "code=invalid_state")

	_, err := tokens.Get(context.Background(), "subject-1", provider.Database)
	assert.ErrorIs(t, err, credstore.ErrTokenNotFound)
}

func TestOAuthCallbackMissingParams(t *testing.T) {
	r, _ := newOAuthFixture(t)

	req, _ := http.NewRequest("GET", "/oauth/database/callback", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "code=invalid_state")
}

func TestOAuthStartUnknownProvider(t *testing.T) {
	r, _ := newOAuthFixture(t)

	req, _ := http.NewRequest("GET", "/oauth/payments/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOAuthStartUnconfiguredProvider(t *testing.T) {
	r, _ := newOAuthFixture(t)

	req, _ := http.NewRequest("GET", "/oauth/hosting/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "code=config_missing")
}
