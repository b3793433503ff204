package systemtest

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/forgeflow/forgeflow/internal/api/http"
	"github.com/forgeflow/forgeflow/internal/auth"
	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/db"
	"github.com/forgeflow/forgeflow/internal/oauth"
	"github.com/forgeflow/forgeflow/internal/orchestrator"
	"github.com/forgeflow/forgeflow/internal/provider"
	"github.com/forgeflow/forgeflow/internal/ticket"
	"github.com/forgeflow/forgeflow/systemtest/postgres"
	"github.com/forgeflow/forgeflow/systemtest/tests"
)

const tokenCipherKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system test in short mode")
	}

	ctx := context.Background()

	container, dbURL, err := postgres.Start(ctx)
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = postgres.Terminate(context.Background(), container)
	})

	require.NoError(t, db.RunMigrations(dbURL))

	pool, err := db.InitDB(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tokens, err := credstore.NewPostgresStore(pool, tokenCipherKey)
	require.NoError(t, err)

	authConfig := auth.Config{Secret: "system-test-secret", TokenTTL: time.Hour}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	internalhttp.SetupRoute(engine, internalhttp.Config{AdminAPIKey: "admin-key", AppRedirect: "http://localhost/connect"}, &internalhttp.Services{
		Orchestrator: orchestrator.New(provider.Registry{}, nil, nil, nil),
		Exchanger:    oauth.NewExchanger(oauth.Config{StateSecret: "state-secret"}),
		Tokens:       tokens,
		Tickets:      ticket.NewMemoryStore(time.Hour),
		Auth:         authConfig,
	})

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, engine) })
	t.Run("TicketLifecycle", func(t *testing.T) { tests.TestTicketLifecycle(t, engine, authConfig) })
	t.Run("TokenPersistence", func(t *testing.T) { tests.TestTokenPersistence(t, pool, tokens) })
}
