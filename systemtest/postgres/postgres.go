package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Start brings up a throwaway Postgres container and returns it together
// with a ready-to-use connection string.
func Start(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithUsername("forgeflow"),
		postgres.WithPassword("forgeflow"),
		postgres.WithDatabase("forgeflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start Postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to build connection string: %w", err)
	}

	return container, dsn, nil
}

func Terminate(ctx context.Context, container *postgres.PostgresContainer) error {
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate Postgres container: %w", err)
	}
	return nil
}
