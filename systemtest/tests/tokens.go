package tests

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/provider"
)

func TestTokenPersistence(t *testing.T, pool *pgxpool.Pool, store credstore.Store) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		err := store.Save(ctx, credstore.Token{
			SubjectID:   "subject-2",
			Provider:    provider.SourceControl,
			AccessToken: "gho_system_test_token",
			Metadata:    map[string]string{"organization": "acme"},
		})
		require.NoError(t, err)

		token, err := store.Get(ctx, "subject-2", provider.SourceControl)
		require.NoError(t, err)
		assert.Equal(t, "gho_system_test_token", token.AccessToken)
		assert.Equal(t, "acme", token.Metadata["organization"])
	})

	t.Run("upsert replaces", func(t *testing.T) {
		err := store.Save(ctx, credstore.Token{
			SubjectID:   "subject-2",
			Provider:    provider.SourceControl,
			AccessToken: "gho_rotated_token",
		})
		require.NoError(t, err)

		token, err := store.Get(ctx, "subject-2", provider.SourceControl)
		require.NoError(t, err)
		assert.Equal(t, "gho_rotated_token", token.AccessToken)
	})

	t.Run("sealed at rest", func(t *testing.T) {
		var raw []byte
		err := pool.QueryRow(ctx,
			`SELECT access_token FROM oauth_tokens WHERE subject_id = $1 AND provider = $2`,
			"subject-2", string(provider.SourceControl)).Scan(&raw)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "gho_rotated_token")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "subject-2", provider.SourceControl))

		_, err := store.Get(ctx, "subject-2", provider.SourceControl)
		assert.ErrorIs(t, err, credstore.ErrTokenNotFound)
	})
}
