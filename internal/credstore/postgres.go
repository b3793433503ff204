package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgeflow/forgeflow/internal/provider"
)

// PostgresStore persists exchanged tokens with both token values sealed by
// the deployment cipher before they reach the database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cipher *tokenCipher
}

func NewPostgresStore(pool *pgxpool.Pool, encryptionKey string) (*PostgresStore, error) {
	cipher, err := newTokenCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, cipher: cipher}, nil
}

func (s *PostgresStore) Save(ctx context.Context, token Token) error {
	accessSealed, err := s.cipher.seal(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}
	refreshSealed, err := s.cipher.seal(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO oauth_tokens (subject_id, provider, access_token, refresh_token, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (subject_id, provider)
		DO UPDATE SET access_token = $3, refresh_token = $4, metadata = $5, updated_at = now()`,
		token.SubjectID, string(token.Provider), accessSealed, refreshSealed, token.Metadata)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, subjectID string, providerID provider.ID) (*Token, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, metadata, updated_at
		FROM oauth_tokens
		WHERE subject_id = $1 AND provider = $2`,
		subjectID, string(providerID))

	token := Token{SubjectID: subjectID, Provider: providerID}
	var accessSealed, refreshSealed []byte
	if err := row.Scan(&accessSealed, &refreshSealed, &token.Metadata, &token.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	var err error
	if token.AccessToken, err = s.cipher.open(accessSealed); err != nil {
		return nil, err
	}
	if token.RefreshToken, err = s.cipher.open(refreshSealed); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *PostgresStore) Delete(ctx context.Context, subjectID string, providerID provider.ID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM oauth_tokens WHERE subject_id = $1 AND provider = $2`,
		subjectID, string(providerID))
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
