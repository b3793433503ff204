package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/forgeflow/forgeflow/internal/provider"
)

var ErrTokenNotFound = errors.New("stored token not found")

// Token is an exchanged provider token keyed by (subject, provider). This
// is the durable store behind the OAuth callback and the egress proxy's
// credential lookup.
type Token struct {
	SubjectID    string
	Provider     provider.ID
	AccessToken  string
	RefreshToken string
	Metadata     map[string]string
	UpdatedAt    time.Time
}

type Store interface {
	// Save inserts or replaces the token for (subject, provider).
	Save(ctx context.Context, token Token) error
	Get(ctx context.Context, subjectID string, providerID provider.ID) (*Token, error)
	Delete(ctx context.Context, subjectID string, providerID provider.ID) error
}
