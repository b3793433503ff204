package ticket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("provisioning ticket not found")
	ErrExpired     = errors.New("provisioning ticket has expired")
	ErrAlreadyUsed = errors.New("provisioning ticket has already been used")
)

// Ticket is a single-use token that redeems into a scoped secret exactly
// once. The secret itself is only ever returned by Redeem.
type Ticket struct {
	Token     string
	SubjectID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store issues and redeems one-time provisioning tickets. Redeem must be
// atomic: under concurrent redemption of the same token, exactly one
// caller receives the secret.
type Store interface {
	Issue(ctx context.Context, subjectID, secret string) (*Ticket, error)
	Redeem(ctx context.Context, token string) (string, error)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate ticket token: %w", err)
	}
	return "pt_" + hex.EncodeToString(b), nil
}
