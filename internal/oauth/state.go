package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forgeflow/forgeflow/internal/provider"
)

// StateTTL bounds how long a signed state token stays redeemable. Age is
// checked against the issued-at claim at verification time; an old token
// is rejected even when its signature verifies.
const StateTTL = 10 * time.Minute

var (
	ErrInvalidState = errors.New("invalid oauth state")
	ErrStateExpired = errors.New("oauth state expired")
)

type stateClaims struct {
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// State carries the payload round-tripped through the provider redirect.
type State struct {
	Provider  provider.ID
	SubjectID string
	IssuedAt  time.Time
}

func signState(secret []byte, providerID provider.ID, subjectID string, now time.Time) (string, error) {
	claims := stateClaims{
		Provider: string(providerID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subjectID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

func verifyState(secret []byte, raw string, now time.Time) (State, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	if claims.IssuedAt == nil || claims.Subject == "" {
		return State{}, fmt.Errorf("%w: missing claims", ErrInvalidState)
	}
	providerID, err := provider.ParseID(claims.Provider)
	if err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	issuedAt := claims.IssuedAt.Time
	if now.Sub(issuedAt) > StateTTL {
		return State{}, fmt.Errorf("%w: issued %s ago", ErrStateExpired, now.Sub(issuedAt).Round(time.Second))
	}

	return State{
		Provider:  providerID,
		SubjectID: claims.Subject,
		IssuedAt:  issuedAt,
	}, nil
}
