package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Config struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// Claims identifies the subject an API token acts for.
type Claims struct {
	SubjectID string `json:"subject_id"`
	jwt.RegisteredClaims
}

func GenerateToken(config Config, subjectID string) (string, error) {
	ttl := config.TokenTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	claims := Claims{
		SubjectID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ValidateToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SubjectID == "" {
		claims.SubjectID = claims.Subject
	}
	if claims.SubjectID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
