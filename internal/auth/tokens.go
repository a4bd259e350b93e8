package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ats-optimizer/internal/common/errors"
)

// SessionTTL is how long a signed session token stays valid.
const SessionTTL = 7 * 24 * time.Hour

// Claims is the session token payload.
type Claims struct {
	Email string `json:"email"`
	Plan  string `json:"plan"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies session tokens with a shared HMAC secret.
type TokenManager struct {
	secret []byte
	ttl    time.Duration

	// now is replaceable in tests
	now func() time.Time
}

func NewTokenManager(secret string) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &TokenManager{
		secret: []byte(secret),
		ttl:    SessionTTL,
		now:    time.Now,
	}, nil
}

// Issue signs a session token for a user.
func (m *TokenManager) Issue(userID, email, plan string) (string, error) {
	now := m.now()
	claims := Claims{
		Email: email,
		Plan:  plan,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token. Any failure, from a garbled
// token to an expired or foreign signature, comes back as Unauthenticated;
// the caller never learns which check failed.
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		appErr := errors.UnauthenticatedError("Invalid or expired session")
		appErr.Cause = err
		return nil, appErr
	}
	if !token.Valid {
		return nil, errors.UnauthenticatedError("Invalid or expired session")
	}

	return claims, nil
}
