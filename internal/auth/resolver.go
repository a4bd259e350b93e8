package auth

import (
	"context"
	"net/http"
	"strings"

	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/storage"
)

// Source identifies which credential path authenticated a request.
type Source string

const (
	SourceSession Source = "session"
	SourceAPIKey  Source = "api_key"
)

// Identity is the resolved caller of a metered request.
type Identity struct {
	UserID string
	Email  string
	Plan   string
	Source Source

	// Key is set on the api_key path only. Its usage counters reflect the
	// state after this request's unit was charged.
	Key *storage.APIKey
}

// Resolver authenticates metered requests from either credential type. The
// api_key path also charges quota: admission happens inside a single
// conditional storage update, so resolution and charging cannot be split by a
// concurrent request.
type Resolver struct {
	tokens  *TokenManager
	storage storage.Storage
}

func NewResolver(tokens *TokenManager, store storage.Storage) *Resolver {
	return &Resolver{
		tokens:  tokens,
		storage: store,
	}
}

// Resolve authenticates a request. A bearer credential carrying the key
// marker takes the api_key path regardless of any session cookie on the same
// request; a bearer credential without the marker is rejected outright rather
// than falling through to the cookie.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Identity, error) {
	if authHeader := req.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		secret := strings.TrimPrefix(authHeader, "Bearer ")
		if !strings.HasPrefix(secret, KeyMarker) {
			return nil, errors.UnauthenticatedError("Invalid API key")
		}
		return r.resolveAPIKey(ctx, secret)
	}

	cookie, err := req.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, errors.UnauthenticatedError("Authentication required")
	}

	claims, err := r.tokens.Verify(cookie.Value)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Plan:   claims.Plan,
		Source: SourceSession,
	}, nil
}

func (r *Resolver) resolveAPIKey(ctx context.Context, secret string) (*Identity, error) {
	keyHash := HashSecret(secret)

	// Look the key up before admission so an unknown or revoked key reads as
	// an authentication failure, not a quota denial.
	key, err := r.storage.GetActiveKeyByHash(ctx, keyHash)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			return nil, errors.UnauthenticatedError("Invalid API key")
		}
		return nil, err
	}

	admitted, err := r.storage.AdmitAPIKey(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if admitted == nil {
		return nil, errors.QuotaExceededError(key.Plan, key.MonthlyQuota)
	}

	return &Identity{
		UserID: admitted.UserID,
		Plan:   admitted.Plan,
		Source: SourceAPIKey,
		Key:    admitted,
	}, nil
}
