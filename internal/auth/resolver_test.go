package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/storage"
	"ats-optimizer/internal/testutil"
)

func seedKey(t *testing.T, store *testutil.MemoryStorage, quota, used int) string {
	t.Helper()

	secret, hash, prefix, err := GenerateAPIKey()
	require.NoError(t, err)

	require.NoError(t, store.CreateAPIKey(context.Background(), &storage.APIKey{
		UserID:        "user-1",
		Name:          "ci",
		KeyHash:       hash,
		Prefix:        prefix,
		Plan:          "pro",
		MonthlyQuota:  quota,
		UsedThisMonth: used,
		IsActive:      true,
	}))
	return secret
}

func keyRequest(secret string) *http.Request {
	req := httptest.NewRequest("POST", "/v1/analyze", nil)
	req.Header.Set("Authorization", "Bearer "+secret)
	return req
}

func TestResolver_Session(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStorage()
	manager := newTestTokenManager(t)
	resolver := NewResolver(manager, store)

	t.Run("valid session cookie resolves", func(t *testing.T) {
		signed, err := manager.Issue("user-1", "a@example.com", "free")
		require.NoError(t, err)

		req := httptest.NewRequest("POST", "/v1/analyze", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: signed})

		identity, err := resolver.Resolve(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, SourceSession, identity.Source)
		assert.Equal(t, "user-1", identity.UserID)
		assert.Equal(t, "a@example.com", identity.Email)
		assert.Equal(t, "free", identity.Plan)
		assert.Nil(t, identity.Key)
	})

	t.Run("no credential at all", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/analyze", nil)

		_, err := resolver.Resolve(ctx, req)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeUnauthenticated))
	})

	t.Run("bad session cookie", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/analyze", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})

		_, err := resolver.Resolve(ctx, req)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeUnauthenticated))
	})
}

func TestResolver_APIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("valid key is admitted and charged", func(t *testing.T) {
		store := testutil.NewMemoryStorage()
		resolver := NewResolver(newTestTokenManager(t), store)
		secret := seedKey(t, store, 100, 0)

		identity, err := resolver.Resolve(ctx, keyRequest(secret))
		require.NoError(t, err)
		assert.Equal(t, SourceAPIKey, identity.Source)
		assert.Equal(t, "user-1", identity.UserID)
		assert.Equal(t, "pro", identity.Plan)
		require.NotNil(t, identity.Key)
		assert.Equal(t, 1, identity.Key.UsedThisMonth)
		assert.NotNil(t, identity.Key.LastUsedAt)
	})

	t.Run("key takes precedence over a session cookie", func(t *testing.T) {
		store := testutil.NewMemoryStorage()
		manager := newTestTokenManager(t)
		resolver := NewResolver(manager, store)
		secret := seedKey(t, store, 100, 0)

		signed, err := manager.Issue("someone-else", "b@example.com", "free")
		require.NoError(t, err)

		req := keyRequest(secret)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: signed})

		identity, err := resolver.Resolve(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, SourceAPIKey, identity.Source)
	})

	t.Run("bearer without the key marker is rejected", func(t *testing.T) {
		store := testutil.NewMemoryStorage()
		resolver := NewResolver(newTestTokenManager(t), store)

		_, err := resolver.Resolve(ctx, keyRequest("some-opaque-token"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeUnauthenticated))
	})

	t.Run("unknown key reads as authentication failure", func(t *testing.T) {
		store := testutil.NewMemoryStorage()
		resolver := NewResolver(newTestTokenManager(t), store)

		_, err := resolver.Resolve(ctx, keyRequest(KeyMarker+"0000000000000000"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeUnauthenticated))
		assert.Equal(t, "Invalid API key", err.(*errors.AppError).Message)
	})

	t.Run("revoked key reads as authentication failure", func(t *testing.T) {
		store := testutil.NewMemoryStorage()
		resolver := NewResolver(newTestTokenManager(t), store)
		secret := seedKey(t, store, 100, 0)

		keys, err := store.ListAPIKeys(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, keys, 1)
		require.NoError(t, store.DeactivateAPIKey(ctx, "user-1", keys[0].ID))

		_, err = resolver.Resolve(ctx, keyRequest(secret))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeUnauthenticated))
	})

	t.Run("exhausted key is a quota denial, not an auth failure", func(t *testing.T) {
		store := testutil.NewMemoryStorage()
		resolver := NewResolver(newTestTokenManager(t), store)
		secret := seedKey(t, store, 3, 3)

		_, err := resolver.Resolve(ctx, keyRequest(secret))
		require.Error(t, err)
		require.True(t, errors.IsType(err, errors.ErrTypeQuotaExceeded))

		appErr := err.(*errors.AppError)
		assert.Equal(t, "pro", appErr.Context["plan"])
		assert.Equal(t, 3, appErr.Context["quota"])
	})

	t.Run("unlimited key never exhausts", func(t *testing.T) {
		store := testutil.NewMemoryStorage()
		resolver := NewResolver(newTestTokenManager(t), store)
		secret := seedKey(t, store, -1, 100000)

		identity, err := resolver.Resolve(ctx, keyRequest(secret))
		require.NoError(t, err)
		assert.Equal(t, 100001, identity.Key.UsedThisMonth)
	})

	t.Run("month rollover resets the counter", func(t *testing.T) {
		store := testutil.NewMemoryStorage()
		resolver := NewResolver(newTestTokenManager(t), store)

		july := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
		store.Now = func() time.Time { return july }
		secret := seedKey(t, store, 3, 0)

		for i := 0; i < 3; i++ {
			_, err := resolver.Resolve(ctx, keyRequest(secret))
			require.NoError(t, err)
		}
		_, err := resolver.Resolve(ctx, keyRequest(secret))
		require.True(t, errors.IsType(err, errors.ErrTypeQuotaExceeded))

		store.Now = func() time.Time { return july.AddDate(0, 1, 0) }

		identity, err := resolver.Resolve(ctx, keyRequest(secret))
		require.NoError(t, err)
		assert.Equal(t, 1, identity.Key.UsedThisMonth)
	})
}

func TestResolver_NoOverAdmission(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStorage()
	resolver := NewResolver(newTestTokenManager(t), store)
	secret := seedKey(t, store, 3, 2)

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := resolver.Resolve(ctx, keyRequest(secret))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted, denied := 0, 0
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.IsType(err, errors.ErrTypeQuotaExceeded):
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, admitted)
	assert.Equal(t, 4, denied)
}
