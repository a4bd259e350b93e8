package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(backendType BackendType) Config {
	return Config{
		Enabled: true,
		Type:    backendType,
		Buckets: map[string]Bucket{
			"small": {Window: time.Minute, Limit: 3},
			"big":   {Window: 15 * time.Minute, Limit: 100},
		},
		KeyPrefix:     "test:",
		MaxEntries:    100,
		CleanupPeriod: time.Minute,
	}
}

func TestLocalStore_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("admits up to the limit and denies beyond", func(t *testing.T) {
		store, err := NewLocalStore(testConfig(BackendLocal))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			allowed, err := store.Allow(ctx, "small", "client-1")
			require.NoError(t, err)
			assert.True(t, allowed)
		}

		allowed, err := store.Allow(ctx, "small", "client-1")
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("keys count independently", func(t *testing.T) {
		store, err := NewLocalStore(testConfig(BackendLocal))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			allowed, err := store.Allow(ctx, "small", "client-1")
			require.NoError(t, err)
			assert.True(t, allowed)
		}

		allowed, err := store.Allow(ctx, "small", "client-2")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("buckets count independently", func(t *testing.T) {
		store, err := NewLocalStore(testConfig(BackendLocal))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			allowed, err := store.Allow(ctx, "small", "client-1")
			require.NoError(t, err)
			assert.True(t, allowed)
		}

		allowed, err := store.Allow(ctx, "big", "client-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("window rollover resets the count", func(t *testing.T) {
		s, err := NewLocalStore(testConfig(BackendLocal))
		require.NoError(t, err)
		store := s.(*localStore)

		current := time.Date(2026, 8, 27, 10, 0, 30, 0, time.UTC)
		store.now = func() time.Time { return current }

		for i := 0; i < 3; i++ {
			allowed, err := store.Allow(ctx, "small", "client-1")
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := store.Allow(ctx, "small", "client-1")
		require.NoError(t, err)
		assert.False(t, allowed)

		// Cross into the next fixed window.
		current = current.Add(time.Minute)

		allowed, err = store.Allow(ctx, "small", "client-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("unknown bucket is an error", func(t *testing.T) {
		store, err := NewLocalStore(testConfig(BackendLocal))
		require.NoError(t, err)

		_, err = store.Allow(ctx, "nope", "client-1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown rate limit bucket")
	})

	t.Run("disabled config admits everything", func(t *testing.T) {
		config := testConfig(BackendLocal)
		config.Enabled = false

		store, err := NewLocalStore(config)
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			allowed, err := store.Allow(ctx, "small", "client-1")
			require.NoError(t, err)
			assert.True(t, allowed)
		}
	})
}

func TestLocalStore_Cleanup(t *testing.T) {
	ctx := context.Background()

	s, err := NewLocalStore(testConfig(BackendLocal))
	require.NoError(t, err)
	store := s.(*localStore)

	current := time.Date(2026, 8, 27, 10, 0, 30, 0, time.UTC)
	store.now = func() time.Time { return current }
	store.lastCleanup = current

	for i := 0; i < 50; i++ {
		_, err := store.Allow(ctx, "small", string(rune('a'+i)))
		require.NoError(t, err)
	}
	assert.Len(t, store.counters, 50)

	// Advance past the window and the cleanup period; the next call sweeps
	// every stale entry.
	current = current.Add(2 * time.Minute)
	_, err = store.Allow(ctx, "small", "fresh")
	require.NoError(t, err)

	assert.Len(t, store.counters, 1)
}

func TestLocalStore_Metadata(t *testing.T) {
	store, err := NewLocalStore(testConfig(BackendLocal))
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, store.Backend())
	assert.Equal(t, time.Minute, store.Window("small"))
	assert.Equal(t, time.Duration(0), store.Window("nope"))
	assert.NoError(t, store.Health())
}
