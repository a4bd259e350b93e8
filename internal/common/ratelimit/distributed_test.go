package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory CounterBackend recording the keys and TTLs it
// was asked for.
type fakeBackend struct {
	mu       sync.Mutex
	counts   map[string]int64
	lastTTL  time.Duration
	lastKey  string
	failWith error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{counts: make(map[string]int64)}
}

func (f *fakeBackend) IncrementWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return 0, f.failWith
	}
	f.counts[key]++
	f.lastTTL = ttl
	f.lastKey = key
	return f.counts[key], nil
}

func (f *fakeBackend) Health() error {
	return f.failWith
}

func TestDistributedStore_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("admits up to the limit and denies beyond", func(t *testing.T) {
		backend := newFakeBackend()
		store, err := NewDistributedStore(testConfig(BackendDistributed), backend)
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

	t.Run("counter key embeds bucket, client and window start", func(t *testing.T) {
		backend := newFakeBackend()
		s, err := NewDistributedStore(testConfig(BackendDistributed), backend)
		require.NoError(t, err)
		store := s.(*distributedStore)

		now := time.Date(2026, 8, 27, 10, 0, 30, 0, time.UTC)
		store.now = func() time.Time { return now }

		_, err = store.Allow(ctx, "small", "client-1")
		require.NoError(t, err)

		windowStart := now.Truncate(time.Minute).Unix()
		assert.Equal(t, fmt.Sprintf("test:small:client-1:%d", windowStart), backend.lastKey)
		assert.Equal(t, 2*time.Minute, backend.lastTTL)
	})

	t.Run("window rollover moves to a fresh key", func(t *testing.T) {
		backend := newFakeBackend()
		s, err := NewDistributedStore(testConfig(BackendDistributed), backend)
		require.NoError(t, err)
		store := s.(*distributedStore)

		now := time.Date(2026, 8, 27, 10, 0, 30, 0, time.UTC)
		store.now = func() time.Time { return now }

		for i := 0; i < 3; i++ {
			allowed, err := store.Allow(ctx, "small", "client-1")
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := store.Allow(ctx, "small", "client-1")
		require.NoError(t, err)
		assert.False(t, allowed)

		now = now.Add(time.Minute)

		allowed, err = store.Allow(ctx, "small", "client-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("fails open when the backend is unreachable", func(t *testing.T) {
		backend := newFakeBackend()
		backend.failWith = fmt.Errorf("connection refused")

		store, err := NewDistributedStore(testConfig(BackendDistributed), backend)
		require.NoError(t, err)

		allowed, err := store.Allow(ctx, "small", "client-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("unknown bucket is an error", func(t *testing.T) {
		store, err := NewDistributedStore(testConfig(BackendDistributed), newFakeBackend())
		require.NoError(t, err)

		_, err = store.Allow(ctx, "nope", "client-1")
		assert.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "unknown rate limit bucket"))
	})

	t.Run("nil backend is rejected", func(t *testing.T) {
		_, err := NewDistributedStore(testConfig(BackendDistributed), nil)
		assert.Error(t, err)
	})
}

func TestDistributedStore_Health(t *testing.T) {
	backend := newFakeBackend()
	store, err := NewDistributedStore(testConfig(BackendDistributed), backend)
	require.NoError(t, err)

	assert.NoError(t, store.Health())
	assert.Equal(t, BackendDistributed, store.Backend())

	backend.failWith = fmt.Errorf("connection refused")
	assert.Error(t, store.Health())
}
