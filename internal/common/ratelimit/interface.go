package ratelimit

import (
	"context"
	"time"
)

// Store is the pluggable fixed-window counter behind every rate-limited
// endpoint. Call sites never branch on which backend is active: the decision
// is made once at process start by configuration.
type Store interface {
	// Allow records one request for (bucket, key) in the current window and
	// reports whether the request is admitted. The count and the decision are
	// a single operation; two concurrent callers cannot both observe the same
	// pre-increment count.
	Allow(ctx context.Context, bucket, key string) (bool, error)

	// Window returns the configured window size for a bucket, or zero when
	// the bucket is unknown.
	Window(bucket string) time.Duration

	// Backend reports which backend serves this store.
	Backend() BackendType

	// Health checks that the backing counter is reachable.
	Health() error
}

// CounterBackend is the minimal shared-counter interface needed by the
// distributed store. It is implemented by the Redis client.
type CounterBackend interface {
	// IncrementWindow atomically increments the counter at key, setting its
	// expiry to ttl, and returns the post-increment count.
	IncrementWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Health() error
}
