package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ats-optimizer/internal/common/logging"
)

// distributedStore implements fixed-window counting on a shared counter
// backend so that the configured limit holds across every instance serving
// traffic. The counter key embeds the window start, so a window rolls by
// moving to a fresh key; stale keys expire on their own.
type distributedStore struct {
	config  Config
	backend CounterBackend
	logger  logging.Logger

	now func() time.Time
}

// NewDistributedStore creates a shared fixed-window counter store
func NewDistributedStore(config Config, backend CounterBackend) (Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if backend == nil {
		return nil, fmt.Errorf("counter backend is required for distributed rate limiting")
	}

	return &distributedStore{
		config:  config,
		backend: backend,
		logger:  logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "ratelimit"}),
		now:     time.Now,
	}, nil
}

func (s *distributedStore) Allow(ctx context.Context, bucket, key string) (bool, error) {
	if !s.config.Enabled {
		return true, nil
	}

	b, ok := s.config.Buckets[bucket]
	if !ok {
		return false, fmt.Errorf("unknown rate limit bucket: %s", bucket)
	}

	windowStart := s.now().Truncate(b.Window).Unix()
	counterKey := s.config.KeyPrefix + bucket + ":" + key + ":" + strconv.FormatInt(windowStart, 10)

	// TTL of twice the window keeps the key alive through its own window and
	// lets the backend reclaim it afterwards.
	count, err := s.backend.IncrementWindow(ctx, counterKey, b.Window*2)
	if err != nil {
		// Throttling is approximate, not billing-grade accounting: when the
		// shared counter is unreachable the request is admitted and the
		// failure logged rather than turning a counter outage into an outage
		// of the whole API.
		s.logger.Warn("rate limit counter unavailable, admitting request",
			logging.Field{Key: "bucket", Value: bucket},
			logging.Err(err))
		return true, nil
	}

	return count <= int64(b.Limit), nil
}

func (s *distributedStore) Window(bucket string) time.Duration {
	return s.config.Buckets[bucket].Window
}

func (s *distributedStore) Backend() BackendType {
	return BackendDistributed
}

func (s *distributedStore) Health() error {
	if s.backend == nil {
		return fmt.Errorf("counter backend is nil")
	}
	return s.backend.Health()
}

var _ Store = (*distributedStore)(nil)
