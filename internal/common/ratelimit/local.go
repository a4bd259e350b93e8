package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// localStore implements fixed-window counting in process memory. Under a
// multi-instance deployment each instance counts independently, which
// multiplies the effective limit by the instance count; callers surface that
// at startup (see the factory) rather than silently accepting it.
type localStore struct {
	mu          sync.Mutex
	config      Config
	counters    map[string]*windowEntry
	lastCleanup time.Time

	// now is replaceable in tests to cross window boundaries
	now func() time.Time
}

type windowEntry struct {
	windowStart time.Time
	window      time.Duration
	count       int
}

// NewLocalStore creates a process-local fixed-window counter store
func NewLocalStore(config Config) (Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &localStore{
		config:      config,
		counters:    make(map[string]*windowEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}, nil
}

func (s *localStore) Allow(ctx context.Context, bucket, key string) (bool, error) {
	if !s.config.Enabled {
		return true, nil
	}

	b, ok := s.config.Buckets[bucket]
	if !ok {
		return false, fmt.Errorf("unknown rate limit bucket: %s", bucket)
	}

	now := s.now()
	windowStart := now.Truncate(b.Window)
	counterKey := bucket + "\x00" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastCleanup) > s.config.CleanupPeriod || len(s.counters) > s.config.MaxEntries {
		s.cleanup(now)
	}

	entry, exists := s.counters[counterKey]
	if !exists || !entry.windowStart.Equal(windowStart) {
		entry = &windowEntry{windowStart: windowStart, window: b.Window}
		s.counters[counterKey] = entry
	}

	if entry.count >= b.Limit {
		return false, nil
	}
	entry.count++
	return true, nil
}

// cleanup removes counters whose window has already rolled. Caller holds mu.
func (s *localStore) cleanup(now time.Time) {
	for key, entry := range s.counters {
		if now.After(entry.windowStart.Add(entry.window)) {
			delete(s.counters, key)
		}
	}
	s.lastCleanup = now
}

func (s *localStore) Window(bucket string) time.Duration {
	return s.config.Buckets[bucket].Window
}

func (s *localStore) Backend() BackendType {
	return BackendLocal
}

// Health always succeeds: the local store has no external dependency
func (s *localStore) Health() error {
	return nil
}

var _ Store = (*localStore)(nil)
