package ratelimit

import (
	"fmt"
	"time"
)

// Well-known bucket names. Each bucket is an independent fixed-window counter
// namespace with its own window size and limit.
const (
	// BucketGeneral throttles all traffic per client IP.
	BucketGeneral = "general"
	// BucketAnalyze throttles the analysis endpoint per caller identity.
	BucketAnalyze = "analyze"
	// BucketAuth throttles credential-handling endpoints per client IP.
	BucketAuth = "auth"
)

// BackendType defines the rate limiter backend
type BackendType string

const (
	BackendLocal       BackendType = "local"
	BackendDistributed BackendType = "distributed"
)

// Bucket holds the fixed window and limit for one counter namespace
type Bucket struct {
	Window time.Duration `json:"window"`
	Limit  int           `json:"limit"`
}

// Config represents rate limiter configuration
type Config struct {
	Enabled bool        `json:"enabled"`
	Type    BackendType `json:"type"`

	// Buckets maps bucket names to their window configuration
	Buckets map[string]Bucket `json:"buckets"`

	// Distributed backend settings
	KeyPrefix string `json:"key_prefix,omitempty"`

	// Bound and cleanup settings for the local backend
	MaxEntries    int           `json:"max_entries,omitempty"`
	CleanupPeriod time.Duration `json:"cleanup_period,omitempty"`
}

// DefaultBuckets returns the production bucket set: 200 requests per 15
// minutes for general traffic, 15 per minute for analysis, 20 per 15 minutes
// for authentication attempts.
func DefaultBuckets() map[string]Bucket {
	return map[string]Bucket{
		BucketGeneral: {Window: 15 * time.Minute, Limit: 200},
		BucketAnalyze: {Window: time.Minute, Limit: 15},
		BucketAuth:    {Window: 15 * time.Minute, Limit: 20},
	}
}

// DefaultConfig returns a default rate limiter configuration
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Type:          BackendLocal,
		Buckets:       DefaultBuckets(),
		KeyPrefix:     "ratelimit:",
		MaxEntries:    10000,
		CleanupPeriod: 5 * time.Minute,
	}
}

// Validate validates the rate limiter configuration and fills in defaults
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // No validation needed if disabled
	}

	if c.Type == "" {
		c.Type = BackendLocal
	}

	if len(c.Buckets) == 0 {
		c.Buckets = DefaultBuckets()
	}
	for name, b := range c.Buckets {
		if b.Window <= 0 {
			return fmt.Errorf("bucket %q: window must be positive", name)
		}
		if b.Limit <= 0 {
			return fmt.Errorf("bucket %q: limit must be positive", name)
		}
	}

	switch c.Type {
	case BackendLocal:
		if c.MaxEntries <= 0 {
			c.MaxEntries = 10000
		}
		if c.CleanupPeriod <= 0 {
			c.CleanupPeriod = 5 * time.Minute
		}
	case BackendDistributed:
		if c.KeyPrefix == "" {
			c.KeyPrefix = "ratelimit:"
		}
	default:
		return fmt.Errorf("unsupported rate limiter backend type: %s", c.Type)
	}

	return nil
}
