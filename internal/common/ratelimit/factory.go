package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"ats-optimizer/internal/common/errors"
)

// New creates a rate limit store for the configured backend. The backend is
// chosen exactly once here; call sites hold only the Store interface.
func New(config Config, backend ...CounterBackend) (Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case BackendLocal:
		return NewLocalStore(config)
	case BackendDistributed:
		if len(backend) == 0 || backend[0] == nil {
			return nil, fmt.Errorf("counter backend is required for distributed rate limiting")
		}
		return NewDistributedStore(config, backend[0])
	default:
		return nil, fmt.Errorf("unsupported rate limiter backend type: %s", config.Type)
	}
}

// HTTPMiddleware gates requests through one bucket of the store, keyed by
// keyFunc. Denied requests receive a generic 429 without any quota detail.
func HTTPMiddleware(store Store, bucket string, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := store.Allow(r.Context(), bucket, keyFunc(r))
			if err != nil {
				// A misconfigured bucket is a programming error; do not take
				// the endpoint down for it.
				allowed = true
			}

			if !allowed {
				if window := store.Window(bucket); window > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
				}
				denial := errors.RateLimitedError(bucket)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(denial.HTTPStatus())
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": denial.Message,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKey extracts the client IP address from a request for rate limiting
func IPKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// CallerKey returns a key function that derives a stable throttling key from
// whatever credential the request carries, before the credential is verified:
// bearer values and session cookies are hashed so raw secrets never become
// counter keys, and anonymous requests fall back to the client IP.
// sessionCookie names the cookie holding the session credential; passing it in
// keeps this package from hardcoding the authentication package's cookie name.
func CallerKey(sessionCookie string) func(*http.Request) string {
	return func(r *http.Request) string {
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			return "bearer:" + shortHash(strings.TrimPrefix(authHeader, "Bearer "))
		}
		if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
			return "session:" + shortHash(cookie.Value)
		}
		return "ip:" + IPKey(r)
	}
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
