// Package rate implements the attempt counting and lockout primitives
// shared by the per-concern limiters. All backends provide atomic
// increment-and-check semantics so two concurrent requests cannot both
// slip through the boundary attempt.
package rate

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimited is returned when a key is over budget or locked out.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps backend failures so callers can map them
	// to the retriable infrastructure error class.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// Store is the counter backend behind a Limiter. Implementations must be
// safe for concurrent use and must increment atomically.
type Store interface {
	// Incr increments key and applies ttl when this is the first hit in
	// the window. Returns the post-increment count.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the current count for key, zero when absent or expired.
	Get(ctx context.Context, key string) (int64, error)
	// SetBlock marks key as blocked for ttl.
	SetBlock(ctx context.Context, key string, ttl time.Duration) error
	// Blocked reports whether a block marker is active for key.
	Blocked(ctx context.Context, key string) (bool, error)
	// Del removes the given keys.
	Del(ctx context.Context, keys ...string) error
}
