// Package limiters wraps the generic rate limiter with per-concern key
// layouts and thresholds.
package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/guildworks/idcore/internal/rate"
)

// RecoveryConfig tunes the two independent account-recovery limiters.
type RecoveryConfig struct {
	MaxPerEmail  int
	MaxPerOrigin int
	Window       time.Duration
	Lockout      time.Duration
}

// RecoveryLimiter throttles recovery requests by submitted email and by
// requester network origin, each with its own threshold and lockout. The
// two keys are counted independently; a breach on either blocks the
// request.
type RecoveryLimiter struct {
	email  *rate.Limiter
	origin *rate.Limiter
}

// NewRecoveryLimiter creates a RecoveryLimiter over the given store.
func NewRecoveryLimiter(store rate.Store, cfg RecoveryConfig) *RecoveryLimiter {
	return &RecoveryLimiter{
		email: rate.New(store, rate.Config{
			MaxAttempts: cfg.MaxPerEmail,
			Window:      cfg.Window,
			Lockout:     cfg.Lockout,
			KeyPrefix:   "rcm",
		}),
		origin: rate.New(store, rate.Config{
			MaxAttempts: cfg.MaxPerOrigin,
			Window:      cfg.Window,
			Lockout:     cfg.Lockout,
			KeyPrefix:   "rco",
		}),
	}
}

// Acquire counts one recovery attempt against both keys and reports
// whether the request is blocked. Both counters advance even when one of
// them is already over budget, so the limits stay independent. Store
// failures propagate wrapped in rate.ErrStoreUnavailable.
func (l *RecoveryLimiter) Acquire(ctx context.Context, email, origin string) (bool, error) {
	blocked := false

	if err := l.email.Acquire(ctx, email); err != nil {
		if !errors.Is(err, rate.ErrRateLimited) {
			return false, err
		}
		blocked = true
	}

	if origin != "" {
		if err := l.origin.Acquire(ctx, origin); err != nil {
			if !errors.Is(err, rate.ErrRateLimited) {
				return false, err
			}
			blocked = true
		}
	}

	return blocked, nil
}
