package limiters

import (
	"context"
	"time"

	"github.com/guildworks/idcore/internal/rate"
)

// LoginConfig tunes the failed-login limiter.
type LoginConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// LoginLimiter throttles failed logins per identifier and per network
// origin. Only failures count; a successful login resets both keys.
type LoginLimiter struct {
	enabled    bool
	identifier *rate.Limiter
	origin     *rate.Limiter
}

// NewLoginLimiter creates a LoginLimiter over the given store.
func NewLoginLimiter(store rate.Store, cfg LoginConfig) *LoginLimiter {
	if !cfg.Enabled {
		return &LoginLimiter{}
	}
	return &LoginLimiter{
		enabled: true,
		identifier: rate.New(store, rate.Config{
			MaxAttempts: cfg.MaxAttempts,
			Window:      cfg.Window,
			Lockout:     cfg.Lockout,
			KeyPrefix:   "lgi",
		}),
		origin: rate.New(store, rate.Config{
			MaxAttempts: cfg.MaxAttempts,
			Window:      cfg.Window,
			Lockout:     cfg.Lockout,
			KeyPrefix:   "lgo",
		}),
	}
}

// Check reports whether the identifier or origin is currently locked out,
// without counting an attempt.
func (l *LoginLimiter) Check(ctx context.Context, identifier, origin string) error {
	if l == nil || !l.enabled {
		return nil
	}

	blocked, err := l.identifier.Peek(ctx, identifier)
	if err != nil {
		return err
	}
	if blocked {
		return rate.ErrRateLimited
	}

	if origin != "" {
		blocked, err = l.origin.Peek(ctx, origin)
		if err != nil {
			return err
		}
		if blocked {
			return rate.ErrRateLimited
		}
	}

	return nil
}

// Record counts one failed attempt for the identifier and origin.
func (l *LoginLimiter) Record(ctx context.Context, identifier, origin string) error {
	if l == nil || !l.enabled {
		return nil
	}

	if err := l.identifier.Acquire(ctx, identifier); err != nil {
		return err
	}
	if origin != "" {
		if err := l.origin.Acquire(ctx, origin); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears failure state after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, identifier, origin string) error {
	if l == nil || !l.enabled {
		return nil
	}

	if err := l.identifier.Reset(ctx, identifier); err != nil {
		return err
	}
	if origin != "" {
		return l.origin.Reset(ctx, origin)
	}
	return nil
}
