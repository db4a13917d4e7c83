package rate

import (
	"context"
	"time"
)

// Config holds limiter tuning parameters for one keyed concern.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
	// MaxLockout caps exponential lockout growth. Defaults to 16x Lockout.
	MaxLockout time.Duration
	// BreachMemory is how long consecutive breaches keep doubling the
	// lockout. Defaults to 24h.
	BreachMemory time.Duration
	KeyPrefix    string
}

// Limiter counts attempts per key within a fixed window and applies an
// exponential lockout once the budget is breached: the first breach locks
// for Lockout, each consecutive breach within BreachMemory doubles it up
// to MaxLockout.
type Limiter struct {
	store  Store
	config Config
}

// New creates a Limiter over the given store.
func New(store Store, cfg Config) *Limiter {
	if cfg.MaxLockout <= 0 {
		cfg.MaxLockout = 16 * cfg.Lockout
	}
	if cfg.BreachMemory <= 0 {
		cfg.BreachMemory = 24 * time.Hour
	}
	return &Limiter{store: store, config: cfg}
}

// Acquire counts one attempt against key. Returns ErrRateLimited when the
// key is locked out or this attempt breaches the window budget; any other
// error wraps ErrStoreUnavailable.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	blocked, err := l.store.Blocked(ctx, l.blockKey(key))
	if err != nil {
		return err
	}
	if blocked {
		return ErrRateLimited
	}

	count, err := l.store.Incr(ctx, l.attemptKey(key), l.config.Window)
	if err != nil {
		return err
	}
	if count <= int64(l.config.MaxAttempts) {
		return nil
	}

	breaches, err := l.store.Incr(ctx, l.breachKey(key), l.config.BreachMemory)
	if err != nil {
		return err
	}
	if err := l.store.SetBlock(ctx, l.blockKey(key), l.lockoutFor(breaches)); err != nil {
		return err
	}
	return ErrRateLimited
}

// Peek reports whether key is currently locked out without counting an
// attempt.
func (l *Limiter) Peek(ctx context.Context, key string) (bool, error) {
	return l.store.Blocked(ctx, l.blockKey(key))
}

// Attempts returns the current window count for key. Missing keys return
// zero and do not reveal key existence.
func (l *Limiter) Attempts(ctx context.Context, key string) (int64, error) {
	return l.store.Get(ctx, l.attemptKey(key))
}

// Reset clears attempt, breach, and lockout state for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Del(ctx, l.attemptKey(key), l.breachKey(key), l.blockKey(key))
}

func (l *Limiter) lockoutFor(breaches int64) time.Duration {
	lockout := l.config.Lockout
	for i := int64(1); i < breaches; i++ {
		lockout *= 2
		if lockout >= l.config.MaxLockout {
			return l.config.MaxLockout
		}
	}
	if lockout > l.config.MaxLockout {
		return l.config.MaxLockout
	}
	return lockout
}

func (l *Limiter) attemptKey(key string) string {
	return l.config.KeyPrefix + ":a:" + key
}

func (l *Limiter) breachKey(key string) string {
	return l.config.KeyPrefix + ":b:" + key
}

func (l *Limiter) blockKey(key string) string {
	return l.config.KeyPrefix + ":l:" + key
}
