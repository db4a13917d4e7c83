package limiters

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/guildworks/idcore/internal/rate"
)

func TestRecoveryLimiterPerEmail(t *testing.T) {
	limiter := NewRecoveryLimiter(rate.NewMemoryStore(), RecoveryConfig{
		MaxPerEmail:  2,
		MaxPerOrigin: 100,
		Window:       time.Minute,
		Lockout:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		blocked, err := limiter.Acquire(ctx, "lena@example.com", "10.0.0.1")
		if err != nil {
			t.Fatalf("acquire %d: %v", i+1, err)
		}
		if blocked {
			t.Fatalf("acquire %d blocked within budget", i+1)
		}
	}

	blocked, err := limiter.Acquire(ctx, "lena@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("breaching acquire: %v", err)
	}
	if !blocked {
		t.Fatal("expected block past the per-email budget")
	}

	// A different email from the same origin stays under its own budget.
	blocked, err = limiter.Acquire(ctx, "kim@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("other email: %v", err)
	}
	if blocked {
		t.Fatal("per-email budgets must be independent")
	}
}

func TestRecoveryLimiterPerOrigin(t *testing.T) {
	limiter := NewRecoveryLimiter(rate.NewMemoryStore(), RecoveryConfig{
		MaxPerEmail:  100,
		MaxPerOrigin: 3,
		Window:       time.Minute,
		Lockout:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		email := fmt.Sprintf("member%d@example.com", i)
		blocked, err := limiter.Acquire(ctx, email, "10.0.0.1")
		if err != nil {
			t.Fatalf("acquire %d: %v", i+1, err)
		}
		if blocked {
			t.Fatalf("acquire %d blocked within budget", i+1)
		}
	}

	blocked, err := limiter.Acquire(ctx, "another@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("breaching acquire: %v", err)
	}
	if !blocked {
		t.Fatal("expected block past the per-origin budget")
	}

	blocked, err = limiter.Acquire(ctx, "another@example.com", "10.0.0.2")
	if err != nil {
		t.Fatalf("other origin: %v", err)
	}
	if blocked {
		t.Fatal("per-origin budgets must be independent")
	}
}

func TestRecoveryLimiterCountsBothKeysWhenBlocked(t *testing.T) {
	limiter := NewRecoveryLimiter(rate.NewMemoryStore(), RecoveryConfig{
		MaxPerEmail:  1,
		MaxPerOrigin: 4,
		Window:       time.Minute,
		Lockout:      time.Minute,
	})
	ctx := context.Background()

	// Hammer one email: the origin counter must keep advancing even while
	// the email key is already blocked.
	for i := 0; i < 5; i++ {
		if _, err := limiter.Acquire(ctx, "lena@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("acquire %d: %v", i+1, err)
		}
	}

	blocked, err := limiter.Acquire(ctx, "fresh@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("fresh email: %v", err)
	}
	if !blocked {
		t.Fatal("origin budget should be spent by the hammered email")
	}
}

func TestRecoveryLimiterEmptyOrigin(t *testing.T) {
	limiter := NewRecoveryLimiter(rate.NewMemoryStore(), RecoveryConfig{
		MaxPerEmail:  1,
		MaxPerOrigin: 1,
		Window:       time.Minute,
		Lockout:      time.Minute,
	})
	ctx := context.Background()

	blocked, err := limiter.Acquire(ctx, "lena@example.com", "")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if blocked {
		t.Fatal("first acquire blocked")
	}
}

func TestLoginLimiterLifecycle(t *testing.T) {
	limiter := NewLoginLimiter(rate.NewMemoryStore(), LoginConfig{
		Enabled:     true,
		MaxAttempts: 2,
		Window:      time.Minute,
		Lockout:     time.Minute,
	})
	ctx := context.Background()

	if err := limiter.Check(ctx, "lena@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("initial check: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := limiter.Record(ctx, "lena@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("record %d: %v", i+1, err)
		}
	}
	// Still no lockout: the budget is spent but not breached.
	if err := limiter.Check(ctx, "lena@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("check at budget: %v", err)
	}

	if err := limiter.Record(ctx, "lena@example.com", "10.0.0.1"); !errors.Is(err, rate.ErrRateLimited) {
		t.Fatalf("breaching record: %v", err)
	}
	if err := limiter.Check(ctx, "lena@example.com", "10.0.0.1"); !errors.Is(err, rate.ErrRateLimited) {
		t.Fatalf("check after breach: %v", err)
	}

	if err := limiter.Reset(ctx, "lena@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := limiter.Check(ctx, "lena@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("check after reset: %v", err)
	}
}

func TestLoginLimiterDisabled(t *testing.T) {
	limiter := NewLoginLimiter(rate.NewMemoryStore(), LoginConfig{Enabled: false})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := limiter.Record(ctx, "lena@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := limiter.Check(ctx, "lena@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("disabled limiter must never block: %v", err)
	}
}

func TestLoginLimiterNilReceiver(t *testing.T) {
	var limiter *LoginLimiter
	ctx := context.Background()

	if err := limiter.Check(ctx, "a", "b"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := limiter.Record(ctx, "a", "b"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := limiter.Reset(ctx, "a", "b"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
}
