package idcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecoveryResetFlow(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	h.seedIdentity(t, "lena@example.com", "old-password-123", nil)

	if err := h.engine.RequestRecovery(ctx, "lena@example.com"); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}

	sent := h.notifier.waitFor(t, 1)
	notif := sent[0]
	if notif.Kind != NotificationPasswordReset {
		t.Fatalf("kind = %q, want %q", notif.Kind, NotificationPasswordReset)
	}
	if notif.Email != "lena@example.com" {
		t.Errorf("recipient = %q", notif.Email)
	}
	resetToken := notif.Params["token"]
	if resetToken == "" {
		t.Fatal("notification missing action token")
	}

	if err := h.engine.ConfirmPasswordReset(ctx, resetToken, "new-password-456"); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}

	if _, err := h.engine.Login(ctx, "lena@example.com", "old-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still valid: %v", err)
	}
	if _, err := h.engine.Login(ctx, "lena@example.com", "new-password-456"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	if h.counter(MetricRecoveryDispatched) != 1 {
		t.Errorf("dispatched counter = %d", h.counter(MetricRecoveryDispatched))
	}
	if h.counter(MetricResetConfirmSuccess) != 1 {
		t.Errorf("confirm success counter = %d", h.counter(MetricResetConfirmSuccess))
	}
}

func TestRecoverySetupFlow(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	// Migration state: provisioned without a credential.
	h.seedIdentity(t, "imported@example.com", "", nil)

	if _, err := h.engine.Login(ctx, "imported@example.com", "anything-goes"); !errors.Is(err, ErrCredentialUnset) {
		t.Fatalf("pre-setup login: %v", err)
	}

	if err := h.engine.RequestRecovery(ctx, "imported@example.com"); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}

	sent := h.notifier.waitFor(t, 1)
	notif := sent[0]
	if notif.Kind != NotificationPasswordSetup {
		t.Fatalf("kind = %q, want setup invitation", notif.Kind)
	}
	setupToken := notif.Params["token"]
	if setupToken == "" {
		t.Fatal("notification missing action token")
	}

	if err := h.engine.CompletePasswordSetup(ctx, setupToken, "first-password-789"); err != nil {
		t.Fatalf("CompletePasswordSetup: %v", err)
	}
	if _, err := h.engine.Login(ctx, "imported@example.com", "first-password-789"); err != nil {
		t.Fatalf("post-setup login: %v", err)
	}

	// The losing side of a setup race gets the conflict sentinel.
	err := h.engine.CompletePasswordSetup(ctx, setupToken, "second-password-789")
	if !errors.Is(err, ErrCredentialAlreadySet) {
		t.Fatalf("second setup: %v", err)
	}
	if h.counter(MetricSetupConflict) != 1 {
		t.Errorf("setup conflict counter = %d", h.counter(MetricSetupConflict))
	}
}

func TestRecoveryUnknownEmailUniform(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if err := h.engine.RequestRecovery(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email must yield nil: %v", err)
	}

	event := h.waitAuditEvent(t, "recovery_request")
	if event.Metadata["enumeration_safe"] != "true" {
		t.Errorf("audit event = %+v", event)
	}

	// Nothing is dispatched for an unknown email.
	time.Sleep(50 * time.Millisecond)
	if got := h.notifier.all(); len(got) != 0 {
		t.Fatalf("unexpected notifications: %v", got)
	}
	if h.counter(MetricRecoveryDispatched) != 0 {
		t.Errorf("dispatched counter = %d", h.counter(MetricRecoveryDispatched))
	}
}

func TestRecoveryInvalidEmail(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	for _, email := range []string{"", "not-an-email", "a b@example.com"} {
		if err := h.engine.RequestRecovery(ctx, email); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("RequestRecovery(%q) = %v, want ErrInvalidInput", email, err)
		}
	}
}

func TestRecoveryRateLimited(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.Recovery.MaxPerEmail = 1
		cfg.Recovery.MaxPerOrigin = 100
	})
	ctx := context.Background()

	h.seedIdentity(t, "lena@example.com", "old-password-123", nil)

	if err := h.engine.RequestRecovery(ctx, "lena@example.com"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	h.notifier.waitFor(t, 1)

	// The over-budget request returns the same nil but dispatches nothing.
	if err := h.engine.RequestRecovery(ctx, "lena@example.com"); err != nil {
		t.Fatalf("rate-limited request must yield nil: %v", err)
	}
	h.waitAuditEvent(t, "recovery_rate_limited")

	time.Sleep(50 * time.Millisecond)
	if got := h.notifier.all(); len(got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(got))
	}
	if h.counter(MetricRecoveryRateLimited) != 1 {
		t.Errorf("rate-limited counter = %d", h.counter(MetricRecoveryRateLimited))
	}
}

func TestActionTokenCrossRejection(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	h.seedIdentity(t, "lena@example.com", "old-password-123", nil)
	h.seedIdentity(t, "imported@example.com", "", nil)

	if err := h.engine.RequestRecovery(ctx, "lena@example.com"); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	if err := h.engine.RequestRecovery(ctx, "imported@example.com"); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}

	sent := h.notifier.waitFor(t, 2)
	var resetToken, setupToken string
	for _, n := range sent {
		switch n.Kind {
		case NotificationPasswordReset:
			resetToken = n.Params["token"]
		case NotificationPasswordSetup:
			setupToken = n.Params["token"]
		}
	}
	if resetToken == "" || setupToken == "" {
		t.Fatalf("missing tokens in %v", sent)
	}

	if err := h.engine.ConfirmPasswordReset(ctx, setupToken, "new-password-456"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("setup token accepted for reset: %v", err)
	}
	if err := h.engine.CompletePasswordSetup(ctx, resetToken, "new-password-456"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("reset token accepted for setup: %v", err)
	}
}

func TestConfirmResetGarbageToken(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if err := h.engine.ConfirmPasswordReset(ctx, "garbage", "new-password-456"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}
	if h.counter(MetricResetConfirmFailure) != 1 {
		t.Errorf("confirm failure counter = %d", h.counter(MetricResetConfirmFailure))
	}
}

func TestConfirmResetDeletedIdentity(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	seeded := h.seedIdentity(t, "lena@example.com", "old-password-123", nil)

	if err := h.engine.RequestRecovery(ctx, "lena@example.com"); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	token := h.notifier.waitFor(t, 1)[0].Params["token"]

	h.dir.remove(seeded.ID)

	if err := h.engine.ConfirmPasswordReset(ctx, token, "new-password-456"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}
}

func TestConfirmResetPasswordPolicy(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	h.seedIdentity(t, "lena@example.com", "old-password-123", nil)

	if err := h.engine.RequestRecovery(ctx, "lena@example.com"); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	token := h.notifier.waitFor(t, 1)[0].Params["token"]

	if err := h.engine.ConfirmPasswordReset(ctx, token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("short password: %v", err)
	}

	// The credential is untouched by the rejected confirm.
	if _, err := h.engine.Login(ctx, "lena@example.com", "old-password-123"); err != nil {
		t.Fatalf("old password must survive a rejected reset: %v", err)
	}
}
