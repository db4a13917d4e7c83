package idcore

import (
	"context"
	"errors"
	"testing"
)

func TestRefreshRotatesPair(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	seeded := h.seedIdentity(t, "lena@example.com", "correct-horse-battery", FlagSet{"org_admin": true})

	login, err := h.engine.Login(ctx, "lena@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := h.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.SubjectID != seeded.ID || refreshed.Email != "lena@example.com" {
		t.Errorf("result = %+v", refreshed)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == "" {
		t.Fatal("missing tokens")
	}

	auth, err := h.engine.Validate(ctx, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("Validate on refreshed access token: %v", err)
	}
	if !auth.HasCapability("org:admin") {
		t.Errorf("auth = %+v", auth)
	}

	// The new refresh token is itself exchangeable.
	if _, err := h.engine.Refresh(ctx, refreshed.RefreshToken); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	if h.counter(MetricRefreshSuccess) != 2 {
		t.Errorf("refresh success counter = %d", h.counter(MetricRefreshSuccess))
	}
}

func TestRefreshReDerivesCapabilities(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	seeded := h.seedIdentity(t, "lena@example.com", "correct-horse-battery", FlagSet{"org_admin": true})

	login, err := h.engine.Login(ctx, "lena@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(login.Capabilities) != 1 || login.Capabilities[0] != "org:admin" {
		t.Fatalf("login capabilities = %v", login.Capabilities)
	}

	// Revoke the flag after login; the refresh must observe it.
	h.dir.setFlags(seeded.ID, FlagSet{})

	refreshed, err := h.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(refreshed.Capabilities) != 0 {
		t.Fatalf("revoked capability survived refresh: %v", refreshed.Capabilities)
	}

	auth, err := h.engine.Validate(ctx, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if auth.HasCapability("org:admin") {
		t.Fatal("revoked capability present in refreshed access token")
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	h.seedIdentity(t, "lena@example.com", "correct-horse-battery", nil)
	login, err := h.engine.Login(ctx, "lena@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := h.engine.Refresh(ctx, login.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token accepted by Refresh: %v", err)
	}
}

func TestRefreshDeletedIdentity(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	seeded := h.seedIdentity(t, "lena@example.com", "correct-horse-battery", nil)
	login, err := h.engine.Login(ctx, "lena@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.dir.remove(seeded.ID)

	if _, err := h.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("refresh for deleted identity: %v", err)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.Refresh(ctx, "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Refresh: %v", err)
	}
	if h.counter(MetricRefreshFailure) != 1 {
		t.Errorf("refresh failure counter = %d", h.counter(MetricRefreshFailure))
	}
	h.waitAuditEvent(t, "refresh_failure")
}
