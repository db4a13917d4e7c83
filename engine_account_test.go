package idcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAccount(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	res, err := h.engine.CreateAccount(ctx, CreateAccountRequest{
		Email:       "lena@example.com",
		Password:    "correct-horse-battery",
		DisplayName: "Lena",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if res.SubjectID == "" || res.Email != "lena@example.com" || res.DisplayName != "Lena" {
		t.Errorf("result = %+v", res)
	}

	sent := h.notifier.waitFor(t, 1)
	if sent[0].Kind != NotificationWelcome || sent[0].Email != "lena@example.com" {
		t.Errorf("notification = %+v", sent[0])
	}
	if sent[0].Params["name"] != "Lena" {
		t.Errorf("params = %v", sent[0].Params)
	}

	if _, err := h.engine.Login(ctx, "lena@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("login after creation: %v", err)
	}

	event := h.waitAuditEvent(t, "account_created")
	if !event.Success || event.SubjectID != res.SubjectID {
		t.Errorf("audit event = %+v", event)
	}
	if h.counter(MetricAccountCreationSuccess) != 1 {
		t.Errorf("creation success counter = %d", h.counter(MetricAccountCreationSuccess))
	}
}

func TestCreateAccountDuplicate(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	req := CreateAccountRequest{
		Email:       "lena@example.com",
		Password:    "correct-horse-battery",
		DisplayName: "Lena",
	}
	if _, err := h.engine.CreateAccount(ctx, req); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := h.engine.CreateAccount(ctx, req)
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("duplicate create: %v", err)
	}
	if KindOf(err) != KindConflict {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if h.counter(MetricAccountCreationDuplicate) != 1 {
		t.Errorf("duplicate counter = %d", h.counter(MetricAccountCreationDuplicate))
	}
}

func TestCreateAccountInactiveHolder(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	h.dir.add(&Identity{
		ID:           "inactive-1",
		Email:        "gone@example.com",
		PasswordHash: "x",
		Active:       false,
	}, nil)

	_, err := h.engine.CreateAccount(ctx, CreateAccountRequest{
		Email:    "gone@example.com",
		Password: "correct-horse-battery",
	})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("inactive holder: %v", err)
	}
	if errors.Is(err, ErrAccountExists) {
		t.Fatal("inactive conflict must be distinguishable from the active one")
	}
}

func TestCreateAccountValidation(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateAccountRequest
		want error
	}{
		{"empty email", CreateAccountRequest{Password: "correct-horse-battery"}, ErrInvalidInput},
		{"malformed email", CreateAccountRequest{Email: "nope", Password: "correct-horse-battery"}, ErrInvalidInput},
		{"empty password", CreateAccountRequest{Email: "lena@example.com"}, ErrPasswordPolicy},
		{"short password", CreateAccountRequest{Email: "lena@example.com", Password: "short"}, ErrPasswordPolicy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.engine.CreateAccount(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDeleteAccount(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	res, err := h.engine.CreateAccount(ctx, CreateAccountRequest{
		Email:       "lena@example.com",
		Password:    "correct-horse-battery",
		DisplayName: "Lena",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	login, err := h.engine.Login(ctx, "lena@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := h.engine.DeleteAccount(ctx, login.AccessToken, true); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if h.dir.has(res.SubjectID) {
		t.Fatal("identity survived the cascade")
	}

	// Welcome first, then the deletion confirmation.
	sent := h.notifier.waitFor(t, 2)
	last := sent[len(sent)-1]
	if last.Kind != NotificationAccountDeleted || last.Email != "lena@example.com" {
		t.Errorf("notification = %+v", last)
	}

	if _, err := h.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("refresh after deletion: %v", err)
	}
	if h.counter(MetricAccountDeletionSuccess) != 1 {
		t.Errorf("deletion success counter = %d", h.counter(MetricAccountDeletionSuccess))
	}
}

func TestDeleteAccountRequiresConfirmation(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	seeded := h.seedIdentity(t, "lena@example.com", "correct-horse-battery", nil)
	login, err := h.engine.Login(ctx, "lena@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := h.engine.DeleteAccount(ctx, login.AccessToken, false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unconfirmed delete: %v", err)
	}
	if !h.dir.has(seeded.ID) {
		t.Fatal("unconfirmed delete removed the identity")
	}
}

func TestDeleteAccountCascadeFailure(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	seeded := h.seedIdentity(t, "lena@example.com", "correct-horse-battery", nil)
	login, err := h.engine.Login(ctx, "lena@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.dir.deleteErr = errors.New("foreign key violation")

	if err := h.engine.DeleteAccount(ctx, login.AccessToken, true); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("failed cascade: %v", err)
	}
	if !h.dir.has(seeded.ID) {
		t.Fatal("identity removed despite the failed cascade")
	}

	// No confirmation goes out for a failed cascade.
	time.Sleep(50 * time.Millisecond)
	for _, n := range h.notifier.all() {
		if n.Kind == NotificationAccountDeleted {
			t.Fatal("deletion confirmation dispatched for a failed cascade")
		}
	}
	if h.counter(MetricAccountDeletionFailure) != 1 {
		t.Errorf("deletion failure counter = %d", h.counter(MetricAccountDeletionFailure))
	}
}

func TestDeleteAccountBadToken(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if err := h.engine.DeleteAccount(ctx, "garbage", true); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("DeleteAccount: %v", err)
	}
}
