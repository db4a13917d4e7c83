package middleware_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	idcore "github.com/guildworks/idcore"
	"github.com/guildworks/idcore/middleware"
)

// stubDirectory backs the guard tests with a single-map directory.
type stubDirectory struct {
	mu    sync.Mutex
	byID  map[string]*idcore.Identity
	flags map[string]idcore.FlagSet
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		byID:  make(map[string]*idcore.Identity),
		flags: make(map[string]idcore.FlagSet),
	}
}

func (d *stubDirectory) FindByEmail(_ context.Context, email string) (*idcore.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.byID {
		if id.Email == email {
			out := *id
			return &out, nil
		}
	}
	return nil, idcore.ErrIdentityNotFound
}

func (d *stubDirectory) FindByID(_ context.Context, subjectID string) (*idcore.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byID[subjectID]
	if !ok {
		return nil, idcore.ErrIdentityNotFound
	}
	out := *id
	return &out, nil
}

func (d *stubDirectory) Create(_ context.Context, input idcore.CreateIdentityInput) (*idcore.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := &idcore.Identity{
		ID:           "subject-1",
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		DisplayName:  input.DisplayName,
		Active:       true,
	}
	d.byID[id.ID] = id
	out := *id
	return &out, nil
}

func (d *stubDirectory) UpdatePasswordHash(_ context.Context, subjectID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byID[subjectID]; ok {
		id.PasswordHash = hash
		return nil
	}
	return idcore.ErrIdentityNotFound
}

func (d *stubDirectory) SetPasswordHashIfUnset(_ context.Context, subjectID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byID[subjectID]
	if !ok {
		return idcore.ErrIdentityNotFound
	}
	if id.PasswordHash != "" {
		return idcore.ErrCredentialAlreadySet
	}
	id.PasswordHash = hash
	return nil
}

func (d *stubDirectory) FlagsFor(_ context.Context, subjectID string) (idcore.FlagSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[subjectID]; !ok {
		return nil, idcore.ErrIdentityNotFound
	}
	return d.flags[subjectID], nil
}

func (d *stubDirectory) TouchLastLogin(_ context.Context, subjectID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byID[subjectID]; ok {
		id.LastLoginAt = at
	}
	return nil
}

func (d *stubDirectory) DeleteCascade(_ context.Context, subjectID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byID, subjectID)
	delete(d.flags, subjectID)
	return nil
}

func newGuardedEngine(t *testing.T) (*idcore.Engine, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	cfg := idcore.DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Password.Pepper = []byte("guard-test-pepper-0123456789abcd")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	directory := newStubDirectory()
	engine, err := idcore.New().
		WithConfig(cfg).
		WithDirectory(directory).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	res, err := engine.CreateAccount(context.Background(), idcore.CreateAccountRequest{
		Email:    "lena@example.com",
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	directory.mu.Lock()
	directory.flags[res.SubjectID] = idcore.FlagSet{"org_admin": true}
	directory.mu.Unlock()

	login, err := engine.Login(context.Background(), "lena@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	return engine, login.AccessToken
}

func TestGuardRejectsMissingAndBadTokens(t *testing.T) {
	engine, _ := newGuardedEngine(t)

	handler := middleware.Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc123"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer garbage"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestGuardStoresAuthResult(t *testing.T) {
	engine, accessToken := newGuardedEngine(t)

	var got *idcore.AuthResult
	handler := middleware.Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := middleware.AuthResultFromContext(r.Context())
		if !ok {
			t.Error("auth result missing from context")
		}
		got = res
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got == nil || got.Email != "lena@example.com" || !got.HasCapability("org:admin") {
		t.Fatalf("auth result = %+v", got)
	}
}

func TestRequireCapability(t *testing.T) {
	engine, accessToken := newGuardedEngine(t)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	admin := middleware.Guard(engine)(middleware.RequireCapability("org:admin")(ok))
	finance := middleware.Guard(engine)(middleware.RequireCapability("finance:manage")(ok))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("held capability: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/finance", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = httptest.NewRecorder()
	finance.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing capability: status = %d, want 403", rec.Code)
	}
}

func TestRequireCapabilityOutsideGuard(t *testing.T) {
	handler := middleware.RequireCapability("org:admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
