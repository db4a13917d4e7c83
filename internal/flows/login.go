// Package flows contains the orchestration logic of the identity core.
// Each flow receives its dependencies as an explicit deps struct of
// function fields so it can be exercised without the engine.
package flows

import (
	"context"
	"errors"
	"time"
)

// IdentityRecord is the flow-local view of a directory identity.
// An empty PasswordHash means the credential is not yet established
// (migration state).
type IdentityRecord struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Active       bool
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	SubjectID    string
	Email        string
	DisplayName  string
	Capabilities []string
}

// LoginMetrics carries metric IDs used by the login flow.
type LoginMetrics struct {
	Success         int
	Failure         int
	CredentialUnset int
	RateLimited     int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	Success         string
	Failure         string
	CredentialUnset string
	RateLimited     string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	CredentialUnset    error
	RateLimited        error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	CheckLoginRate  func(context.Context, string, string) error
	RecordFailure   func(context.Context, string, string) error
	ResetLoginRate  func(context.Context, string, string) error
	MapLimiterError func(error) error

	FindByEmail   func(context.Context, string) (IdentityRecord, error)
	IsNotFound    func(error) bool
	MapStoreError func(error) error

	VerifyPassword       func(string, string) (bool, error)
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(string) (string, error)
	UpdatePasswordHash   func(context.Context, string, string) error

	DeriveCapabilities func(context.Context, string) ([]string, error)
	IssueAccessToken   func(string, string, []string) (string, error)
	IssueRefreshToken  func(string, string) (string, error)

	// SubmitTouchLastLogin is fire-and-forget: dispatched without
	// blocking the response, failures never fail the login.
	SubmitTouchLastLogin func(string)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin executes the login state machine:
// LOOKUP -> {NOT_FOUND, CREDENTIAL_UNSET, VERIFY} -> {AUTHENTICATED, REJECTED}.
// Unknown email and wrong password yield the identical sentinel; the
// migration state yields the distinguishable credential-unset sentinel.
// A failed login never mutates the identity record.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)

	if deps.FindByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.DeriveCapabilities == nil ||
		deps.IssueAccessToken == nil ||
		deps.IssueRefreshToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", email, mapped, nil)
			}
			return nil, mapped
		}
	}

	if email == "" || password == "" {
		return nil, loginFailure(ctx, email, "", "empty_input", deps)
	}

	identity, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound(err) {
			// Identical outcome to a wrong password: existence must not leak.
			return nil, loginFailure(ctx, email, "", "identity_not_found", deps)
		}
		return nil, deps.MapStoreError(err)
	}

	if identity.PasswordHash == "" {
		// Migration state. Deliberately distinguishable: the caller already
		// holds the email/account relationship, and the message directs the
		// legitimate user to the recovery flow.
		if deps.RecordFailure != nil {
			if err := deps.RecordFailure(ctx, email, ip); err != nil {
				if mapped := deps.MapLimiterError(err); errors.Is(mapped, deps.Errors.RateLimited) {
					deps.MetricInc(deps.Metrics.RateLimited)
					return nil, mapped
				}
				deps.Warn("idcore: login limiter record failed: %v", err)
			}
		}
		deps.MetricInc(deps.Metrics.CredentialUnset)
		deps.EmitAudit(ctx, deps.Events.CredentialUnset, false, identity.ID, email, deps.Errors.CredentialUnset, nil)
		return nil, deps.Errors.CredentialUnset
	}

	ok, err := deps.VerifyPassword(password, identity.PasswordHash)
	if err != nil {
		// Verification failure is infrastructure, never a silent mismatch.
		return nil, deps.MapStoreError(err)
	}
	if !ok {
		return nil, loginFailure(ctx, email, identity.ID, "password_mismatch", deps)
	}

	if deps.PasswordUpgradeOnLogin && deps.PasswordNeedsUpgrade != nil {
		if needsUpgrade, err := deps.PasswordNeedsUpgrade(identity.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := deps.HashPassword(password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, identity.ID, upgradedHash); err != nil {
					deps.Warn("idcore: password hash upgrade update failed")
				}
			} else {
				deps.Warn("idcore: password hash upgrade generation failed")
			}
		}
	}
	password = ""

	capabilities, err := deps.DeriveCapabilities(ctx, identity.ID)
	if err != nil {
		return nil, deps.MapStoreError(err)
	}

	access, err := deps.IssueAccessToken(identity.ID, identity.Email, capabilities)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, identity.ID, email, err, func() map[string]string {
			return map[string]string{"reason": "issue_access_failed"}
		})
		return nil, err
	}
	refresh, err := deps.IssueRefreshToken(identity.ID, identity.Email)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, identity.ID, email, err, func() map[string]string {
			return map[string]string{"reason": "issue_refresh_failed"}
		})
		return nil, err
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email, ip); err != nil {
			deps.Warn("idcore: login limiter reset failed: %v", err)
		}
	}
	if deps.SubmitTouchLastLogin != nil {
		deps.SubmitTouchLastLogin(identity.ID)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, identity.ID, email, nil, nil)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		SubjectID:    identity.ID,
		Email:        identity.Email,
		DisplayName:  identity.DisplayName,
		Capabilities: capabilities,
	}, nil
}

// loginFailure records the failed attempt against the limiter and returns
// the merged invalid-credentials sentinel. The wording is fixed and
// identical for unknown email and wrong password.
func loginFailure(ctx context.Context, email, subjectID, reason string, deps LoginDeps) error {
	if deps.RecordFailure != nil {
		if err := deps.RecordFailure(ctx, email, deps.ClientIPFromContext(ctx)); err != nil {
			if mapped := deps.MapLimiterError(err); errors.Is(mapped, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitAudit(ctx, deps.Events.RateLimited, false, subjectID, email, mapped, nil)
				return mapped
			}
			deps.Warn("idcore: login limiter record failed: %v", err)
		}
	}
	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Failure, false, subjectID, email, deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return deps.Errors.InvalidCredentials
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
}
