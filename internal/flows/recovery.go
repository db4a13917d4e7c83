package flows

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

// Notification kinds submitted by the recovery flow.
const (
	KindPasswordResetMail  = "password_reset_confirmation"
	KindPasswordSetupMail  = "password_setup_invite"
	KindWelcomeMail        = "welcome"
	KindAccountDeletedMail = "account_deletion_confirmation"
)

// RecoveryMetrics carries metric IDs used by the recovery flows.
type RecoveryMetrics struct {
	Request        int
	RateLimited    int
	Dispatched     int
	ConfirmSuccess int
	ConfirmFailure int
	SetupSuccess   int
	SetupFailure   int
	SetupConflict  int
	RateLimitHit   int
}

// RecoveryEvents carries audit event names used by the recovery flows.
type RecoveryEvents struct {
	Request       string
	RateLimited   string
	ResetConfirm  string
	SetupComplete string
}

// RecoveryErrors carries host-level sentinel errors used by the recovery
// flows.
type RecoveryErrors struct {
	EngineNotReady error
	Validation     error
	TokenInvalid   error
	NotFound       error
	AlreadySet     error
	PasswordPolicy error
}

// RecoveryDeps captures recovery flow dependencies.
type RecoveryDeps struct {
	// DelayMin/DelayMax bound the uniform randomized delay applied to
	// every recovery request regardless of outcome, so directory latency
	// variance cannot leak account existence via timing.
	DelayMin time.Duration
	DelayMax time.Duration

	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time
	Sleep               func(context.Context, time.Duration) error

	ValidateEmail   func(string) error
	AcquireLimiter  func(context.Context, string, string) (bool, error)
	MapLimiterError func(error) error

	FindByEmail   func(context.Context, string) (IdentityRecord, error)
	FindByID      func(context.Context, string) (IdentityRecord, error)
	IsNotFound    func(error) bool
	IsAlreadySet  func(error) bool
	MapStoreError func(error) error

	IssueResetToken func(string, string) (string, error)
	IssueSetupToken func(string, string) (string, error)
	ParseResetToken func(string) (string, string, error)
	ParseSetupToken func(string) (string, string, error)

	HashPassword       func(string) (string, error)
	UpdatePassword     func(context.Context, string, string) error
	SetPasswordIfUnset func(context.Context, string, string) error

	// SubmitDispatch is fire-and-forget; delivery failures are logged by
	// the dispatcher and never surface to the requester.
	SubmitDispatch func(kind, email string, params map[string]string)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...any)

	Metrics RecoveryMetrics
	Events  RecoveryEvents
	Errors  RecoveryErrors
}

// RunRequestRecovery executes the account-recovery protocol. The caller
// observes the same nil result for an existing email, an unknown email,
// and a rate-limited request; only a malformed email returns an error.
// Sequence per request: rate-limit, lookup, uniform delay, side effect.
func RunRequestRecovery(ctx context.Context, email string, deps RecoveryDeps) error {
	normalizeRecoveryDeps(&deps)

	if deps.AcquireLimiter == nil || deps.FindByEmail == nil ||
		deps.IssueResetToken == nil || deps.IssueSetupToken == nil ||
		deps.SubmitDispatch == nil {
		return deps.Errors.EngineNotReady
	}

	if err := deps.ValidateEmail(email); err != nil {
		// The one permitted divergent response: it cannot leak existence.
		return deps.Errors.Validation
	}

	ip := deps.ClientIPFromContext(ctx)
	blocked, err := deps.AcquireLimiter(ctx, email, ip)
	if err != nil {
		return deps.MapLimiterError(err)
	}
	deps.MetricInc(deps.Metrics.Request)

	if blocked {
		// Skip the lookup entirely but keep the response and its timing
		// indistinguishable from normal processing.
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", email, nil, nil)
		return deps.sleepUniform(ctx)
	}

	identity, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.EmitAudit(ctx, deps.Events.Request, true, "", email, nil, func() map[string]string {
				return map[string]string{"enumeration_safe": "true"}
			})
			return deps.sleepUniform(ctx)
		}
		return deps.MapStoreError(err)
	}

	if err := deps.sleepUniform(ctx); err != nil {
		return err
	}

	var tokenStr, kind string
	if identity.PasswordHash == "" {
		tokenStr, err = deps.IssueSetupToken(identity.ID, identity.Email)
		kind = KindPasswordSetupMail
	} else {
		tokenStr, err = deps.IssueResetToken(identity.ID, identity.Email)
		kind = KindPasswordResetMail
	}
	if err != nil {
		return err
	}

	deps.SubmitDispatch(kind, identity.Email, map[string]string{
		"token": tokenStr,
		"name":  identity.DisplayName,
	})

	deps.MetricInc(deps.Metrics.Dispatched)
	deps.EmitAudit(ctx, deps.Events.Request, true, identity.ID, email, nil, nil)
	return nil
}

// RunConfirmPasswordReset completes a recovery for an identity with an
// established credential. The token must carry the password_reset action;
// a setup token is rejected as invalid.
func RunConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string, deps RecoveryDeps) error {
	normalizeRecoveryDeps(&deps)

	if deps.ParseResetToken == nil || deps.HashPassword == nil ||
		deps.UpdatePassword == nil || deps.FindByID == nil {
		return deps.Errors.EngineNotReady
	}

	subjectID, email, err := deps.ParseResetToken(tokenStr)
	if err != nil {
		deps.MetricInc(deps.Metrics.ConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.ResetConfirm, false, "", "", deps.Errors.TokenInvalid, nil)
		return deps.Errors.TokenInvalid
	}

	if _, err := deps.FindByID(ctx, subjectID); err != nil {
		if deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.ConfirmFailure)
			deps.EmitAudit(ctx, deps.Events.ResetConfirm, false, subjectID, email, deps.Errors.NotFound, nil)
			return deps.Errors.NotFound
		}
		return deps.MapStoreError(err)
	}

	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.MetricInc(deps.Metrics.ConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.ResetConfirm, false, subjectID, email, deps.Errors.PasswordPolicy, nil)
		return deps.Errors.PasswordPolicy
	}

	if err := deps.UpdatePassword(ctx, subjectID, newHash); err != nil {
		deps.MetricInc(deps.Metrics.ConfirmFailure)
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.ResetConfirm, false, subjectID, email, mapped, nil)
		return mapped
	}

	deps.MetricInc(deps.Metrics.ConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.ResetConfirm, true, subjectID, email, nil, nil)
	return nil
}

// RunCompletePasswordSetup establishes the first credential for a
// migration-state identity. The write is conditioned on the hash still
// being absent, so of two concurrent setups exactly one succeeds.
func RunCompletePasswordSetup(ctx context.Context, tokenStr, newPassword string, deps RecoveryDeps) error {
	normalizeRecoveryDeps(&deps)

	if deps.ParseSetupToken == nil || deps.HashPassword == nil || deps.SetPasswordIfUnset == nil {
		return deps.Errors.EngineNotReady
	}

	subjectID, email, err := deps.ParseSetupToken(tokenStr)
	if err != nil {
		deps.MetricInc(deps.Metrics.SetupFailure)
		deps.EmitAudit(ctx, deps.Events.SetupComplete, false, "", "", deps.Errors.TokenInvalid, nil)
		return deps.Errors.TokenInvalid
	}

	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.MetricInc(deps.Metrics.SetupFailure)
		deps.EmitAudit(ctx, deps.Events.SetupComplete, false, subjectID, email, deps.Errors.PasswordPolicy, nil)
		return deps.Errors.PasswordPolicy
	}

	if err := deps.SetPasswordIfUnset(ctx, subjectID, newHash); err != nil {
		switch {
		case deps.IsAlreadySet(err):
			deps.MetricInc(deps.Metrics.SetupConflict)
			deps.EmitAudit(ctx, deps.Events.SetupComplete, false, subjectID, email, deps.Errors.AlreadySet, func() map[string]string {
				return map[string]string{"reason": "credential_already_established"}
			})
			return deps.Errors.AlreadySet
		case deps.IsNotFound(err):
			deps.MetricInc(deps.Metrics.SetupFailure)
			deps.EmitAudit(ctx, deps.Events.SetupComplete, false, subjectID, email, deps.Errors.NotFound, nil)
			return deps.Errors.NotFound
		default:
			deps.MetricInc(deps.Metrics.SetupFailure)
			mapped := deps.MapStoreError(err)
			deps.EmitAudit(ctx, deps.Events.SetupComplete, false, subjectID, email, mapped, nil)
			return mapped
		}
	}

	deps.MetricInc(deps.Metrics.SetupSuccess)
	deps.EmitAudit(ctx, deps.Events.SetupComplete, true, subjectID, email, nil, nil)
	return nil
}

// sleepUniform blocks for a duration drawn uniformly from
// [DelayMin, DelayMax] using crypto/rand.
func (deps *RecoveryDeps) sleepUniform(ctx context.Context) error {
	span := deps.DelayMax - deps.DelayMin
	delay := deps.DelayMin
	if span > 0 {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err == nil {
			jitter := time.Duration(binary.BigEndian.Uint64(buf[:]) % uint64(span))
			delay += jitter
		}
	}
	return deps.Sleep(ctx, delay)
}

func normalizeRecoveryDeps(deps *RecoveryDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DelayMin <= 0 {
		deps.DelayMin = 150 * time.Millisecond
	}
	if deps.DelayMax < deps.DelayMin {
		deps.DelayMax = 2 * deps.DelayMin
	}
	if deps.Sleep == nil {
		deps.Sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.ValidateEmail == nil {
		deps.ValidateEmail = func(string) error { return errors.New("email validation unavailable") }
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
	if deps.IsAlreadySet == nil {
		deps.IsAlreadySet = func(error) bool { return false }
	}
}
