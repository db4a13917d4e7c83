package idcore

import (
	"context"
	"errors"

	"github.com/guildworks/idcore/internal/flows"
	internalmetrics "github.com/guildworks/idcore/internal/metrics"
	"github.com/guildworks/idcore/token"
)

// RequestRecovery starts the account-recovery protocol for email. The
// return value is deliberately uniform: an existing account, an unknown
// email, and a rate-limited request all yield nil after the same
// randomized delay. Only a structurally invalid email returns an error.
//
// Identities with an established password receive a reset link; those in
// the migration state receive a setup invitation instead.
func (e *Engine) RequestRecovery(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunRequestRecovery(ctx, email, e.recoveryDeps())
}

// ConfirmPasswordReset completes a recovery with a password_reset action
// token. A setup token or any other invalid token returns
// ErrTokenInvalid.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunConfirmPasswordReset(ctx, tokenStr, newPassword, e.recoveryDeps())
}

// CompletePasswordSetup establishes the first credential for an identity
// in the migration state using a password_setup action token. When two
// setups race, exactly one succeeds; the loser gets
// ErrCredentialAlreadySet.
func (e *Engine) CompletePasswordSetup(ctx context.Context, tokenStr, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunCompletePasswordSetup(ctx, tokenStr, newPassword, e.recoveryDeps())
}

func (e *Engine) recoveryDeps() flows.RecoveryDeps {
	return flows.RecoveryDeps{
		DelayMin: e.config.Recovery.DelayMin,
		DelayMax: e.config.Recovery.DelayMax,

		ClientIPFromContext: clientIPFromContext,

		ValidateEmail:   validateEmail,
		AcquireLimiter:  e.recoveryLimiter.Acquire,
		MapLimiterError: e.mapLimiterError,

		FindByEmail:   e.findRecordByEmail,
		FindByID:      e.findRecordByID,
		IsNotFound:    isNotFound,
		IsAlreadySet:  func(err error) bool { return errors.Is(err, ErrCredentialAlreadySet) },
		MapStoreError: e.mapDirectoryError,

		IssueResetToken: func(subjectID, email string) (string, error) {
			return e.tokens.IssueAction(subjectID, email, token.ActionPasswordReset)
		},
		IssueSetupToken: func(subjectID, email string) (string, error) {
			return e.tokens.IssueAction(subjectID, email, token.ActionPasswordSetup)
		},
		ParseResetToken: func(tokenStr string) (string, string, error) {
			claims, err := e.tokens.ParseAction(tokenStr, token.ActionPasswordReset)
			if err != nil {
				return "", "", err
			}
			return claims.Subject, claims.Email, nil
		},
		ParseSetupToken: func(tokenStr string) (string, string, error) {
			claims, err := e.tokens.ParseAction(tokenStr, token.ActionPasswordSetup)
			if err != nil {
				return "", "", err
			}
			return claims.Subject, claims.Email, nil
		},

		HashPassword:       e.hasher.Hash,
		UpdatePassword:     e.directory.UpdatePasswordHash,
		SetPasswordIfUnset: e.directory.SetPasswordHashIfUnset,

		SubmitDispatch: e.submitNotification,

		MetricInc: e.metricIncInt,
		EmitAudit: e.emitAudit,
		Warn:      e.warnf,

		Metrics: flows.RecoveryMetrics{
			Request:        int(internalmetrics.MetricRecoveryRequest),
			RateLimited:    int(internalmetrics.MetricRecoveryRateLimited),
			Dispatched:     int(internalmetrics.MetricRecoveryDispatched),
			ConfirmSuccess: int(internalmetrics.MetricResetConfirmSuccess),
			ConfirmFailure: int(internalmetrics.MetricResetConfirmFailure),
			SetupSuccess:   int(internalmetrics.MetricSetupCompleteSuccess),
			SetupFailure:   int(internalmetrics.MetricSetupCompleteFailure),
			SetupConflict:  int(internalmetrics.MetricSetupConflict),
			RateLimitHit:   int(internalmetrics.MetricRateLimitHit),
		},
		Events: flows.RecoveryEvents{
			Request:       auditEventRecoveryRequest,
			RateLimited:   auditEventRecoveryRateLimited,
			ResetConfirm:  auditEventResetConfirm,
			SetupComplete: auditEventSetupComplete,
		},
		Errors: flows.RecoveryErrors{
			EngineNotReady: ErrEngineNotReady,
			Validation:     ErrInvalidInput,
			TokenInvalid:   ErrTokenInvalid,
			NotFound:       ErrIdentityNotFound,
			AlreadySet:     ErrCredentialAlreadySet,
			PasswordPolicy: ErrPasswordPolicy,
		},
	}
}
