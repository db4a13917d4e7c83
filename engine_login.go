package idcore

import (
	"context"

	"github.com/guildworks/idcore/internal/flows"
	internalmetrics "github.com/guildworks/idcore/internal/metrics"
)

// Login authenticates an email/password pair and issues an access and
// refresh token. Unknown email and wrong password both return
// ErrInvalidCredentials; an identity in the migration state returns
// ErrCredentialUnset. A failed login never mutates the identity record.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	result, err := flows.RunLogin(ctx, email, plaintext, e.loginDeps())
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		SubjectID:    result.SubjectID,
		Email:        result.Email,
		DisplayName:  result.DisplayName,
		Capabilities: result.Capabilities,
	}, nil
}

func (e *Engine) loginDeps() flows.LoginDeps {
	return flows.LoginDeps{
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,

		ClientIPFromContext: clientIPFromContext,

		CheckLoginRate:  e.loginLimiter.Check,
		RecordFailure:   e.loginLimiter.Record,
		ResetLoginRate:  e.loginLimiter.Reset,
		MapLimiterError: e.mapLimiterError,

		FindByEmail:   e.findRecordByEmail,
		IsNotFound:    isNotFound,
		MapStoreError: e.mapDirectoryError,

		VerifyPassword:       e.hasher.Verify,
		PasswordNeedsUpgrade: e.hasher.NeedsUpgrade,
		HashPassword:         e.hasher.Hash,
		UpdatePasswordHash:   e.directory.UpdatePasswordHash,

		DeriveCapabilities: e.deriveCapabilities,
		IssueAccessToken:   e.tokens.IssueAccess,
		IssueRefreshToken:  e.tokens.IssueRefresh,

		SubmitTouchLastLogin: e.submitTouchLastLogin,

		MetricInc: e.metricIncInt,
		EmitAudit: e.emitAudit,
		Warn:      e.warnf,

		Metrics: flows.LoginMetrics{
			Success:         int(internalmetrics.MetricLoginSuccess),
			Failure:         int(internalmetrics.MetricLoginFailure),
			CredentialUnset: int(internalmetrics.MetricLoginCredentialUnset),
			RateLimited:     int(internalmetrics.MetricLoginRateLimited),
		},
		Events: flows.LoginEvents{
			Success:         auditEventLoginSuccess,
			Failure:         auditEventLoginFailure,
			CredentialUnset: auditEventLoginCredentialUnset,
			RateLimited:     auditEventLoginRateLimited,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			CredentialUnset:    ErrCredentialUnset,
			RateLimited:        ErrLoginRateLimited,
		},
	}
}
