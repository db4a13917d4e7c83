package idcore

import (
	"context"

	"github.com/guildworks/idcore/internal/flows"
	internalmetrics "github.com/guildworks/idcore/internal/metrics"
)

// Refresh exchanges a valid refresh token for a new access/refresh pair.
// Capabilities are re-derived from current directory state, so flags
// revoked since login take effect here without waiting for token expiry.
// A deleted identity returns ErrIdentityNotFound.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	result, err := flows.RunRefresh(ctx, refreshToken, e.refreshDeps())
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

func (e *Engine) refreshDeps() flows.RefreshDeps {
	return flows.RefreshDeps{
		ParseRefreshToken: func(tokenStr string) (string, string, error) {
			claims, err := e.tokens.ParseRefresh(tokenStr)
			if err != nil {
				return "", "", err
			}
			return claims.Subject, claims.Email, nil
		},

		FindByID:      e.findRecordByID,
		IsNotFound:    isNotFound,
		MapStoreError: e.mapDirectoryError,

		DeriveCapabilities: e.deriveCapabilities,
		IssueAccessToken:   e.tokens.IssueAccess,
		IssueRefreshToken:  e.tokens.IssueRefresh,

		MetricInc: e.metricIncInt,
		EmitAudit: e.emitAudit,

		Metrics: flows.RefreshMetrics{
			Success: int(internalmetrics.MetricRefreshSuccess),
			Failure: int(internalmetrics.MetricRefreshFailure),
		},
		Events: flows.RefreshEvents{
			Success: auditEventRefreshSuccess,
			Failure: auditEventRefreshFailure,
		},
		Errors: flows.RefreshErrors{
			EngineNotReady: ErrEngineNotReady,
			TokenInvalid:   ErrTokenInvalid,
			NotFound:       ErrIdentityNotFound,
		},
	}
}
