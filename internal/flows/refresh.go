package flows

import (
	"context"
)

// RefreshMetrics carries metric IDs used by the refresh flow.
type RefreshMetrics struct {
	Success int
	Failure int
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	Success string
	Failure string
}

// RefreshErrors carries host-level sentinel errors used by the refresh
// flow.
type RefreshErrors struct {
	EngineNotReady error
	TokenInvalid   error
	NotFound       error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefreshToken func(string) (string, string, error)

	FindByID      func(context.Context, string) (IdentityRecord, error)
	IsNotFound    func(error) bool
	MapStoreError func(error) error

	DeriveCapabilities func(context.Context, string) ([]string, error)
	IssueAccessToken   func(string, string, []string) (string, error)
	IssueRefreshToken  func(string, string) (string, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh exchanges a valid refresh token for a fresh pair.
// Capabilities are re-derived from current directory state, so a flag
// revoked since login stops appearing without waiting for refresh-token
// expiry. A deleted identity maps to not-found.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (*LoginResult, error) {
	normalizeRefreshDeps(&deps)

	if deps.ParseRefreshToken == nil || deps.FindByID == nil ||
		deps.DeriveCapabilities == nil || deps.IssueAccessToken == nil ||
		deps.IssueRefreshToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	subjectID, _, err := deps.ParseRefreshToken(refreshToken)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", "", deps.Errors.TokenInvalid, nil)
		return nil, deps.Errors.TokenInvalid
	}

	identity, err := deps.FindByID(ctx, subjectID)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.Failure)
			deps.EmitAudit(ctx, deps.Events.Failure, false, subjectID, "", deps.Errors.NotFound, nil)
			return nil, deps.Errors.NotFound
		}
		return nil, deps.MapStoreError(err)
	}

	capabilities, err := deps.DeriveCapabilities(ctx, identity.ID)
	if err != nil {
		return nil, deps.MapStoreError(err)
	}

	access, err := deps.IssueAccessToken(identity.ID, identity.Email, capabilities)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, identity.ID, identity.Email, err, nil)
		return nil, err
	}
	refresh, err := deps.IssueRefreshToken(identity.ID, identity.Email)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, identity.ID, identity.Email, err, nil)
		return nil, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, identity.ID, identity.Email, nil, nil)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		SubjectID:    identity.ID,
		Email:        identity.Email,
		DisplayName:  identity.DisplayName,
		Capabilities: capabilities,
	}, nil
}

func normalizeRefreshDeps(deps *RefreshDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
}
