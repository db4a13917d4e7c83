package idcore

import (
	"context"
	"errors"

	"github.com/guildworks/idcore/internal/flows"
	internalmetrics "github.com/guildworks/idcore/internal/metrics"
)

// CreateAccount provisions a credentialed identity. The email must be
// unused: an active holder returns ErrAccountExists, an inactive one
// ErrAccountInactive. On success a welcome notification is dispatched in
// the background.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	result, err := flows.RunCreateAccount(ctx, flows.CreateAccountRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	}, e.accountDeps())
	if err != nil {
		return nil, err
	}

	return &CreateAccountResult{
		SubjectID:   result.SubjectID,
		Email:       result.Email,
		DisplayName: result.DisplayName,
	}, nil
}

// DeleteAccount removes the authenticated identity and all dependent
// records in one atomic cascade. confirm must be true; the access token
// names the subject being deleted. The confirmation notification is
// dispatched only after the cascade commits.
func (e *Engine) DeleteAccount(ctx context.Context, accessToken string, confirm bool) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunDeleteAccount(ctx, accessToken, confirm, e.accountDeps())
}

func (e *Engine) accountDeps() flows.AccountDeps {
	return flows.AccountDeps{
		ClientIPFromContext: clientIPFromContext,

		ValidateEmail: validateEmail,

		FindByEmail:   e.findRecordByEmail,
		FindByID:      e.findRecordByID,
		IsNotFound:    isNotFound,
		IsConflict:    func(err error) bool { return errors.Is(err, ErrAccountExists) },
		MapStoreError: e.mapDirectoryError,
		CreateIdentity: func(ctx context.Context, input flows.CreateIdentityInput) (flows.IdentityRecord, error) {
			created, err := e.directory.Create(ctx, CreateIdentityInput{
				Email:        input.Email,
				PasswordHash: input.PasswordHash,
				DisplayName:  input.DisplayName,
			})
			if err != nil {
				return flows.IdentityRecord{}, err
			}
			return toIdentityRecord(created), nil
		},
		DeleteCascade: e.directory.DeleteCascade,

		HashPassword: e.hasher.Hash,
		ParseAccessToken: func(tokenStr string) (string, string, error) {
			claims, err := e.tokens.ParseAccess(tokenStr)
			if err != nil {
				return "", "", err
			}
			return claims.Subject, claims.Email, nil
		},

		SubmitDispatch: e.submitNotification,

		MetricInc: e.metricIncInt,
		EmitAudit: e.emitAudit,
		Warn:      e.warnf,

		Metrics: flows.AccountMetrics{
			CreationSuccess:   int(internalmetrics.MetricAccountCreationSuccess),
			CreationDuplicate: int(internalmetrics.MetricAccountCreationDuplicate),
			DeletionSuccess:   int(internalmetrics.MetricAccountDeletionSuccess),
			DeletionFailure:   int(internalmetrics.MetricAccountDeletionFailure),
		},
		Events: flows.AccountEvents{
			CreationSuccess:   auditEventAccountCreated,
			CreationFailure:   auditEventAccountCreateFailed,
			CreationDuplicate: auditEventAccountDuplicate,
			Deletion:          auditEventAccountDeleted,
		},
		Errors: flows.AccountErrors{
			EngineNotReady:  ErrEngineNotReady,
			Validation:      ErrInvalidInput,
			AccountExists:   ErrAccountExists,
			AccountInactive: ErrAccountInactive,
			NotFound:        ErrIdentityNotFound,
			PasswordPolicy:  ErrPasswordPolicy,
			TokenInvalid:    ErrTokenInvalid,
		},
	}
}
