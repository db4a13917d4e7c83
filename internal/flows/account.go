package flows

import (
	"context"
	"time"
)

// CreateAccountRequest is the input for account creation.
type CreateAccountRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// CreateAccountResult is returned after successful creation.
type CreateAccountResult struct {
	SubjectID   string
	Email       string
	DisplayName string
}

// CreateIdentityInput is the flow-local creation payload handed to the
// directory.
type CreateIdentityInput struct {
	Email        string
	PasswordHash string
	DisplayName  string
}

// AccountMetrics carries metric IDs used by lifecycle flows.
type AccountMetrics struct {
	CreationSuccess   int
	CreationDuplicate int
	DeletionSuccess   int
	DeletionFailure   int
}

// AccountEvents carries audit event names used by lifecycle flows.
type AccountEvents struct {
	CreationSuccess   string
	CreationFailure   string
	CreationDuplicate string
	Deletion          string
}

// AccountErrors carries host-level sentinel errors used by lifecycle
// flows.
type AccountErrors struct {
	EngineNotReady  error
	Validation      error
	AccountExists   error
	AccountInactive error
	NotFound        error
	PasswordPolicy  error
	TokenInvalid    error
}

// AccountDeps captures lifecycle flow dependencies.
type AccountDeps struct {
	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	ValidateEmail func(string) error

	FindByEmail    func(context.Context, string) (IdentityRecord, error)
	FindByID       func(context.Context, string) (IdentityRecord, error)
	IsNotFound     func(error) bool
	IsConflict     func(error) bool
	MapStoreError  func(error) error
	CreateIdentity func(context.Context, CreateIdentityInput) (IdentityRecord, error)
	DeleteCascade  func(context.Context, string) error

	HashPassword     func(string) (string, error)
	ParseAccessToken func(string) (string, string, error)

	SubmitDispatch func(kind, email string, params map[string]string)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...any)

	Metrics AccountMetrics
	Events  AccountEvents
	Errors  AccountErrors
}

// RunCreateAccount creates a credentialed identity. Duplicates are
// rejected before and after hashing: a pre-check surfaces inactive
// identities with a distinct actionable conflict, and the store-level
// conflict covers the create race. No two identities ever share an email.
func RunCreateAccount(ctx context.Context, req CreateAccountRequest, deps AccountDeps) (*CreateAccountResult, error) {
	normalizeAccountDeps(&deps)

	if deps.FindByEmail == nil || deps.CreateIdentity == nil || deps.HashPassword == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if err := deps.ValidateEmail(req.Email); err != nil {
		deps.EmitAudit(ctx, deps.Events.CreationFailure, false, "", req.Email, deps.Errors.Validation, func() map[string]string {
			return map[string]string{"reason": "invalid_email"}
		})
		return nil, deps.Errors.Validation
	}
	if req.Password == "" {
		deps.EmitAudit(ctx, deps.Events.CreationFailure, false, "", req.Email, deps.Errors.PasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "empty_password"}
		})
		return nil, deps.Errors.PasswordPolicy
	}

	existing, err := deps.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		deps.MetricInc(deps.Metrics.CreationDuplicate)
		if !existing.Active {
			// Soft-deleted or deactivated: distinct, actionable conflict.
			deps.EmitAudit(ctx, deps.Events.CreationDuplicate, false, existing.ID, req.Email, deps.Errors.AccountInactive, nil)
			return nil, deps.Errors.AccountInactive
		}
		deps.EmitAudit(ctx, deps.Events.CreationDuplicate, false, existing.ID, req.Email, deps.Errors.AccountExists, nil)
		return nil, deps.Errors.AccountExists
	case deps.IsNotFound(err):
		// Free to create.
	default:
		return nil, deps.MapStoreError(err)
	}

	passwordHash, err := deps.HashPassword(req.Password)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.CreationFailure, false, "", req.Email, deps.Errors.PasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "hash_policy"}
		})
		return nil, deps.Errors.PasswordPolicy
	}
	req.Password = ""

	created, err := deps.CreateIdentity(ctx, CreateIdentityInput{
		Email:        req.Email,
		PasswordHash: passwordHash,
		DisplayName:  req.DisplayName,
	})
	if err != nil {
		if deps.IsConflict(err) {
			// Lost the create race; same conflict as the pre-check.
			deps.MetricInc(deps.Metrics.CreationDuplicate)
			deps.EmitAudit(ctx, deps.Events.CreationDuplicate, false, "", req.Email, deps.Errors.AccountExists, nil)
			return nil, deps.Errors.AccountExists
		}
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.CreationFailure, false, "", req.Email, mapped, func() map[string]string {
			return map[string]string{"reason": "store_create_failed"}
		})
		return nil, mapped
	}

	deps.SubmitDispatch(KindWelcomeMail, created.Email, map[string]string{
		"name": created.DisplayName,
	})

	deps.MetricInc(deps.Metrics.CreationSuccess)
	deps.EmitAudit(ctx, deps.Events.CreationSuccess, true, created.ID, created.Email, nil, nil)

	return &CreateAccountResult{
		SubjectID:   created.ID,
		Email:       created.Email,
		DisplayName: created.DisplayName,
	}, nil
}

// RunDeleteAccount deletes the authenticated identity and everything
// hanging off it in one atomic cascade. The email for the confirmation
// notification is captured before the delete; the notification is
// submitted only after the cascade commits. A failed cascade deletes
// nothing and sends nothing.
func RunDeleteAccount(ctx context.Context, accessToken string, confirm bool, deps AccountDeps) error {
	normalizeAccountDeps(&deps)

	if deps.ParseAccessToken == nil || deps.FindByID == nil || deps.DeleteCascade == nil {
		return deps.Errors.EngineNotReady
	}

	subjectID, _, err := deps.ParseAccessToken(accessToken)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Deletion, false, "", "", deps.Errors.TokenInvalid, nil)
		return deps.Errors.TokenInvalid
	}

	if !confirm {
		deps.EmitAudit(ctx, deps.Events.Deletion, false, subjectID, "", deps.Errors.Validation, func() map[string]string {
			return map[string]string{"reason": "confirmation_missing"}
		})
		return deps.Errors.Validation
	}

	identity, err := deps.FindByID(ctx, subjectID)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.EmitAudit(ctx, deps.Events.Deletion, false, subjectID, "", deps.Errors.NotFound, nil)
			return deps.Errors.NotFound
		}
		return deps.MapStoreError(err)
	}

	email := identity.Email

	if err := deps.DeleteCascade(ctx, subjectID); err != nil {
		deps.MetricInc(deps.Metrics.DeletionFailure)
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Deletion, false, subjectID, email, mapped, nil)
		return mapped
	}

	deps.SubmitDispatch(KindAccountDeletedMail, email, map[string]string{
		"name": identity.DisplayName,
	})

	deps.MetricInc(deps.Metrics.DeletionSuccess)
	deps.EmitAudit(ctx, deps.Events.Deletion, true, subjectID, email, nil, nil)
	return nil
}

func normalizeAccountDeps(deps *AccountDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.ValidateEmail == nil {
		deps.ValidateEmail = func(string) error { return nil }
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
	if deps.SubmitDispatch == nil {
		deps.SubmitDispatch = func(string, string, map[string]string) {}
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.IsConflict == nil {
		deps.IsConflict = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
}
