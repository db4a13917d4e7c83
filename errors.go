package idcore

import "errors"

var (
	// ErrEngineNotReady is returned when a required collaborator was not
	// wired before use.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidInput is returned for structurally invalid input such as
	// a malformed email address.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is the merged failure for unknown email and
	// wrong password. The wording is fixed; callers must not elaborate.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCredentialUnset is returned when the identity exists but no
	// password has been established yet. Deliberately distinguishable
	// from ErrInvalidCredentials so the caller can point the user at the
	// recovery flow.
	ErrCredentialUnset = errors.New("credential not established")
	// ErrTokenInvalid covers every token verification failure uniformly.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrLoginRateLimited is returned when the failed-login limiter is
	// over budget for the identifier or origin.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrAccountExists is returned when account creation targets an
	// email that already belongs to an active identity.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountInactive is returned when account creation targets an
	// email held by a deactivated identity.
	ErrAccountInactive = errors.New("account exists but is inactive")
	// ErrCredentialAlreadySet is returned when password setup races with
	// another setup that won.
	ErrCredentialAlreadySet = errors.New("credential already established")
	// ErrIdentityNotFound is returned by DirectoryStore implementations
	// when no identity matches, and surfaces from operations that name a
	// subject explicitly.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrPasswordPolicy is returned when a supplied password fails the
	// hashing policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrStoreUnavailable wraps infrastructure failures from the
	// directory or the rate-limit store.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)

// Kind classifies an error into the coarse category a transport layer
// maps to a status code.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindInvalidCredentials
	KindCredentialUnset
	KindInvalidToken
	KindConflict
	KindNotFound
	KindRateLimited
	KindInfrastructure
)

// KindOf classifies err against the package sentinels. Wrapped sentinels
// classify the same as bare ones. Unrecognized errors are KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrPasswordPolicy):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrCredentialUnset):
		return KindCredentialUnset
	case errors.Is(err, ErrTokenInvalid):
		return KindInvalidToken
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrCredentialAlreadySet):
		return KindConflict
	case errors.Is(err, ErrIdentityNotFound):
		return KindNotFound
	case errors.Is(err, ErrLoginRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrEngineNotReady):
		return KindInfrastructure
	default:
		return KindUnknown
	}
}
