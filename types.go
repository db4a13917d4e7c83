package idcore

import (
	"context"
	"io"
	"net/mail"
	"strings"
	"time"

	internalaudit "github.com/guildworks/idcore/internal/audit"
	"github.com/guildworks/idcore/internal/flows"
	internalmetrics "github.com/guildworks/idcore/internal/metrics"
)

// Identity is the directory's view of one account as the core consumes
// it. An empty PasswordHash marks the migration state: the identity was
// provisioned by an import or an administrator and has never set a
// password.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Active       bool
	LastLoginAt  time.Time
}

// CreateIdentityInput is the payload handed to DirectoryStore.Create.
type CreateIdentityInput struct {
	Email        string
	PasswordHash string
	DisplayName  string
}

// FlagSet is the sparse boolean relationship set the directory resolves
// for one identity at query time.
type FlagSet map[string]bool

// DirectoryStore is implemented by the host application over its member
// directory. Implementations signal the documented conditions with the
// package sentinels (wrapping is fine):
//
//   - FindByEmail, FindByID: ErrIdentityNotFound when no identity matches.
//   - Create: ErrAccountExists when the email is already taken.
//   - SetPasswordHashIfUnset: ErrCredentialAlreadySet when a hash is
//     already present; the write must be atomic compare-and-set.
//   - DeleteCascade: removes the identity and all dependent records in
//     one atomic unit, or nothing at all.
//
// Any other error is treated as infrastructure failure.
type DirectoryStore interface {
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	Create(ctx context.Context, input CreateIdentityInput) (*Identity, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetPasswordHashIfUnset(ctx context.Context, id, hash string) error
	FlagsFor(ctx context.Context, id string) (FlagSet, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	DeleteCascade(ctx context.Context, id string) error
}

// Notification kinds passed to the Notifier. The set is closed; hosts
// switch on Kind to choose a template.
const (
	NotificationWelcome        = flows.KindWelcomeMail
	NotificationPasswordReset  = flows.KindPasswordResetMail
	NotificationPasswordSetup  = flows.KindPasswordSetupMail
	NotificationAccountDeleted = flows.KindAccountDeletedMail
)

// Notification is one outbound message. Params carries kind-specific
// material such as the action token under "token" and the recipient
// display name under "name".
type Notification struct {
	Kind   string
	Email  string
	Params map[string]string
}

// Notifier delivers notifications. Calls happen on a background worker
// off the request path; a returned error is logged and counted but never
// surfaces to the original requester.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	SubjectID    string
	Email        string
	DisplayName  string
	Capabilities []string
}

// CreateAccountRequest is the input to CreateAccount.
type CreateAccountRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// CreateAccountResult is returned by CreateAccount.
type CreateAccountResult struct {
	SubjectID   string
	Email       string
	DisplayName string
}

// AuthResult is returned by Validate.
type AuthResult struct {
	SubjectID    string
	Email        string
	Capabilities []string
}

// HasCapability reports whether the validated token carries name.
func (r *AuthResult) HasCapability(name string) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// AuditEvent is the audit record handed to sinks.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelAuditSink buffers audit events in a channel, mainly for tests.
type ChannelAuditSink = internalaudit.ChannelSink

// NewChannelAuditSink creates a ChannelAuditSink with the given buffer.
func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONAuditSink writes one JSON object per event to w.
func NewJSONAuditSink(w io.Writer) AuditSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies one engine counter or histogram.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of all engine metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// Engine metric identifiers.
const (
	MetricLoginSuccess             = internalmetrics.MetricLoginSuccess
	MetricLoginFailure             = internalmetrics.MetricLoginFailure
	MetricLoginCredentialUnset     = internalmetrics.MetricLoginCredentialUnset
	MetricLoginRateLimited         = internalmetrics.MetricLoginRateLimited
	MetricRefreshSuccess           = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure           = internalmetrics.MetricRefreshFailure
	MetricRecoveryRequest          = internalmetrics.MetricRecoveryRequest
	MetricRecoveryRateLimited      = internalmetrics.MetricRecoveryRateLimited
	MetricRecoveryDispatched       = internalmetrics.MetricRecoveryDispatched
	MetricResetConfirmSuccess      = internalmetrics.MetricResetConfirmSuccess
	MetricResetConfirmFailure      = internalmetrics.MetricResetConfirmFailure
	MetricSetupCompleteSuccess     = internalmetrics.MetricSetupCompleteSuccess
	MetricSetupCompleteFailure     = internalmetrics.MetricSetupCompleteFailure
	MetricSetupConflict            = internalmetrics.MetricSetupConflict
	MetricAccountCreationSuccess   = internalmetrics.MetricAccountCreationSuccess
	MetricAccountCreationDuplicate = internalmetrics.MetricAccountCreationDuplicate
	MetricAccountDeletionSuccess   = internalmetrics.MetricAccountDeletionSuccess
	MetricAccountDeletionFailure   = internalmetrics.MetricAccountDeletionFailure
	MetricNotifyDispatched         = internalmetrics.MetricNotifyDispatched
	MetricNotifyFailed             = internalmetrics.MetricNotifyFailed
	MetricRateLimitHit             = internalmetrics.MetricRateLimitHit
	MetricValidateLatency          = internalmetrics.MetricValidateLatency
)

// validateEmail performs structural validation only. Deliverability is
// the notification layer's problem.
func validateEmail(email string) error {
	if email == "" || len(email) > 254 {
		return ErrInvalidInput
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidInput
	}
	if !strings.Contains(email, "@") {
		return ErrInvalidInput
	}
	return nil
}
