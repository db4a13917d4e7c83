package idcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guildworks/idcore/capability"
	"github.com/guildworks/idcore/internal/flows"
	"github.com/guildworks/idcore/internal/limiters"
	internalmetrics "github.com/guildworks/idcore/internal/metrics"
	"github.com/guildworks/idcore/internal/notify"
	"github.com/guildworks/idcore/internal/rate"
	"github.com/guildworks/idcore/password"
	"github.com/guildworks/idcore/token"
)

// Engine is the identity core. Build one through the Builder and treat
// it as immutable; all operations are safe for concurrent use.
type Engine struct {
	config          Config
	logger          Logger
	directory       DirectoryStore
	notifier        Notifier
	hasher          *password.Hasher
	tokens          *token.Manager
	deriver         *capability.Deriver
	loginLimiter    *limiters.LoginLimiter
	recoveryLimiter *limiters.RecoveryLimiter
	audit           *auditDispatcher
	metrics         *internalmetrics.Metrics
	background      *notify.Dispatcher
}

// Close flushes the background dispatcher and the audit queue. Pending
// notifications and audit events are drained before Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.background != nil {
		e.background.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// BackgroundDropped reports background tasks dropped under backpressure.
func (e *Engine) BackgroundDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.background.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Validate verifies an access token and returns its subject, email, and
// capability list. Purely local: no directory or store round trip.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, err := e.tokens.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return &AuthResult{
		SubjectID:    claims.Subject,
		Email:        claims.Email,
		Capabilities: claims.Capabilities,
	}, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricIncInt(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) warnf(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Warnf(format, args...)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, subjectID, email string, failure error, metaFn func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		EventID:   uuid.NewString(),
		SubjectID: subjectID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	if metaFn != nil {
		event.Metadata = metaFn()
	}

	e.audit.Emit(ctx, event)
}

// mapDirectoryError passes documented sentinels through and wraps
// everything else as infrastructure failure.
func (e *Engine) mapDirectoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrIdentityNotFound),
		errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrCredentialAlreadySet),
		errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func (e *Engine) mapLimiterError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricRateLimitHit)
		return ErrLoginRateLimited
	case errors.Is(err, rate.ErrStoreUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// deriveCapabilities resolves the identity's relationship flags and
// projects them through the grant table.
func (e *Engine) deriveCapabilities(ctx context.Context, subjectID string) ([]string, error) {
	flags, err := e.directory.FlagsFor(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	set := make(capability.FlagSet, len(flags))
	for name, on := range flags {
		if on {
			set[capability.Flag(name)] = true
		}
	}
	return e.deriver.Derive(set), nil
}

// submitNotification queues delivery off the request path. Failures are
// counted and logged, never surfaced.
func (e *Engine) submitNotification(kind, email string, params map[string]string) {
	if e == nil || e.notifier == nil || e.background == nil {
		return
	}

	n := Notification{Kind: kind, Email: email, Params: params}
	e.background.Submit(notify.Task{
		Name: "notify:" + kind,
		Run: func(ctx context.Context) error {
			if err := e.notifier.Send(ctx, n); err != nil {
				e.metricInc(MetricNotifyFailed)
				return err
			}
			e.metricInc(MetricNotifyDispatched)
			return nil
		},
	})
}

func (e *Engine) submitTouchLastLogin(subjectID string) {
	if e == nil || e.background == nil {
		return
	}

	at := time.Now().UTC()
	e.background.Submit(notify.Task{
		Name: "touch_last_login",
		Run: func(ctx context.Context) error {
			return e.directory.TouchLastLogin(ctx, subjectID, at)
		},
	})
}

func toIdentityRecord(id *Identity) flows.IdentityRecord {
	if id == nil {
		return flows.IdentityRecord{}
	}
	return flows.IdentityRecord{
		ID:           id.ID,
		Email:        id.Email,
		PasswordHash: id.PasswordHash,
		DisplayName:  id.DisplayName,
		Active:       id.Active,
	}
}

func (e *Engine) findRecordByEmail(ctx context.Context, email string) (flows.IdentityRecord, error) {
	id, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		return flows.IdentityRecord{}, err
	}
	return toIdentityRecord(id), nil
}

func (e *Engine) findRecordByID(ctx context.Context, subjectID string) (flows.IdentityRecord, error) {
	id, err := e.directory.FindByID(ctx, subjectID)
	if err != nil {
		return flows.IdentityRecord{}, err
	}
	return toIdentityRecord(id), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound)
}
