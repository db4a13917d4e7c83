package idcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/guildworks/idcore/capability"
	"github.com/guildworks/idcore/internal/limiters"
	internalmetrics "github.com/guildworks/idcore/internal/metrics"
	"github.com/guildworks/idcore/internal/notify"
	"github.com/guildworks/idcore/internal/rate"
	"github.com/guildworks/idcore/password"
	"github.com/guildworks/idcore/token"
)

// Builder assembles an Engine. A Builder is single-use: Build can be
// called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory DirectoryStore
	notifier  Notifier
	auditSink AuditSink
	logger    Logger
	registry  *capability.Registry

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the shared rate-limit store. Required when more
// than one process serves logins; without it an in-process store is
// used and limits apply per instance only.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory wires the host's member directory. Required.
func (b *Builder) WithDirectory(store DirectoryStore) *Builder {
	b.directory = store
	return b
}

// WithNotifier wires outbound notification delivery. Without it the
// engine still runs but dispatches nothing.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink wires the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger replaces the default logrus logger.
func (b *Builder) WithLogger(l Logger) *Builder {
	b.logger = l
	return b
}

// WithCapabilityRegistry replaces the default capability whitelist.
// The registry is frozen during Build if the caller has not frozen it.
func (b *Builder) WithCapabilityRegistry(r *capability.Registry) *Builder {
	b.registry = r
	return b
}

// WithMetricsEnabled toggles the metrics store.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, constructs every component, and
// starts the background workers.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("directory store required")
	}

	logger := b.logger
	if logger == nil {
		logger = newDefaultLogger()
	}

	hasher, err := password.NewHasher(password.Config{
		Pepper:      cfg.Password.Pepper,
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		ActionTTL:     cfg.Token.ActionTTL,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	var store rate.Store
	if b.redis != nil {
		store = rate.NewRedisStore(b.redis)
	} else {
		store = rate.NewMemoryStore()
	}

	engine := &Engine{
		config:    cfg,
		logger:    logger,
		directory: b.directory,
		notifier:  b.notifier,
		hasher:    hasher,
		tokens:    tokens,
		deriver:   capability.NewDeriver(b.registry),
	}

	engine.loginLimiter = limiters.NewLoginLimiter(store, limiters.LoginConfig{
		Enabled:     cfg.Login.Enabled,
		MaxAttempts: cfg.Login.MaxAttempts,
		Window:      cfg.Login.Window,
		Lockout:     cfg.Login.Lockout,
	})
	engine.recoveryLimiter = limiters.NewRecoveryLimiter(store, limiters.RecoveryConfig{
		MaxPerEmail:  cfg.Recovery.MaxPerEmail,
		MaxPerOrigin: cfg.Recovery.MaxPerOrigin,
		Window:       cfg.Recovery.Window,
		Lockout:      cfg.Recovery.Lockout,
	})

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Metrics.Enabled,
		EnableLatency: cfg.Metrics.EnableLatencyHistograms,
	})
	engine.background = notify.NewDispatcher(notify.Config{
		BufferSize: cfg.Notify.BufferSize,
		Timeout:    cfg.Notify.Timeout,
	}, logger.Warnf)

	b.built = true

	return engine, nil
}
