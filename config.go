package idcore

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. Zero values fall back to
// the defaults from DefaultConfig during Build.
type Config struct {
	Token    TokenConfig
	Password PasswordConfig
	Login    LoginLimiterConfig
	Recovery RecoveryConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Notify   NotifyConfig
}

// TokenConfig configures signing and lifetimes.
type TokenConfig struct {
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ActionTTL     time.Duration
	Leeway        time.Duration
}

// PasswordConfig configures the peppered argon2id hasher.
type PasswordConfig struct {
	Pepper         []byte
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// LoginLimiterConfig tunes the failed-login limiter. Only failed
// attempts count toward the budget.
type LoginLimiterConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// RecoveryConfig tunes the recovery limiters and the uniform response
// delay. DelayMin/DelayMax bound the randomized delay every recovery
// request observes regardless of outcome.
type RecoveryConfig struct {
	MaxPerEmail  int
	MaxPerOrigin int
	Window       time.Duration
	Lockout      time.Duration
	DelayMin     time.Duration
	DelayMax     time.Duration
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics store.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// NotifyConfig controls the background dispatcher that carries
// notification delivery and last-login updates.
type NotifyConfig struct {
	BufferSize int
	Timeout    time.Duration
}

// DefaultConfig returns the production defaults. Key material and the
// password pepper must still be supplied by the host.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: "ed25519",
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			ActionTTL:     24 * time.Hour,
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Login: LoginLimiterConfig{
			Enabled:     true,
			MaxAttempts: 10,
			Window:      15 * time.Minute,
			Lockout:     15 * time.Minute,
		},
		Recovery: RecoveryConfig{
			MaxPerEmail:  3,
			MaxPerOrigin: 10,
			Window:       time.Hour,
			Lockout:      time.Hour,
			DelayMin:     150 * time.Millisecond,
			DelayMax:     300 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Notify: NotifyConfig{
			BufferSize: 64,
			Timeout:    10 * time.Second,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
// Hasher and token manager parameters are validated by their own
// constructors during Build.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 || c.Token.ActionTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.Login.Enabled {
		if c.Login.MaxAttempts <= 0 || c.Login.Window <= 0 || c.Login.Lockout <= 0 {
			return errors.New("login limiter requires positive attempts, window, and lockout")
		}
	}
	if c.Recovery.MaxPerEmail <= 0 || c.Recovery.MaxPerOrigin <= 0 {
		return errors.New("recovery limits must be positive")
	}
	if c.Recovery.Window <= 0 || c.Recovery.Lockout <= 0 {
		return errors.New("recovery window and lockout must be positive")
	}
	if c.Recovery.DelayMin <= 0 || c.Recovery.DelayMax < c.Recovery.DelayMin {
		return errors.New("recovery delay bounds invalid")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Password.Pepper = cloneBytes(cfg.Password.Pepper)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
