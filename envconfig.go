package idcore

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// envOverrides maps IDCORE_* environment variables onto Config. Key
// material is base64 so binary ed25519 keys survive the environment.
type envOverrides struct {
	SigningMethod string        `env:"IDCORE_TOKEN_SIGNING_METHOD"`
	PrivateKeyB64 string        `env:"IDCORE_TOKEN_PRIVATE_KEY"`
	PublicKeyB64  string        `env:"IDCORE_TOKEN_PUBLIC_KEY"`
	Issuer        string        `env:"IDCORE_TOKEN_ISSUER"`
	AccessTTL     time.Duration `env:"IDCORE_TOKEN_ACCESS_TTL"`
	RefreshTTL    time.Duration `env:"IDCORE_TOKEN_REFRESH_TTL"`
	ActionTTL     time.Duration `env:"IDCORE_TOKEN_ACTION_TTL"`

	PepperB64      string `env:"IDCORE_PASSWORD_PEPPER"`
	UpgradeOnLogin *bool  `env:"IDCORE_PASSWORD_UPGRADE_ON_LOGIN"`

	LoginMaxAttempts *int           `env:"IDCORE_LOGIN_MAX_ATTEMPTS"`
	LoginWindow      *time.Duration `env:"IDCORE_LOGIN_WINDOW"`
	LoginLockout     *time.Duration `env:"IDCORE_LOGIN_LOCKOUT"`

	RecoveryMaxPerEmail  *int           `env:"IDCORE_RECOVERY_MAX_PER_EMAIL"`
	RecoveryMaxPerOrigin *int           `env:"IDCORE_RECOVERY_MAX_PER_ORIGIN"`
	RecoveryWindow       *time.Duration `env:"IDCORE_RECOVERY_WINDOW"`
	RecoveryLockout      *time.Duration `env:"IDCORE_RECOVERY_LOCKOUT"`

	MetricsEnabled *bool `env:"IDCORE_METRICS_ENABLED"`
	AuditEnabled   *bool `env:"IDCORE_AUDIT_ENABLED"`
}

// ConfigFromEnv returns DefaultConfig with IDCORE_* overrides applied.
// Unset variables keep their defaults.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if o.SigningMethod != "" {
		cfg.Token.SigningMethod = o.SigningMethod
	}
	if o.PrivateKeyB64 != "" {
		key, err := base64.StdEncoding.DecodeString(o.PrivateKeyB64)
		if err != nil {
			return Config{}, fmt.Errorf("decode IDCORE_TOKEN_PRIVATE_KEY: %w", err)
		}
		cfg.Token.PrivateKey = key
	}
	if o.PublicKeyB64 != "" {
		key, err := base64.StdEncoding.DecodeString(o.PublicKeyB64)
		if err != nil {
			return Config{}, fmt.Errorf("decode IDCORE_TOKEN_PUBLIC_KEY: %w", err)
		}
		cfg.Token.PublicKey = key
	}
	if o.Issuer != "" {
		cfg.Token.Issuer = o.Issuer
	}
	if o.AccessTTL > 0 {
		cfg.Token.AccessTTL = o.AccessTTL
	}
	if o.RefreshTTL > 0 {
		cfg.Token.RefreshTTL = o.RefreshTTL
	}
	if o.ActionTTL > 0 {
		cfg.Token.ActionTTL = o.ActionTTL
	}

	if o.PepperB64 != "" {
		pepper, err := base64.StdEncoding.DecodeString(o.PepperB64)
		if err != nil {
			return Config{}, fmt.Errorf("decode IDCORE_PASSWORD_PEPPER: %w", err)
		}
		cfg.Password.Pepper = pepper
	}
	if o.UpgradeOnLogin != nil {
		cfg.Password.UpgradeOnLogin = *o.UpgradeOnLogin
	}

	if o.LoginMaxAttempts != nil {
		cfg.Login.MaxAttempts = *o.LoginMaxAttempts
	}
	if o.LoginWindow != nil {
		cfg.Login.Window = *o.LoginWindow
	}
	if o.LoginLockout != nil {
		cfg.Login.Lockout = *o.LoginLockout
	}

	if o.RecoveryMaxPerEmail != nil {
		cfg.Recovery.MaxPerEmail = *o.RecoveryMaxPerEmail
	}
	if o.RecoveryMaxPerOrigin != nil {
		cfg.Recovery.MaxPerOrigin = *o.RecoveryMaxPerOrigin
	}
	if o.RecoveryWindow != nil {
		cfg.Recovery.Window = *o.RecoveryWindow
	}
	if o.RecoveryLockout != nil {
		cfg.Recovery.Lockout = *o.RecoveryLockout
	}

	if o.MetricsEnabled != nil {
		cfg.Metrics.Enabled = *o.MetricsEnabled
	}
	if o.AuditEnabled != nil {
		cfg.Audit.Enabled = *o.AuditEnabled
	}

	return cfg, nil
}

var envConfigCache struct {
	mu     sync.Mutex
	loaded bool
	cfg    Config
	err    error
}

// LoadConfigFromEnv parses the environment once per process and returns
// the cached result on later calls. Secrets read here stay fixed until
// ReloadConfigFromEnv forces a re-read.
func LoadConfigFromEnv() (Config, error) {
	envConfigCache.mu.Lock()
	defer envConfigCache.mu.Unlock()

	if !envConfigCache.loaded {
		envConfigCache.cfg, envConfigCache.err = ConfigFromEnv()
		envConfigCache.loaded = true
	}
	if envConfigCache.err != nil {
		return Config{}, envConfigCache.err
	}
	return cloneConfig(envConfigCache.cfg), nil
}

// ReloadConfigFromEnv discards the cached configuration and re-reads the
// environment, for rotated peppers or signing keys.
func ReloadConfigFromEnv() (Config, error) {
	envConfigCache.mu.Lock()
	envConfigCache.loaded = false
	envConfigCache.mu.Unlock()

	return LoadConfigFromEnv()
}
