package idcore

import "time"

// SecurityReport summarizes the engine's effective security posture for
// startup logging and operational review. It never includes key
// material.
type SecurityReport struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	ActionTTL          time.Duration
	Argon2             PasswordConfigReport
	PepperConfigured   bool
	UpgradeOnLogin     bool
	LoginLimiterActive bool
	RecoveryLimits     RecoveryLimitsReport
	AuditEnabled       bool
	MetricsEnabled     bool
}

// PasswordConfigReport exposes the hashing parameters in effect.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// RecoveryLimitsReport exposes the recovery throttle settings in effect.
type RecoveryLimitsReport struct {
	MaxPerEmail  int
	MaxPerOrigin int
	Window       time.Duration
	Lockout      time.Duration
	DelayMin     time.Duration
	DelayMax     time.Duration
}

// SecurityReport returns the current posture snapshot.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm: e.config.Token.SigningMethod,
		AccessTTL:        e.config.Token.AccessTTL,
		RefreshTTL:       e.config.Token.RefreshTTL,
		ActionTTL:        e.config.Token.ActionTTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		PepperConfigured:   len(e.config.Password.Pepper) > 0,
		UpgradeOnLogin:     e.config.Password.UpgradeOnLogin,
		LoginLimiterActive: e.config.Login.Enabled && e.config.Login.MaxAttempts > 0,
		RecoveryLimits: RecoveryLimitsReport{
			MaxPerEmail:  e.config.Recovery.MaxPerEmail,
			MaxPerOrigin: e.config.Recovery.MaxPerOrigin,
			Window:       e.config.Recovery.Window,
			Lockout:      e.config.Recovery.Lockout,
			DelayMin:     e.config.Recovery.DelayMin,
			DelayMax:     e.config.Recovery.DelayMax,
		},
		AuditEnabled:   e.config.Audit.Enabled,
		MetricsEnabled: e.config.Metrics.Enabled,
	}
}
