package authcore

import "time"

// SecurityReport is a safe summary of the engine's effective security
// posture. It carries no key material and is suitable for logging at startup
// or exposing on an operator endpoint.
type SecurityReport struct {
	ProductionMode   bool
	SigningAlgorithm string
	RefreshTTL       time.Duration
	TemporaryTTL     time.Duration
	SessionTTLs      map[SessionType]time.Duration

	Argon2 PasswordConfigReport

	BreachScreeningEnabled bool
	PasswordHistoryDepth   int
	LockoutThreshold       int
	RecoveryCodeCount      int

	AuditEnabled   bool
	MetricsEnabled bool
}

// PasswordConfigReport mirrors the Argon2id cost parameters in effect.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport builds the posture summary from the engine's configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	ttls := make(map[SessionType]time.Duration, len(e.config.Session.Durations))
	for class, d := range e.config.Session.Durations {
		ttls[class] = d
	}

	return SecurityReport{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		TemporaryTTL:     e.config.JWT.TemporaryTTL,
		SessionTTLs:      ttls,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		BreachScreeningEnabled: e.config.Breach.Enabled,
		PasswordHistoryDepth:   e.config.Password.HistoryDepth,
		LockoutThreshold:       e.config.Password.MaxFailedAttempts,
		RecoveryCodeCount:      e.config.TOTP.RecoveryCodeCount,
		AuditEnabled:           e.config.Audit.Enabled,
		MetricsEnabled:         e.config.Metrics.Enabled,
	}
}
