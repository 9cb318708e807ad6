package authcore

import (
	"errors"
	"time"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT          JWTConfig
	Session      SessionConfig
	Password     PasswordConfig
	Breach       BreachConfig
	TOTP         TOTPConfig
	Attempts     AttemptsConfig
	Reset        ResetConfig
	Verification VerificationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	Security     SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by authcore APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	RefreshTTL    time.Duration
	TemporaryTTL  time.Duration
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig maps session classes to access-token lifetimes. The class
// granted at login is embedded in both tokens and preserved across refreshes.
type SessionConfig struct {
	Durations   map[SessionType]time.Duration
	DefaultType SessionType
}

// Duration returns the configured lifetime for the given session class,
// falling back to the default class when the class is unknown.
func (c SessionConfig) Duration(t SessionType) time.Duration {
	if d, ok := c.Durations[t]; ok {
		return d
	}
	return c.Durations[c.DefaultType]
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authcore APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength             int
	RequireLetterAndDigit bool
	HistoryDepth          int
	MaxFailedAttempts     int
}

// BreachConfig defines a public type used by authcore APIs.
//
// BreachConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BreachConfig struct {
	Enabled  bool
	Endpoint string
	Timeout  time.Duration
}

// TOTPConfig defines a public type used by authcore APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int

	RecoveryCodeCount  int
	RecoveryCodeLength int
}

/*
====================================
ATTEMPTS CONFIG
====================================
*/

// AttemptAction names a guarded operation in the attempt policy table.
type AttemptAction string

const (
	// ActionLogin is an exported constant or variable used by the authentication engine.
	ActionLogin AttemptAction = "login"
	// ActionPasswordChange is an exported constant or variable used by the authentication engine.
	ActionPasswordChange AttemptAction = "password_change"
	// ActionPasswordReset is an exported constant or variable used by the authentication engine.
	ActionPasswordReset AttemptAction = "password_reset"
	// ActionMFAVerify is an exported constant or variable used by the authentication engine.
	ActionMFAVerify AttemptAction = "mfa_verify"
	// ActionEmailVerification is an exported constant or variable used by the authentication engine.
	ActionEmailVerification AttemptAction = "email_verification"
)

// AttemptPolicy is one row of the policy table: a fixed rate-limit window and
// the attempt budget inside it. The same table drives request throttling and
// the per-action counters; account lockout uses
// [PasswordConfig.MaxFailedAttempts] on the directory-side counter.
type AttemptPolicy struct {
	Window      time.Duration
	MaxAttempts int
}

// AttemptsConfig defines a public type used by authcore APIs.
//
// AttemptsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AttemptsConfig struct {
	Policies map[AttemptAction]AttemptPolicy
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ResetConfig defines a public type used by authcore APIs.
//
// ResetConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ResetConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// VerificationConfig defines a public type used by authcore APIs.
//
// VerificationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type VerificationConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// AuditConfig defines a public type used by authcore APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig defines a public type used by authcore APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode bool

	// MFAEncryptionKey protects TOTP secrets at rest. Exactly 32 bytes.
	MFAEncryptionKey []byte
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers must still supply
// signing material and the MFA encryption key before Build succeeds.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			Issuer:        "keikakun",
			RefreshTTL:    7 * 24 * time.Hour,
			TemporaryTTL:  10 * time.Minute,
		},
		Session: SessionConfig{
			Durations: map[SessionType]time.Duration{
				SessionStandard: time.Hour,
				SessionExtended: 12 * time.Hour,
			},
			DefaultType: SessionStandard,
		},
		Password: PasswordConfig{
			Memory:                65536,
			Time:                  3,
			Parallelism:           2,
			SaltLength:            16,
			KeyLength:             32,
			MinLength:             10,
			RequireLetterAndDigit: true,
			HistoryDepth:          3,
			MaxFailedAttempts:     5,
		},
		Breach: BreachConfig{
			Enabled:  true,
			Endpoint: "https://api.pwnedpasswords.com/range/",
			Timeout:  5 * time.Second,
		},
		TOTP: TOTPConfig{
			Issuer:             "Keikakun",
			Digits:             6,
			Period:             30,
			Algorithm:          "SHA1",
			Skew:               1,
			RecoveryCodeCount:  10,
			RecoveryCodeLength: 16,
		},
		Attempts: AttemptsConfig{
			Policies: map[AttemptAction]AttemptPolicy{
				ActionLogin:             {Window: time.Minute, MaxAttempts: 5},
				ActionPasswordChange:    {Window: time.Hour, MaxAttempts: 3},
				ActionPasswordReset:     {Window: time.Hour, MaxAttempts: 5},
				ActionMFAVerify:         {Window: time.Minute, MaxAttempts: 5},
				ActionEmailVerification: {Window: time.Hour, MaxAttempts: 5},
			},
		},
		Reset: ResetConfig{
			TTL:         30 * time.Minute,
			MaxAttempts: 5,
		},
		Verification: VerificationConfig{
			TTL:         24 * time.Hour,
			MaxAttempts: 5,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Security.MFAEncryptionKey = cloneBytes(cfg.Security.MFAEncryptionKey)

	if cfg.Session.Durations != nil {
		out.Session.Durations = make(map[SessionType]time.Duration, len(cfg.Session.Durations))
		for k, v := range cfg.Session.Durations {
			out.Session.Durations[k] = v
		}
	}
	if cfg.Attempts.Policies != nil {
		out.Attempts.Policies = make(map[AttemptAction]AttemptPolicy, len(cfg.Attempts.Policies))
		for k, v := range cfg.Attempts.Policies {
			out.Attempts.Policies[k] = v
		}
	}

	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "ed25519" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && (len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0) {
		return errors.New("ed25519 requires PrivateKey and PublicKey")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.TemporaryTTL <= 0 {
		return errors.New("JWT TemporaryTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if len(c.Session.Durations) == 0 {
		return errors.New("Session Durations must not be empty")
	}
	for t, d := range c.Session.Durations {
		if d <= 0 {
			return errors.New("Session duration for class " + string(t) + " must be > 0")
		}
	}
	if _, ok := c.Session.Durations[c.Session.DefaultType]; !ok {
		return errors.New("Session DefaultType has no configured duration")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.HistoryDepth < 0 {
		return errors.New("Password HistoryDepth must be >= 0")
	}
	if c.Password.MaxFailedAttempts <= 0 {
		return errors.New("Password MaxFailedAttempts must be > 0")
	}

	// Breach
	if c.Breach.Enabled {
		if c.Breach.Endpoint == "" {
			return errors.New("Breach Endpoint is required when breach screening is enabled")
		}
		if c.Breach.Timeout <= 0 {
			return errors.New("Breach Timeout must be > 0")
		}
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	if c.TOTP.RecoveryCodeCount <= 0 {
		return errors.New("TOTP RecoveryCodeCount must be > 0")
	}
	if c.TOTP.RecoveryCodeLength < 8 {
		return errors.New("TOTP RecoveryCodeLength must be >= 8")
	}

	// Attempts
	if len(c.Attempts.Policies) == 0 {
		return errors.New("Attempts Policies must not be empty")
	}
	for _, action := range []AttemptAction{ActionLogin, ActionPasswordChange, ActionPasswordReset, ActionMFAVerify, ActionEmailVerification} {
		policy, ok := c.Attempts.Policies[action]
		if !ok {
			return errors.New("Attempts policy missing for action " + string(action))
		}
		if policy.Window <= 0 {
			return errors.New("Attempts Window must be > 0 for action " + string(action))
		}
		if policy.MaxAttempts <= 0 {
			return errors.New("Attempts MaxAttempts must be > 0 for action " + string(action))
		}
	}

	// Challenges
	if c.Reset.TTL <= 0 {
		return errors.New("Reset TTL must be > 0")
	}
	if c.Reset.MaxAttempts <= 0 {
		return errors.New("Reset MaxAttempts must be > 0")
	}
	if c.Verification.TTL <= 0 {
		return errors.New("Verification TTL must be > 0")
	}
	if c.Verification.MaxAttempts <= 0 {
		return errors.New("Verification MaxAttempts must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Security
	if len(c.Security.MFAEncryptionKey) != 32 {
		return errors.New("Security MFAEncryptionKey must be exactly 32 bytes")
	}

	if c.Security.ProductionMode {
		if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
			return errors.New("ProductionMode requires hs256 key length >= 256 bits")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires JWT RefreshTTL <= 30d")
		}
		if c.JWT.TemporaryTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT TemporaryTTL <= 15m")
		}
		if !c.Breach.Enabled {
			return errors.New("ProductionMode requires breach screening")
		}
		if c.TOTP.Skew > 2 {
			return errors.New("ProductionMode requires TOTP Skew <= 2")
		}
	}

	return nil
}
