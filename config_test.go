package authcore

import (
	"strings"
	"testing"
	"time"
)

// validTestConfig is DefaultConfig with the key material Build would require.
func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Security.MFAEncryptionKey = []byte("abcdefghijklmnopqrstuvwxyz012345")
	return cfg
}

func TestDefaultConfigValidatesWithKeys(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestConfigValidationRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }, "signing method"},
		{"hs256 without key", func(c *Config) { c.JWT.PrivateKey = nil }, "PrivateKey"},
		{"ed25519 without public key", func(c *Config) { c.JWT.SigningMethod = "ed25519"; c.JWT.PublicKey = nil }, "ed25519"},
		{"zero refresh ttl", func(c *Config) { c.JWT.RefreshTTL = 0 }, "RefreshTTL"},
		{"zero temporary ttl", func(c *Config) { c.JWT.TemporaryTTL = 0 }, "TemporaryTTL"},
		{"oversized leeway", func(c *Config) { c.JWT.Leeway = 5 * time.Minute }, "Leeway"},
		{"no session durations", func(c *Config) { c.Session.Durations = nil }, "Durations"},
		{"default class unconfigured", func(c *Config) { c.Session.DefaultType = SessionType("kiosk") }, "DefaultType"},
		{"argon2 memory too low", func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		{"salt too short", func(c *Config) { c.Password.SaltLength = 8 }, "SaltLength"},
		{"min length too low", func(c *Config) { c.Password.MinLength = 4 }, "MinLength"},
		{"zero lockout threshold", func(c *Config) { c.Password.MaxFailedAttempts = 0 }, "MaxFailedAttempts"},
		{"breach without endpoint", func(c *Config) { c.Breach.Endpoint = "" }, "Endpoint"},
		{"odd totp digits", func(c *Config) { c.TOTP.Digits = 7 }, "Digits"},
		{"short totp period", func(c *Config) { c.TOTP.Period = 10 }, "Period"},
		{"short recovery codes", func(c *Config) { c.TOTP.RecoveryCodeLength = 4 }, "RecoveryCodeLength"},
		{"missing attempt policy", func(c *Config) { delete(c.Attempts.Policies, ActionMFAVerify) }, "policy missing"},
		{"zero attempt window", func(c *Config) {
			c.Attempts.Policies[ActionLogin] = AttemptPolicy{Window: 0, MaxAttempts: 5}
		}, "Window"},
		{"zero reset ttl", func(c *Config) { c.Reset.TTL = 0 }, "Reset TTL"},
		{"zero verification attempts", func(c *Config) { c.Verification.MaxAttempts = 0 }, "Verification MaxAttempts"},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, "BufferSize"},
		{"wrong mfa key size", func(c *Config) { c.Security.MFAEncryptionKey = []byte("short") }, "32 bytes"},
	}

	for _, tc := range cases {
		cfg := validTestConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantMsg) {
			t.Fatalf("%s: err = %q, want mention of %q", tc.name, err, tc.wantMsg)
		}
	}
}

func TestProductionModeHardening(t *testing.T) {
	base := func() Config {
		cfg := validTestConfig()
		cfg.Security.ProductionMode = true
		return cfg
	}

	hardened := base()
	if err := hardened.Validate(); err != nil {
		t.Fatalf("hardened defaults should pass: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short hs256 key", func(c *Config) { c.JWT.PrivateKey = []byte("short-key") }},
		{"cheap argon2 memory", func(c *Config) { c.Password.Memory = 8 * 1024 }},
		{"single-pass argon2", func(c *Config) { c.Password.Time = 1 }},
		{"short derived key", func(c *Config) { c.Password.KeyLength = 16 }},
		{"long refresh ttl", func(c *Config) { c.JWT.RefreshTTL = 60 * 24 * time.Hour }},
		{"long temporary ttl", func(c *Config) { c.JWT.TemporaryTTL = time.Hour }},
		{"breach screening off", func(c *Config) { c.Breach.Enabled = false }},
		{"wide totp skew", func(c *Config) { c.TOTP.Skew = 5 }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: production mode should reject this", tc.name)
		}
	}
}

func TestSessionConfigDurationFallback(t *testing.T) {
	cfg := validTestConfig()

	if got := cfg.Session.Duration(SessionExtended); got != 12*time.Hour {
		t.Fatalf("extended duration = %v", got)
	}
	if got := cfg.Session.Duration(SessionType("kiosk")); got != time.Hour {
		t.Fatalf("unknown class duration = %v, want default", got)
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	original := validTestConfig()
	cloned := cloneConfig(original)

	cloned.JWT.PrivateKey[0] = 'X'
	cloned.Session.Durations[SessionStandard] = time.Second
	cloned.Attempts.Policies[ActionLogin] = AttemptPolicy{Window: time.Second, MaxAttempts: 1}

	if original.JWT.PrivateKey[0] == 'X' {
		t.Fatal("private key shared between clone and original")
	}
	if original.Session.Durations[SessionStandard] != time.Hour {
		t.Fatal("session durations shared between clone and original")
	}
	if original.Attempts.Policies[ActionLogin].MaxAttempts == 1 {
		t.Fatal("attempt policies shared between clone and original")
	}
}
