package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keikakun/authcore/password"
)

func TestLoginGrantsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := context.Background()

	result, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected both tokens in the grant")
	}
	if result.SessionType != SessionStandard {
		t.Fatalf("session type = %q, want %q", result.SessionType, SessionStandard)
	}
	if result.SessionDuration != 3600 {
		t.Fatalf("session duration = %d, want 3600", result.SessionDuration)
	}
	if result.RequiresMFA || result.RequiresMFAFirstSetup {
		t.Fatal("grant must not carry MFA flags")
	}

	identity, err := env.engine.ValidateAccess(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if identity.PrincipalID != seeded.ID {
		t.Fatalf("identity subject = %q, want %q", identity.PrincipalID, seeded.ID)
	}
	if identity.SessionType != SessionStandard {
		t.Fatalf("identity session type = %q", identity.SessionType)
	}

	if got := env.metric(MetricLoginSuccess); got != 1 {
		t.Fatalf("login success counter = %d, want 1", got)
	}
	event := env.waitAudit(t, "login_success")
	if event.ActorID != seeded.ID || !event.Success {
		t.Fatalf("unexpected audit event: %+v", event)
	}
}

func TestLoginExtendedSession(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)

	result, err := env.engine.Login(context.Background(), LoginInput{
		Email:       seeded.Email,
		Password:    testPassword,
		SessionType: SessionExtended,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.SessionType != SessionExtended {
		t.Fatalf("session type = %q, want %q", result.SessionType, SessionExtended)
	}
	if result.SessionDuration != int((12 * time.Hour).Seconds()) {
		t.Fatalf("session duration = %d, want 43200", result.SessionDuration)
	}
}

func TestLoginUnknownSessionClassFallsBack(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)

	result, err := env.engine.Login(context.Background(), LoginInput{
		Email:       seeded.Email,
		Password:    testPassword,
		SessionType: SessionType("kiosk"),
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.SessionType != SessionStandard {
		t.Fatalf("session type = %q, want fallback to %q", result.SessionType, SessionStandard)
	}
}

func TestLoginCredentialFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		input LoginInput
	}{
		{"wrong password", LoginInput{Email: seeded.Email, Password: "not the password 1"}},
		{"unknown email", LoginInput{Email: "nobody@example.com", Password: testPassword}},
		{"empty password", LoginInput{Email: seeded.Email}},
		{"empty email", LoginInput{Password: testPassword}},
	}
	for _, tc := range cases {
		if _, err := env.engine.Login(ctx, tc.input); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: err = %v, want ErrInvalidCredentials", tc.name, err)
		}
	}
}

func TestLoginStatusGates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	unverified := env.seed(t, "unverified@example.com", func(p *PrincipalRecord) {
		p.EmailVerified = false
	})
	if _, err := env.engine.Login(ctx, LoginInput{Email: unverified.Email, Password: testPassword}); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("unverified: err = %v, want ErrEmailNotVerified", err)
	}

	locked := env.seed(t, "locked@example.com", func(p *PrincipalRecord) {
		p.Locked = true
	})
	if _, err := env.engine.Login(ctx, LoginInput{Email: locked.Email, Password: testPassword}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked: err = %v, want ErrAccountLocked", err)
	}

	withdrawn := env.seed(t, "withdrawn@example.com", func(p *PrincipalRecord) {
		p.OfficeWithdrawn = true
	})
	if _, err := env.engine.Login(ctx, LoginInput{Email: withdrawn.Email, Password: testPassword}); !errors.Is(err, ErrOfficeWithdrawn) {
		t.Fatalf("withdrawn: err = %v, want ErrOfficeWithdrawn", err)
	}

	deleted := env.seed(t, "deleted@example.com", func(p *PrincipalRecord) {
		p.Deleted = true
	})
	if _, err := env.engine.Login(ctx, LoginInput{Email: deleted.Email, Password: testPassword}); !errors.Is(err, ErrAccountDeleted) {
		t.Fatalf("deleted: err = %v, want ErrAccountDeleted", err)
	}
}

func TestLoginAdminPassphrase(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.seedAdmin(t, "admin@example.com")
	ctx := context.Background()

	if _, err := env.engine.Login(ctx, LoginInput{Email: admin.Email, Password: testPassword}); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("missing passphrase: err = %v, want ErrPassphraseRequired", err)
	}
	if _, err := env.engine.Login(ctx, LoginInput{Email: admin.Email, Password: testPassword, Passphrase: "wrong phrase 1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong passphrase: err = %v, want ErrInvalidCredentials", err)
	}

	result, err := env.engine.Login(ctx, LoginInput{Email: admin.Email, Password: testPassword, Passphrase: testPassword})
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected a session grant")
	}
}

func TestLoginAdminExemptFromOfficeGate(t *testing.T) {
	env := newTestEnv(t, nil)
	passHash, err := env.engine.passwordHash.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	admin := env.seed(t, "admin@example.com", func(p *PrincipalRecord) {
		p.Role = RoleAdmin
		p.PassphraseHash = passHash
		p.OfficeWithdrawn = true
	})

	if _, err := env.engine.Login(context.Background(), LoginInput{
		Email:      admin.Email,
		Password:   testPassword,
		Passphrase: testPassword,
	}); err != nil {
		t.Fatalf("withdrawn admin should still log in: %v", err)
	}
}

func TestLoginLocksAccountAtThreshold(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Password.MaxFailedAttempts = 3
		cfg.Attempts.Policies[ActionLogin] = AttemptPolicy{Window: time.Minute, MaxAttempts: 10}
	})
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: "wrong password 1"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}

	if got := env.record(t, seeded.ID); !got.Locked {
		t.Fatal("account should be locked after the third failure")
	}
	if got := env.metric(MetricAccountLocked); got != 1 {
		t.Fatalf("account locked counter = %d, want 1", got)
	}

	// The correct password no longer helps.
	if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("post-lock login: err = %v, want ErrAccountLocked", err)
	}
}

func TestLoginRateLimitWindow(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Password.MaxFailedAttempts = 10
		cfg.Attempts.Policies[ActionLogin] = AttemptPolicy{Window: time.Minute, MaxAttempts: 2}
	})
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: "wrong password 1"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}

	// The window is exhausted even for the correct password.
	if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("throttled login: err = %v, want ErrRateLimited", err)
	}
	if got := env.metric(MetricLoginRateLimited); got != 1 {
		t.Fatalf("rate limited counter = %d, want 1", got)
	}

	// A different source IP has its own window.
	otherCtx := WithClientIP(context.Background(), "203.0.113.8")
	if _, err := env.engine.Login(otherCtx, LoginInput{Email: seeded.Email, Password: testPassword}); err != nil {
		t.Fatalf("login from second ip: %v", err)
	}

	// The window expires on its own.
	env.mini.FastForward(2 * time.Minute)
	if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword}); err != nil {
		t.Fatalf("login after window expiry: %v", err)
	}
}

func TestLoginSuccessResetsFailureState(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Attempts.Policies[ActionLogin] = AttemptPolicy{Window: time.Minute, MaxAttempts: 3}
	})
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: "wrong password 1"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	if got := env.record(t, seeded.ID); got.FailedPasswordAttempts != 2 {
		t.Fatalf("failed attempts = %d, want 2", got.FailedPasswordAttempts)
	}

	if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := env.record(t, seeded.ID); got.FailedPasswordAttempts != 0 {
		t.Fatalf("failed attempts after success = %d, want 0", got.FailedPasswordAttempts)
	}

	// The attempt window was also reset: a fresh budget of failures fits.
	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: "wrong password 1"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-reset attempt %d: err = %v", i, err)
		}
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t, nil)

	// Seed with a hash minted under different cost parameters than the engine
	// runs with.
	legacy, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("legacy hasher: %v", err)
	}
	legacyHash, err := legacy.Hash(testPassword)
	if err != nil {
		t.Fatalf("legacy hash: %v", err)
	}
	seeded := env.seed(t, "alice@example.com", func(p *PrincipalRecord) {
		p.PasswordHash = legacyHash
	})

	if _, err := env.engine.Login(context.Background(), LoginInput{Email: seeded.Email, Password: testPassword}); err != nil {
		t.Fatalf("login: %v", err)
	}

	upgraded := env.record(t, seeded.ID)
	if upgraded.PasswordHash == legacyHash {
		t.Fatal("password hash should have been rehashed at current cost")
	}
	ok, err := env.engine.passwordHash.Verify(testPassword, upgraded.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("upgraded hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestLoginAttemptRecordedDespiteCancelledContext(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Attempts.Policies[ActionLogin] = AttemptPolicy{Window: time.Minute, MaxAttempts: 1}
	})
	seeded := env.seed(t, "alice@example.com", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.engine.directory = &haltingDirectory{memDirectory: env.directory, cancel: cancel}

	failed, err := env.engine.Login(WithClientIP(ctx, "198.51.100.7"), LoginInput{Email: seeded.Email, Password: "wrong pass 9"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("cancelled attempt: err = %v, want ErrInvalidCredentials", err)
	}
	if failed != nil {
		t.Fatal("failed login must not grant anything")
	}

	// The window advanced even though the caller's context died mid-flow, so
	// the next attempt from the same subject is throttled.
	fresh := WithClientIP(context.Background(), "198.51.100.7")
	if _, err := env.engine.Login(fresh, LoginInput{Email: seeded.Email, Password: testPassword}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("follow-up login: err = %v, want ErrRateLimited", err)
	}
}

func TestLoginRecordsClientIPOnAudit(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.4"), "tester/1.0")
	if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword}); err != nil {
		t.Fatalf("login: %v", err)
	}

	event := env.waitAudit(t, "login_success")
	if event.IP != "198.51.100.4" {
		t.Fatalf("audit ip = %q", event.IP)
	}
	if event.UserAgent != "tester/1.0" {
		t.Fatalf("audit user agent = %q", event.UserAgent)
	}
}
