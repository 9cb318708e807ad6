package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestLockAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.engine.LockAccount(ctx, seeded.ID); err != nil {
		t.Fatalf("lock account: %v", err)
	}
	if got := env.record(t, seeded.ID); !got.Locked {
		t.Fatal("account should be locked")
	}

	// The lock also swept the issued refresh tokens.
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrRefreshTokenRevoked) && !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("refresh after lock: err = %v", err)
	}
	if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("login after lock: err = %v, want ErrAccountLocked", err)
	}

	// Locking twice is idempotent.
	if err := env.engine.LockAccount(ctx, seeded.ID); err != nil {
		t.Fatalf("second lock: %v", err)
	}
	if got := env.metric(MetricAccountLocked); got != 1 {
		t.Fatalf("locked counter = %d, want 1", got)
	}
}

func TestUnlockAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", func(p *PrincipalRecord) {
		p.Locked = true
		p.FailedPasswordAttempts = 4
	})
	ctx := context.Background()

	if err := env.engine.UnlockAccount(ctx, seeded.ID); err != nil {
		t.Fatalf("unlock account: %v", err)
	}
	got := env.record(t, seeded.ID)
	if got.Locked {
		t.Fatal("account should be unlocked")
	}
	if got.FailedPasswordAttempts != 0 {
		t.Fatalf("failed attempts = %d, want 0", got.FailedPasswordAttempts)
	}

	if _, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword}); err != nil {
		t.Fatalf("login after unlock: %v", err)
	}
}

func TestLockUnlockUnknownPrincipal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.LockAccount(ctx, "ghost"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("lock: err = %v, want ErrPrincipalNotFound", err)
	}
	if err := env.engine.UnlockAccount(ctx, "ghost"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("unlock: err = %v, want ErrPrincipalNotFound", err)
	}
	if err := env.engine.LockAccount(ctx, ""); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("empty id: err = %v, want ErrPrincipalNotFound", err)
	}
}
