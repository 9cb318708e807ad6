package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestRefreshPreservesSessionClass(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword, SessionType: SessionExtended})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.SessionType != SessionExtended {
		t.Fatalf("session type = %q, want %q", refreshed.SessionType, SessionExtended)
	}
	if refreshed.AccessToken == "" {
		t.Fatal("expected a new access token")
	}

	identity, err := env.engine.ValidateAccess(ctx, refreshed.AccessToken)
	if err != nil || identity.PrincipalID != seeded.ID {
		t.Fatalf("refreshed access token invalid: %v", err)
	}

	// No rotation: the original refresh token keeps working.
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("second refresh with the same token: %v", err)
	}
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, "not.a.token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage: err = %v, want ErrTokenInvalid", err)
	}
	// An access token is not a refresh token.
	if _, err := env.engine.Refresh(ctx, login.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token: err = %v, want ErrTokenInvalid", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.engine.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("post-logout refresh: err = %v, want ErrRefreshTokenRevoked", err)
	}

	// Repeated logout of the same token is harmless.
	if err := env.engine.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if err := env.engine.Logout(ctx, "not.a.token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage logout: err = %v, want ErrTokenInvalid", err)
	}
}

func TestRevokeSessionsKillsEveryDevice(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := env.seed(t, "alice@example.com", nil)
	ctx := context.Background()

	first, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if err := env.engine.RevokeSessions(ctx, seeded.ID); err != nil {
		t.Fatalf("revoke sessions: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("first device: err = %v, want ErrRefreshTokenRevoked", err)
	}
	if _, err := env.engine.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("second device: err = %v, want ErrRefreshTokenRevoked", err)
	}

	// A fresh login works and is unaffected by the earlier sweep.
	third, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("third login: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, third.RefreshToken); err != nil {
		t.Fatalf("post-sweep refresh: %v", err)
	}
}

func TestRefreshAccountStatusGates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	seeded := env.seed(t, "alice@example.com", nil)
	login, err := env.engine.Login(ctx, LoginInput{Email: seeded.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.directory.SetLocked(ctx, seeded.ID, true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked: err = %v, want ErrAccountLocked", err)
	}
	if err := env.directory.SetLocked(ctx, seeded.ID, false); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	if err := env.directory.mutate(seeded.ID, func(p *PrincipalRecord) { p.OfficeWithdrawn = true }); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrOfficeWithdrawn) {
		t.Fatalf("withdrawn: err = %v, want ErrOfficeWithdrawn", err)
	}

	if err := env.directory.mutate(seeded.ID, func(p *PrincipalRecord) { p.Deleted = true }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrAccountDeleted) {
		t.Fatalf("deleted: err = %v, want ErrAccountDeleted", err)
	}
}

func TestRefreshAdminSurvivesOfficeWithdrawal(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.seedAdmin(t, "admin@example.com")
	ctx := context.Background()

	login, err := env.engine.Login(ctx, LoginInput{Email: admin.Email, Password: testPassword, Passphrase: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.directory.mutate(admin.ID, func(p *PrincipalRecord) { p.OfficeWithdrawn = true }); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("admin refresh after withdrawal: %v", err)
	}
}
