package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBlacklistStore(t *testing.T) (*blacklistStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return newBlacklistStore(client), mr
}

func TestBlacklistRevokeAndQuery(t *testing.T) {
	store, _ := newTestBlacklistStore(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("fresh jti: revoked=%v err=%v", revoked, err)
	}

	if err := store.Revoke(ctx, "jti-1", revokeReasonLogout, expiresAt); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err = store.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("revoked jti: revoked=%v err=%v", revoked, err)
	}

	// Revoking again is a no-op, not an error.
	if err := store.Revoke(ctx, "jti-1", revokeReasonLogout, expiresAt); err != nil {
		t.Fatalf("re-revoke: %v", err)
	}
}

func TestBlacklistExpiredTokenIsNoOp(t *testing.T) {
	store, _ := newTestBlacklistStore(t)
	ctx := context.Background()

	// A token past its natural expiry needs no blacklist entry.
	if err := store.Revoke(ctx, "jti-old", revokeReasonLogout, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("revoke expired: %v", err)
	}
	revoked, err := store.IsRevoked(ctx, "jti-old")
	if err != nil || revoked {
		t.Fatalf("expired jti: revoked=%v err=%v", revoked, err)
	}
}

func TestBlacklistEntryExpiresWithToken(t *testing.T) {
	store, mr := newTestBlacklistStore(t)
	ctx := context.Background()

	if err := store.Revoke(ctx, "jti-1", revokeReasonLogout, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("entry should be gone with the token: revoked=%v err=%v", revoked, err)
	}
}

func TestBlacklistRevokeAllForPrincipal(t *testing.T) {
	store, _ := newTestBlacklistStore(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	for _, jti := range []string{"jti-1", "jti-2", "jti-3"} {
		if err := store.TrackIssued(ctx, "principal-a", jti, expiresAt); err != nil {
			t.Fatalf("track %s: %v", jti, err)
		}
	}
	if err := store.TrackIssued(ctx, "principal-b", "jti-other", expiresAt); err != nil {
		t.Fatalf("track other: %v", err)
	}

	revoked, err := store.RevokeAllForPrincipal(ctx, "principal-a", revokeReasonAdmin)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("revoked = %d, want 3", revoked)
	}

	for _, jti := range []string{"jti-1", "jti-2", "jti-3"} {
		isRevoked, err := store.IsRevoked(ctx, jti)
		if err != nil || !isRevoked {
			t.Fatalf("%s: revoked=%v err=%v", jti, isRevoked, err)
		}
	}

	// The other principal's token is untouched.
	isRevoked, err := store.IsRevoked(ctx, "jti-other")
	if err != nil || isRevoked {
		t.Fatalf("other principal: revoked=%v err=%v", isRevoked, err)
	}

	// The index was cleared, so a second sweep finds nothing.
	revoked, err = store.RevokeAllForPrincipal(ctx, "principal-a", revokeReasonAdmin)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if revoked != 0 {
		t.Fatalf("second sweep revoked = %d, want 0", revoked)
	}
}

func TestBlacklistPing(t *testing.T) {
	store, mr := newTestBlacklistStore(t)

	latency, err := store.Ping(context.Background())
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if latency < 0 {
		t.Fatalf("latency = %v", latency)
	}

	mr.Close()
	if _, err := store.Ping(context.Background()); err == nil {
		t.Fatal("ping should fail when redis is down")
	}
}
