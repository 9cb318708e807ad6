package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	blacklistKeyPrefix = "bl"
	issuedIndexPrefix  = "rtj"
)

// Revocation reasons recorded alongside blacklisted jtis.
const (
	revokeReasonLogout         = "logout"
	revokeReasonPasswordChange = "password_change"
	revokeReasonPasswordReset  = "password_reset"
	revokeReasonAdmin          = "admin"
)

var errBlacklistRedisUnavailable = errors.New("blacklist redis unavailable")

// blacklistStore tracks revoked refresh-token jtis in Redis. Tokens are never
// rotated on refresh, so revocation is the only way a refresh token dies
// before its natural expiry. Entries carry a TTL equal to the token's
// remaining lifetime; once the token would have expired anyway the entry is
// garbage.
//
// A per-principal sorted set of issued jtis (scored by expiry) makes
// revoke-all possible without scanning the keyspace.
type blacklistStore struct {
	redis redis.UniversalClient
}

func newBlacklistStore(redisClient redis.UniversalClient) *blacklistStore {
	return &blacklistStore{redis: redisClient}
}

func (s *blacklistStore) blacklistKey(jti string) string {
	return blacklistKeyPrefix + ":" + jti
}

func (s *blacklistStore) indexKey(principalID string) string {
	return issuedIndexPrefix + ":" + principalID
}

// TrackIssued records a freshly minted refresh jti in the principal's issued
// index so a later revoke-all can find it. The index key's own TTL is pushed
// out to the newest token's expiry on every issue.
func (s *blacklistStore) TrackIssued(ctx context.Context, principalID, jti string, expiresAt time.Time) error {
	key := s.indexKey(principalID)

	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiresAt.Unix()), Member: jti})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(time.Now().Unix()-1, 10))
	pipe.ExpireAt(ctx, key, expiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", errBlacklistRedisUnavailable, err)
	}

	return nil
}

// Revoke blacklists a single jti until the token's natural expiry. Revoking
// an already revoked or already expired jti is a no-op, not an error.
func (s *blacklistStore) Revoke(ctx context.Context, jti, reason string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, s.blacklistKey(jti), reason, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errBlacklistRedisUnavailable, err)
	}

	return nil
}

// IsRevoked reports whether a jti has been blacklisted.
func (s *blacklistStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errBlacklistRedisUnavailable, err)
	}

	return n > 0, nil
}

// Ping measures a Redis round trip.
func (s *blacklistStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := s.redis.Ping(ctx).Err()
	return time.Since(start), err
}

// RevokeAllForPrincipal blacklists every live jti in the principal's issued
// index and clears the index. Returns the number of jtis revoked.
func (s *blacklistStore) RevokeAllForPrincipal(ctx context.Context, principalID, reason string) (int, error) {
	key := s.indexKey(principalID)
	now := time.Now()

	entries, err := s.redis.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(now.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBlacklistRedisUnavailable, err)
	}

	if len(entries) == 0 {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", errBlacklistRedisUnavailable, err)
		}
		return 0, nil
	}

	pipe := s.redis.TxPipeline()
	revoked := 0
	for _, entry := range entries {
		jti, ok := entry.Member.(string)
		if !ok || jti == "" {
			continue
		}
		ttl := time.Until(time.Unix(int64(entry.Score), 0))
		if ttl <= 0 {
			continue
		}
		pipe.Set(ctx, s.blacklistKey(jti), reason, ttl)
		revoked++
	}
	pipe.Del(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", errBlacklistRedisUnavailable, err)
	}

	return revoked, nil
}
