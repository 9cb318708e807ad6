package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "att"

var errAttemptRedisUnavailable = errors.New("attempt redis unavailable")

// attemptStore enforces fixed-window attempt limits for every guarded action
// through one policy table. Counters live in Redis under
// att:<action>:<subject> and expire with the window, so a quiet subject
// leaves no state behind.
type attemptStore struct {
	redis    redis.UniversalClient
	policies map[AttemptAction]AttemptPolicy
}

func newAttemptStore(redisClient redis.UniversalClient, cfg AttemptsConfig) *attemptStore {
	policies := make(map[AttemptAction]AttemptPolicy, len(cfg.Policies))
	for action, policy := range cfg.Policies {
		policies[action] = policy
	}

	return &attemptStore{
		redis:    redisClient,
		policies: policies,
	}
}

func (s *attemptStore) key(action AttemptAction, subject string) string {
	return attemptKeyPrefix + ":" + string(action) + ":" + subject
}

// Check reports whether the subject is still under the action's limit. An
// action with no configured policy is never limited.
func (s *attemptStore) Check(ctx context.Context, action AttemptAction, subject string) (bool, error) {
	policy, ok := s.policies[action]
	if !ok {
		return true, nil
	}

	count, err := s.redis.Get(ctx, s.key(action, subject)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return false, fmt.Errorf("%w: %v", errAttemptRedisUnavailable, err)
	}

	return count < policy.MaxAttempts, nil
}

// Record counts one attempt and returns the new total within the window.
// The window TTL is set when the first attempt creates the key; later
// attempts never extend it, keeping the window fixed rather than sliding.
func (s *attemptStore) Record(ctx context.Context, action AttemptAction, subject string) (int, error) {
	policy, ok := s.policies[action]
	if !ok {
		return 0, nil
	}

	key := s.key(action, subject)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errAttemptRedisUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, policy.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", errAttemptRedisUnavailable, err)
		}
	}

	return int(count), nil
}

// Reset clears the subject's window after a successful attempt.
func (s *attemptStore) Reset(ctx context.Context, action AttemptAction, subject string) error {
	if _, ok := s.policies[action]; !ok {
		return nil
	}

	if err := s.redis.Del(ctx, s.key(action, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAttemptRedisUnavailable, err)
	}

	return nil
}
