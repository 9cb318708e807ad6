package authcore

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resetChallengePrefix        = "pwr"
	verificationChallengePrefix = "evr"
	challengeRecordVersionV1    = 1
)

var (
	errChallengeNotFound         = errors.New("challenge record not found")
	errChallengeSecretMismatch   = errors.New("challenge secret mismatch")
	errChallengeAttemptsExceeded = errors.New("challenge attempts exceeded")
	errChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// challengeRecord is the stored state of a single-use secret challenge
// (password reset, email verification). The plaintext secret is never stored,
// only its SHA-256 digest.
type challengeRecord struct {
	PrincipalID string
	SecretHash  [32]byte
	ExpiresAt   int64
	Attempts    uint16
}

// challengeStore holds single-use secret challenges in Redis. Both the
// password-reset and email-verification flows use it under distinct key
// prefixes; consumption is atomic via WATCH so concurrent confirmations
// cannot double-spend a challenge or skip the attempt counter.
type challengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newChallengeStore(redisClient redis.UniversalClient, prefix string) *challengeStore {
	return &challengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *challengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *challengeStore) Save(
	ctx context.Context,
	challengeID string,
	record *challengeRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return nil
}

// Consume atomically verifies the provided secret hash against the stored
// challenge. On a match the challenge is deleted and returned. On a mismatch
// the attempt counter is incremented in place; reaching maxAttempts deletes
// the challenge so further guesses see not-found.
func (s *challengeStore) Consume(
	ctx context.Context,
	challengeID string,
	providedHash [32]byte,
	maxAttempts int,
) (*challengeRecord, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var matched *challengeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeNotFound
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errChallengeAttemptsExceeded
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errChallengeNotFound
				}

				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeSecretMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, errChallengeNotFound), errors.Is(err, errChallengeSecretMismatch), errors.Is(err, errChallengeAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errChallengeNotFound
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *challengeStore) Get(ctx context.Context, challengeID string) (*challengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	record, err := decodeChallengeRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		return nil, errChallengeNotFound
	}

	return record, nil
}

// Delete removes a challenge regardless of its state. Used when a newer
// challenge supersedes an outstanding one.
func (s *challengeStore) Delete(ctx context.Context, challengeID string) error {
	if err := s.redis.Del(ctx, s.key(challengeID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return nil
}

func encodeChallengeRecord(record *challengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.PrincipalID) > 65535 {
		return nil, errors.New("challenge record principal id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.PrincipalID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.PrincipalID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*challengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &challengeRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var principalIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &principalIDLen); err != nil {
		return nil, err
	}

	principalID := make([]byte, principalIDLen)
	if _, err := io.ReadFull(reader, principalID); err != nil {
		return nil, err
	}
	record.PrincipalID = string(principalID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
