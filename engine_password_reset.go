package authcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

const resetSecretBytes = 32

// RequestPasswordReset starts the forgotten-password flow. The response is
// deliberately silent about whether the email is known: an attacker probing
// addresses sees the same nothing either way, and the challenge travels only
// through the account's mailbox.
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.directory == nil || e.resets == nil {
		return ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	subject := loginAttemptSubject(email, ip)

	allowed, err := e.attempts.Check(ctx, ActionPasswordReset, subject)
	if err != nil {
		return ErrSecurityBackendUnavailable
	}
	if !allowed {
		e.emitRateLimit(ctx, ActionPasswordReset, func() map[string]string {
			return map[string]string{
				"identifier": email,
			}
		})
		return ErrRateLimited
	}
	if _, err := e.attempts.Record(ctx, ActionPasswordReset, subject); err != nil {
		log.Print("authcore: reset attempt recording failed")
	}

	e.metricInc(MetricPasswordResetRequest)

	principal, err := e.directory.GetPrincipalByEmail(ctx, email)
	if err != nil || principal.Deleted {
		// Unknown and deleted accounts get the same silent success.
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", "", nil, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"known":      "false",
			}
		})
		return nil
	}

	resetID := uuid.NewString()
	secret, secretHash, err := newChallengeSecret()
	if err != nil {
		return err
	}

	record := &challengeRecord{
		PrincipalID: principal.ID,
		SecretHash:  secretHash,
		ExpiresAt:   time.Now().Add(e.config.Reset.TTL).Unix(),
	}
	if err := e.resets.Save(ctx, resetID, record, e.config.Reset.TTL); err != nil {
		return ErrSecurityBackendUnavailable
	}

	e.sendEmailAsync(ctx, principal.Email, EmailTemplateResetRequest, map[string]string{
		"name":  principal.Name,
		"token": resetID + "." + secret,
	})

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, principal.ID, principal.Role, principal.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": email,
			"known":      "true",
		}
	})

	return nil
}

// ConfirmPasswordReset spends a reset challenge and installs the new
// password. The new password runs the same screening pipeline as a normal
// change, every outstanding refresh token dies, and a lockout caused by
// forgotten-password guessing is cleared, since the owner just proved control
// of the mailbox.
//
// ConfirmPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// ConfirmPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil || e.directory == nil || e.resets == nil {
		return ErrEngineNotReady
	}

	resetID, providedHash, err := splitChallengeToken(token)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", "", ErrResetChallengeInvalid, func() map[string]string {
			return map[string]string{
				"reason": "malformed_token",
			}
		})
		return ErrResetChallengeInvalid
	}

	record, err := e.resets.Consume(ctx, resetID, providedHash, e.config.Reset.MaxAttempts)
	if err != nil {
		mapped := mapChallengeError(err, ErrResetChallengeInvalid, ErrResetAttemptsExceeded)
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", "", mapped, nil)
		return mapped
	}

	principal, err := e.directory.GetPrincipalByID(ctx, record.PrincipalID)
	if err != nil || principal.Deleted {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, record.PrincipalID, "", "", ErrResetChallengeInvalid, func() map[string]string {
			return map[string]string{
				"reason": "principal_unavailable",
			}
		})
		return ErrResetChallengeInvalid
	}

	if err := e.screenNewPassword(ctx, principal, newPassword); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return err
	}
	if err := e.applyNewPassword(ctx, principal, newPassword, revokeReasonPasswordReset); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return err
	}

	if principal.Locked {
		if err := e.directory.SetLocked(ctx, principal.ID, false); err != nil {
			log.Print("authcore: account unlock failed after password reset")
		} else {
			e.emitAudit(ctx, auditEventAccountUnlocked, true, principal.ID, principal.Role, principal.ID, nil, func() map[string]string {
				return map[string]string{
					"via": "password_reset",
				}
			})
		}
	}
	if principal.FailedPasswordAttempts > 0 {
		if err := e.directory.ResetFailedPassword(ctx, principal.ID); err != nil {
			log.Print("authcore: failed password counter reset failed after password reset")
		}
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return nil
}

// newChallengeSecret generates the random secret for a mailbox-delivered
// challenge, returning the plaintext and its SHA-256 digest.
func newChallengeSecret() (string, [32]byte, error) {
	raw := make([]byte, resetSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", [32]byte{}, err
	}
	secret := hex.EncodeToString(raw)
	return secret, sha256.Sum256([]byte(secret)), nil
}

// splitChallengeToken decomposes "<id>.<secret>" and hashes the secret part.
func splitChallengeToken(token string) (string, [32]byte, error) {
	dot := strings.IndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return "", [32]byte{}, errors.New("malformed challenge token")
	}
	return token[:dot], sha256.Sum256([]byte(token[dot+1:])), nil
}

func mapChallengeError(err, invalid, exceeded error) error {
	switch {
	case errors.Is(err, errChallengeAttemptsExceeded):
		return exceeded
	case errors.Is(err, errChallengeRedisUnavailable):
		return ErrSecurityBackendUnavailable
	default:
		return invalid
	}
}
