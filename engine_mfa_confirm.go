package authcore

import (
	"context"
	"log"
	"time"

	"github.com/keikakun/authcore/jwt"
)

const (
	mfaPurposeVerify     = jwt.PurposeMFAVerify
	mfaPurposeFirstSetup = jwt.PurposeMFAFirstSetup
)

// ConfirmMFAFirstTimeSetup completes the one-time MFA activation that a
// first-setup login started. A correct code flips the verified flag, mints
// the principal's recovery code batch, and grants the session the original
// login asked for. The plaintext recovery codes appear in the returned grant
// and nowhere else, ever.
//
// ConfirmMFAFirstTimeSetup may return an error when input validation, dependency calls, or security checks fail.
// ConfirmMFAFirstTimeSetup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmMFAFirstTimeSetup(ctx context.Context, temporaryToken, code string) (*SessionGrant, error) {
	if e == nil || e.jwtManager == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseTemporary(temporaryToken, mfaPurposeFirstSetup)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, "", "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_setup_token",
			}
		})
		return nil, ErrTokenInvalid
	}
	principalID := claims.Subject

	granted, err := e.checkMFAAttempts(ctx, principalID)
	if err != nil {
		return nil, err
	}
	defer granted.settle(ctx, e)

	principal, err := e.directory.GetPrincipalByID(ctx, principalID)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principalID, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "principal_not_found",
			}
		})
		return nil, ErrTokenInvalid
	}
	if !principal.MFAEnabled {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, ErrMFANotEnabled, nil)
		return nil, ErrMFANotEnabled
	}
	if principal.MFAVerifiedByUser {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, ErrMFAAlreadyVerified, nil)
		return nil, ErrMFAAlreadyVerified
	}

	secret, err := e.secrets.Decrypt(principal.EncryptedMFASecret)
	if err != nil || len(secret) == 0 {
		e.metricInc(MetricMFASecretCorrupted)
		e.emitAudit(ctx, auditEventMFASecretCorrupted, false, principal.ID, principal.Role, principal.ID, ErrMFASecretCorrupted, nil)
		return nil, ErrMFASecretCorrupted
	}

	ok, _, err := e.totp.VerifyCode(secret, code, time.Now())
	if err != nil || !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, ErrInvalidMFACredential, func() map[string]string {
			return map[string]string{
				"reason": "setup_code_mismatch",
			}
		})
		return nil, ErrInvalidMFACredential
	}

	if err := e.directory.SetMFAState(ctx, principal.ID, true, true); err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "mfa_state_update_failed",
			}
		})
		return nil, err
	}

	codes, records, err := mintRecoveryCodes(principal.ID, e.config.TOTP.RecoveryCodeCount, e.config.TOTP.RecoveryCodeLength)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "recovery_code_generation_failed",
			}
		})
		return nil, err
	}
	if err := e.directory.ReplaceRecoveryCodes(ctx, principal.ID, records); err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "recovery_code_store_failed",
			}
		})
		return nil, err
	}
	e.metricInc(MetricRecoveryCodesGenerated)
	e.emitAudit(ctx, auditEventRecoveryCodesGenerated, true, principal.ID, principal.Role, principal.ID, nil, nil)

	sessionType := SessionType(claims.SessionType)
	access, refresh, duration, err := e.issueSession(ctx, principal.ID, e.resolveSessionType(sessionType))
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_session_failed",
			}
		})
		return nil, err
	}

	granted.succeed()
	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFAActivated, true, principal.ID, principal.Role, principal.ID, nil, nil)
	e.emitAudit(ctx, auditEventMFASuccess, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return &SessionGrant{
		AccessToken:     access,
		RefreshToken:    refresh,
		SessionType:     e.resolveSessionType(sessionType),
		SessionDuration: int(duration.Seconds()),
		RecoveryCodes:   codes,
	}, nil
}

// ConfirmMFA completes a verify-pending login with either a TOTP code or a
// recovery code. The TOTP path is tried first; anything that does not verify
// as a current code falls through to a single recovery-code consumption
// attempt.
//
// ConfirmMFA may return an error when input validation, dependency calls, or security checks fail.
// ConfirmMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmMFA(ctx context.Context, temporaryToken, code string) (*SessionGrant, error) {
	if e == nil || e.jwtManager == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseTemporary(temporaryToken, mfaPurposeVerify)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, "", "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_verify_token",
			}
		})
		return nil, ErrTokenInvalid
	}
	principalID := claims.Subject

	granted, err := e.checkMFAAttempts(ctx, principalID)
	if err != nil {
		return nil, err
	}
	defer granted.settle(ctx, e)

	principal, err := e.directory.GetPrincipalByID(ctx, principalID)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principalID, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "principal_not_found",
			}
		})
		return nil, ErrTokenInvalid
	}
	if !principal.MFAEnabled || !principal.MFAVerifiedByUser {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, ErrMFANotEnabled, nil)
		return nil, ErrMFANotEnabled
	}

	usedRecovery, err := e.verifySecondFactor(ctx, principal, code)
	if err != nil {
		return nil, err
	}

	sessionType := SessionType(claims.SessionType)
	access, refresh, duration, err := e.issueSession(ctx, principal.ID, e.resolveSessionType(sessionType))
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_session_failed",
			}
		})
		return nil, err
	}

	granted.succeed()
	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, principal.ID, principal.Role, principal.ID, nil, func() map[string]string {
		if usedRecovery {
			return map[string]string{"factor": "recovery_code"}
		}
		return map[string]string{"factor": "totp"}
	})

	return &SessionGrant{
		AccessToken:     access,
		RefreshToken:    refresh,
		SessionType:     e.resolveSessionType(sessionType),
		SessionDuration: int(duration.Seconds()),
	}, nil
}

// verifySecondFactor checks a TOTP code first, then falls back to consuming a
// recovery code. Returns whether the recovery path was taken.
func (e *Engine) verifySecondFactor(ctx context.Context, principal PrincipalRecord, code string) (bool, error) {
	secret, err := e.secrets.Decrypt(principal.EncryptedMFASecret)
	if err != nil || len(secret) == 0 {
		e.metricInc(MetricMFASecretCorrupted)
		e.emitAudit(ctx, auditEventMFASecretCorrupted, false, principal.ID, principal.Role, principal.ID, ErrMFASecretCorrupted, nil)
		return false, ErrMFASecretCorrupted
	}

	ok, _, err := e.totp.VerifyCode(secret, code, time.Now())
	if err == nil && ok {
		return false, nil
	}

	canonical := canonicalizeRecoveryCode(code)
	if len(canonical) != e.config.TOTP.RecoveryCodeLength {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, ErrInvalidMFACredential, func() map[string]string {
			return map[string]string{
				"reason": "code_mismatch",
			}
		})
		return false, ErrInvalidMFACredential
	}

	consumed, err := e.directory.ConsumeRecoveryCode(ctx, principal.ID, recoveryCodeHash(principal.ID, canonical))
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "recovery_code_lookup_failed",
			}
		})
		return false, err
	}
	if !consumed {
		e.metricInc(MetricRecoveryCodeFailed)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventRecoveryCodeFailed, false, principal.ID, principal.Role, principal.ID, ErrInvalidMFACredential, nil)
		return false, ErrInvalidMFACredential
	}

	e.metricInc(MetricRecoveryCodeUsed)
	e.emitAudit(ctx, auditEventRecoveryCodeUsed, true, principal.ID, principal.Role, principal.ID, nil, nil)
	return true, nil
}

// mfaAttemptState carries the deferred attempt accounting for one MFA
// confirmation. A settled failure is recorded on a detached context so
// request cancellation cannot skip the counter.
type mfaAttemptState struct {
	subject string
	ok      bool
}

func (s *mfaAttemptState) succeed() { s.ok = true }

func (s *mfaAttemptState) settle(ctx context.Context, e *Engine) {
	bg := context.WithoutCancel(ctx)
	if s.ok {
		if err := e.attempts.Reset(bg, ActionMFAVerify, s.subject); err != nil {
			log.Print("authcore: mfa attempt window reset failed")
		}
		return
	}
	if _, err := e.attempts.Record(bg, ActionMFAVerify, s.subject); err != nil {
		log.Print("authcore: mfa attempt recording failed")
	}
}

func (e *Engine) checkMFAAttempts(ctx context.Context, principalID string) (*mfaAttemptState, error) {
	allowed, err := e.attempts.Check(ctx, ActionMFAVerify, principalID)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principalID, "", "", ErrSecurityBackendUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "attempt_store_unavailable",
			}
		})
		return nil, ErrSecurityBackendUnavailable
	}
	if !allowed {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, principalID, "", "", ErrRateLimited, nil)
		e.emitRateLimit(ctx, ActionMFAVerify, func() map[string]string {
			return map[string]string{
				"principal_id": principalID,
			}
		})
		return nil, ErrRateLimited
	}

	return &mfaAttemptState{subject: principalID}, nil
}
