package authcore

import (
	"context"
	"time"
)

// EnrollMFA begins self-service MFA enrollment for an authenticated
// principal. A fresh secret is generated, sealed, and stored, but the
// enabled flag stays off until [Engine.ActivateMFA] sees a valid code, so a
// half-finished enrollment never locks the account out.
//
// EnrollMFA may return an error when input validation, dependency calls, or security checks fail.
// EnrollMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EnrollMFA(ctx context.Context, principalID string) (*MFAEnrollment, error) {
	if e == nil || e.directory == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	principal, err := e.directory.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return nil, ErrPrincipalNotFound
	}
	if principal.MFAEnabled && principal.MFAVerifiedByUser {
		e.emitAudit(ctx, auditEventMFAEnrolled, false, principal.ID, principal.Role, principal.ID, ErrMFAAlreadyEnabled, nil)
		return nil, ErrMFAAlreadyEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	sealed, err := e.secrets.Encrypt(secret)
	if err != nil {
		return nil, err
	}
	if err := e.directory.UpdateMFASecret(ctx, principal.ID, sealed); err != nil {
		e.emitAudit(ctx, auditEventMFAEnrolled, false, principal.ID, principal.Role, principal.ID, err, nil)
		return nil, err
	}

	e.metricInc(MetricMFAEnrolled)
	e.emitAudit(ctx, auditEventMFAEnrolled, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return &MFAEnrollment{
		SecretBase32:    secretBase32,
		ProvisioningURI: e.totp.ProvisionURI(secretBase32, principal.Email),
	}, nil
}

// ActivateMFA completes self-service enrollment. A valid code for the stored
// secret flips both MFA flags and mints the recovery code batch, which is
// returned in plaintext exactly once.
//
// ActivateMFA may return an error when input validation, dependency calls, or security checks fail.
// ActivateMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ActivateMFA(ctx context.Context, principalID, code string) ([]string, error) {
	if e == nil || e.directory == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	granted, err := e.checkMFAAttempts(ctx, principalID)
	if err != nil {
		return nil, err
	}
	defer granted.settle(ctx, e)

	principal, err := e.directory.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return nil, ErrPrincipalNotFound
	}
	if principal.MFAEnabled && principal.MFAVerifiedByUser {
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, ErrMFAAlreadyEnabled, nil)
		return nil, ErrMFAAlreadyEnabled
	}
	if len(principal.EncryptedMFASecret) == 0 {
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, ErrMFANotEnrolled, nil)
		return nil, ErrMFANotEnrolled
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
				"reason": "activation_code_mismatch",
			}
		})
		return nil, ErrInvalidMFACredential
	}

	if err := e.directory.SetMFAState(ctx, principal.ID, true, true); err != nil {
		e.emitAudit(ctx, auditEventMFAFailure, false, principal.ID, principal.Role, principal.ID, err, nil)
		return nil, err
	}

	codes, records, err := mintRecoveryCodes(principal.ID, e.config.TOTP.RecoveryCodeCount, e.config.TOTP.RecoveryCodeLength)
	if err != nil {
		return nil, err
	}
	if err := e.directory.ReplaceRecoveryCodes(ctx, principal.ID, records); err != nil {
		return nil, err
	}

	granted.succeed()
	e.metricInc(MetricMFASuccess)
	e.metricInc(MetricRecoveryCodesGenerated)
	e.emitAudit(ctx, auditEventMFAActivated, true, principal.ID, principal.Role, principal.ID, nil, nil)
	e.emitAudit(ctx, auditEventRecoveryCodesGenerated, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return codes, nil
}

// DisableMFA turns MFA off for the principal after proving possession of a
// current second factor (TOTP or recovery code). The stored secret and any
// unused recovery codes are destroyed.
//
// DisableMFA may return an error when input validation, dependency calls, or security checks fail.
// DisableMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DisableMFA(ctx context.Context, principalID, code string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	granted, err := e.checkMFAAttempts(ctx, principalID)
	if err != nil {
		return err
	}
	defer granted.settle(ctx, e)

	principal, err := e.directory.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return ErrPrincipalNotFound
	}
	if !principal.MFAEnabled {
		e.emitAudit(ctx, auditEventMFADisabled, false, principal.ID, principal.Role, principal.ID, ErrMFANotEnabled, nil)
		return ErrMFANotEnabled
	}

	if _, err := e.verifySecondFactor(ctx, principal, code); err != nil {
		return err
	}

	if err := e.directory.ClearMFA(ctx, principal.ID); err != nil {
		e.emitAudit(ctx, auditEventMFADisabled, false, principal.ID, principal.Role, principal.ID, err, nil)
		return err
	}

	granted.succeed()
	e.metricInc(MetricMFADisabled)
	e.emitAudit(ctx, auditEventMFADisabled, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return nil
}

// AdminEnableMFA pre-provisions MFA on a target account: the secret is
// generated and stored now, the enabled flag goes on, and the verified flag
// stays off. The target walks the first-time-setup branch on their next
// login. Authorization of the actor is the caller's responsibility; the
// actor is recorded for the audit trail.
//
// AdminEnableMFA may return an error when input validation, dependency calls, or security checks fail.
// AdminEnableMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AdminEnableMFA(ctx context.Context, actorID, targetID string) error {
	if e == nil || e.directory == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	target, err := e.directory.GetPrincipalByID(ctx, targetID)
	if err != nil {
		return ErrPrincipalNotFound
	}
	if target.MFAEnabled {
		e.emitAudit(ctx, auditEventMFAEnrolled, false, actorID, RoleAdmin, target.ID, ErrMFAAlreadyEnabled, nil)
		return ErrMFAAlreadyEnabled
	}

	secret, _, err := e.totp.GenerateSecret()
	if err != nil {
		return err
	}
	sealed, err := e.secrets.Encrypt(secret)
	if err != nil {
		return err
	}
	if err := e.directory.UpdateMFASecret(ctx, target.ID, sealed); err != nil {
		e.emitAudit(ctx, auditEventMFAEnrolled, false, actorID, RoleAdmin, target.ID, err, nil)
		return err
	}
	if err := e.directory.SetMFAState(ctx, target.ID, true, false); err != nil {
		e.emitAudit(ctx, auditEventMFAEnrolled, false, actorID, RoleAdmin, target.ID, err, nil)
		return err
	}

	e.metricInc(MetricMFAEnrolled)
	e.emitAudit(ctx, auditEventMFAEnrolled, true, actorID, RoleAdmin, target.ID, nil, func() map[string]string {
		return map[string]string{
			"provisioned_by": "admin",
		}
	})

	return nil
}

// AdminDisableMFA clears MFA state on a target account without a second
// factor. Authorization of the actor is the caller's responsibility; the
// actor is recorded for the audit trail.
//
// AdminDisableMFA may return an error when input validation, dependency calls, or security checks fail.
// AdminDisableMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AdminDisableMFA(ctx context.Context, actorID, targetID string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	target, err := e.directory.GetPrincipalByID(ctx, targetID)
	if err != nil {
		return ErrPrincipalNotFound
	}
	if !target.MFAEnabled {
		e.emitAudit(ctx, auditEventMFADisabled, false, actorID, RoleAdmin, target.ID, ErrMFANotEnabled, nil)
		return ErrMFANotEnabled
	}

	if err := e.directory.ClearMFA(ctx, target.ID); err != nil {
		e.emitAudit(ctx, auditEventMFADisabled, false, actorID, RoleAdmin, target.ID, err, nil)
		return err
	}

	e.metricInc(MetricMFADisabled)
	e.emitAudit(ctx, auditEventMFADisabled, true, actorID, RoleAdmin, target.ID, nil, func() map[string]string {
		return map[string]string{
			"disabled_by": "admin",
		}
	})

	return nil
}

// RegenerateRecoveryCodes replaces the principal's recovery codes after
// proving a current second factor. Old codes die immediately; the new batch
// is returned in plaintext exactly once.
//
// RegenerateRecoveryCodes may return an error when input validation, dependency calls, or security checks fail.
// RegenerateRecoveryCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RegenerateRecoveryCodes(ctx context.Context, principalID, code string) ([]string, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	granted, err := e.checkMFAAttempts(ctx, principalID)
	if err != nil {
		return nil, err
	}
	defer granted.settle(ctx, e)

	principal, err := e.directory.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return nil, ErrPrincipalNotFound
	}
	if !principal.MFAEnabled || !principal.MFAVerifiedByUser {
		return nil, ErrMFANotEnabled
	}

	if _, err := e.verifySecondFactor(ctx, principal, code); err != nil {
		return nil, err
	}

	codes, records, err := mintRecoveryCodes(principal.ID, e.config.TOTP.RecoveryCodeCount, e.config.TOTP.RecoveryCodeLength)
	if err != nil {
		return nil, err
	}
	if err := e.directory.ReplaceRecoveryCodes(ctx, principal.ID, records); err != nil {
		return nil, err
	}

	granted.succeed()
	e.metricInc(MetricRecoveryCodesGenerated)
	e.emitAudit(ctx, auditEventRecoveryCodesGenerated, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return codes, nil
}
