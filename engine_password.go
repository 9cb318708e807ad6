package authcore

import (
	"context"
	"errors"
	"log"
	"strings"
)

// ChangePassword rotates a principal's password after verifying the current
// one. The new password runs the full screening pipeline (strength, breach
// corpus, reuse history) and a successful change revokes every outstanding
// refresh token, so other devices fall back to the login page.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error {
	if e == nil || e.passwordHash == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if principalID == "" || oldPassword == "" || newPassword == "" {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, "", "", ErrWeakPassword, func() map[string]string {
			return map[string]string{
				"reason": "invalid_input",
			}
		})
		return ErrWeakPassword
	}

	allowed, err := e.attempts.Check(ctx, ActionPasswordChange, principalID)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, "", "", ErrSecurityBackendUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "attempt_store_unavailable",
			}
		})
		return ErrSecurityBackendUnavailable
	}
	if !allowed {
		e.emitRateLimit(ctx, ActionPasswordChange, func() map[string]string {
			return map[string]string{
				"principal_id": principalID,
			}
		})
		return ErrRateLimited
	}

	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		bg := context.WithoutCancel(ctx)
		if _, err := e.attempts.Record(bg, ActionPasswordChange, principalID); err != nil {
			log.Print("authcore: password change attempt recording failed")
		}
	}()

	principal, err := e.directory.GetPrincipalByID(ctx, principalID)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, "", "", ErrPrincipalNotFound, func() map[string]string {
			return map[string]string{
				"reason": "principal_not_found",
			}
		})
		return ErrPrincipalNotFound
	}
	if principal.Deleted {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Role, "", ErrAccountDeleted, nil)
		return ErrAccountDeleted
	}

	oldOK, err := e.passwordHash.Verify(oldPassword, principal.PasswordHash)
	if err != nil || !oldOK {
		e.recordPasswordFailure(ctx, principal)
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Role, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "old_password_mismatch",
			}
		})
		return ErrInvalidCredentials
	}

	if err := e.screenNewPassword(ctx, principal, newPassword); err != nil {
		return err
	}

	if err := e.applyNewPassword(ctx, principal, newPassword, revokeReasonPasswordChange); err != nil {
		return err
	}

	oldPassword = ""
	newPassword = ""
	succeeded = true
	if err := e.attempts.Reset(ctx, ActionPasswordChange, principalID); err != nil {
		log.Print("authcore: password change attempt window reset failed")
	}
	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return nil
}

// screenNewPassword runs the candidate password through the strength policy,
// the holder-identity check, the current-hash and history reuse checks, and
// the breach corpus. Every path that sets a password goes through here, so a
// reset cannot smuggle in what a change would reject. Breach screening fails
// open: when the range API cannot be reached the failure is audited and the
// candidate passes, because blocking every password change on a third-party
// outage is the worse trade.
func (e *Engine) screenNewPassword(ctx context.Context, principal PrincipalRecord, newPassword string) error {
	if err := passwordMeetsPolicy(e.config.Password, newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Role, "", err, func() map[string]string {
			return map[string]string{
				"reason": "strength_policy",
			}
		})
		return err
	}

	if passwordContainsIdentity(principal, newPassword) {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Role, "", ErrWeakPassword, func() map[string]string {
			return map[string]string{
				"reason": "contains_identity",
			}
		})
		return ErrWeakPassword
	}

	if principal.PasswordHash != "" {
		same, err := e.passwordHash.Verify(newPassword, principal.PasswordHash)
		if err == nil && same {
			e.metricInc(MetricPasswordChangeReuseRejected)
			e.emitAudit(ctx, auditEventPasswordChangeReuse, false, principal.ID, principal.Role, "", ErrPasswordReused, nil)
			return ErrPasswordReused
		}
	}

	if e.breach != nil {
		count, err := e.breach.Check(ctx, newPassword)
		switch {
		case err != nil:
			e.metricInc(MetricBreachCheckFailOpen)
			e.emitAudit(ctx, auditEventBreachCheckFailOpen, false, principal.ID, principal.Role, "", nil, func() map[string]string {
				return map[string]string{
					"error": err.Error(),
				}
			})
		case count > 0:
			e.metricInc(MetricPasswordBreachDetected)
			e.emitAudit(ctx, auditEventPasswordBreached, false, principal.ID, principal.Role, "", ErrPasswordBreached, nil)
			return ErrPasswordBreached
		}
	}

	if depth := e.config.Password.HistoryDepth; depth > 0 {
		history, err := e.directory.PasswordHistory(ctx, principal.ID, depth)
		if err != nil {
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Role, "", err, func() map[string]string {
				return map[string]string{
					"reason": "history_lookup_failed",
				}
			})
			return err
		}
		for _, entry := range history {
			match, err := e.passwordHash.Verify(newPassword, entry.Hash)
			if err == nil && match {
				e.metricInc(MetricPasswordChangeReuseRejected)
				e.emitAudit(ctx, auditEventPasswordChangeReuse, false, principal.ID, principal.Role, "", ErrPasswordReused, nil)
				return ErrPasswordReused
			}
		}
	}

	return nil
}

// applyNewPassword persists the new hash, retires the old one into history,
// revokes every outstanding refresh token, and notifies the account owner.
func (e *Engine) applyNewPassword(ctx context.Context, principal PrincipalRecord, newPassword, revokeReason string) error {
	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Role, "", ErrWeakPassword, func() map[string]string {
			return map[string]string{
				"reason": "hash_policy",
			}
		})
		return ErrWeakPassword
	}

	if err := e.directory.UpdatePasswordHash(ctx, principal.ID, newHash); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Role, "", err, func() map[string]string {
			return map[string]string{
				"reason": "update_hash_failed",
			}
		})
		return err
	}
	if depth := e.config.Password.HistoryDepth; depth > 0 && principal.PasswordHash != "" {
		// History append is best-effort: the new hash is already live.
		if err := e.directory.AppendPasswordHistory(ctx, principal.ID, principal.PasswordHash, depth); err != nil {
			log.Print("authcore: password history append failed")
		}
	}

	if _, err := e.blacklist.RevokeAllForPrincipal(ctx, principal.ID, revokeReason); err != nil {
		log.Print("authcore: refresh revocation failed after password change")
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Role, "", ErrSecurityBackendUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "refresh_revocation_failed",
			}
		})
		return errors.Join(ErrSecurityBackendUnavailable, err)
	}
	e.metricInc(MetricTokenRevoked)

	e.sendEmailAsync(ctx, principal.Email, EmailTemplatePasswordChanged, map[string]string{
		"name": principal.Name,
	})

	return nil
}

// sendEmailAsync dispatches a transactional mail without blocking the guarded
// operation. Failures are logged, never returned.
func (e *Engine) sendEmailAsync(ctx context.Context, recipient, template string, data map[string]string) {
	if e.emailSender == nil || recipient == "" {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := e.emailSender.Send(bg, recipient, template, data); err != nil {
			log.Print("authcore: email send failed for template " + template)
		}
	}()
}

// passwordContainsIdentity reports whether the candidate embeds the holder's
// email local part or a word of the holder's name. Such passwords fall to
// targeted guessing regardless of raw entropy.
func passwordContainsIdentity(principal PrincipalRecord, candidate string) bool {
	lower := strings.ToLower(candidate)

	if at := strings.IndexByte(principal.Email, '@'); at > 0 {
		local := strings.ToLower(principal.Email[:at])
		if strings.Contains(lower, local) {
			return true
		}
	}
	for _, part := range strings.Fields(strings.ToLower(principal.Name)) {
		// Single characters would reject nearly everything.
		if len(part) >= 2 && strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func passwordMeetsPolicy(cfg PasswordConfig, candidate string) error {
	if len(candidate) < cfg.MinLength {
		return ErrWeakPassword
	}
	if cfg.RequireLetterAndDigit {
		hasLetter := false
		hasDigit := false
		for i := 0; i < len(candidate); i++ {
			c := candidate[i]
			switch {
			case c >= '0' && c <= '9':
				hasDigit = true
			case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
				hasLetter = true
			}
		}
		if !hasLetter || !hasDigit {
			return ErrWeakPassword
		}
	}
	return nil
}
