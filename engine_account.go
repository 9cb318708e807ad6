package authcore

import (
	"context"
	"log"
)

// LockAccount is an administrative operation that locks the account and
// revokes every outstanding refresh token. Locked accounts fail login with
// [ErrAccountLocked] until an admin unlocks them or a password reset clears
// the lock.
//
// LockAccount may return an error when input validation, dependency calls, or security checks fail.
// LockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LockAccount(ctx context.Context, principalID string) error {
	if e == nil || e.directory == nil || e.blacklist == nil {
		return ErrEngineNotReady
	}
	if principalID == "" {
		return ErrPrincipalNotFound
	}

	principal, err := e.directory.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return ErrPrincipalNotFound
	}

	if !principal.Locked {
		if err := e.directory.SetLocked(ctx, principal.ID, true); err != nil {
			e.emitAudit(ctx, auditEventAccountLocked, false, "", "", principal.ID, err, func() map[string]string {
				return map[string]string{
					"reason": "lock_update_failed",
				}
			})
			return err
		}
		e.metricInc(MetricAccountLocked)
	}

	if _, err := e.blacklist.RevokeAllForPrincipal(ctx, principal.ID, revokeReasonAdmin); err != nil {
		// The account is locked either way; revocation failure only delays
		// session death until the refresh tokens expire.
		log.Print("authcore: refresh revocation on admin lock failed")
	} else {
		e.metricInc(MetricTokenRevoked)
	}

	e.emitAudit(ctx, auditEventAccountLocked, true, "", "", principal.ID, nil, func() map[string]string {
		return map[string]string{
			"trigger": "admin",
		}
	})
	return nil
}

// UnlockAccount is the administrative counterpart of [LockAccount]. It clears
// the lock flag and the failed-password counter so the owner gets a fresh
// attempt budget.
//
// UnlockAccount may return an error when input validation, dependency calls, or security checks fail.
// UnlockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UnlockAccount(ctx context.Context, principalID string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if principalID == "" {
		return ErrPrincipalNotFound
	}

	principal, err := e.directory.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return ErrPrincipalNotFound
	}

	if err := e.directory.SetLocked(ctx, principal.ID, false); err != nil {
		e.emitAudit(ctx, auditEventAccountUnlocked, false, "", "", principal.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "unlock_update_failed",
			}
		})
		return err
	}
	if err := e.directory.ResetFailedPassword(ctx, principal.ID); err != nil {
		log.Print("authcore: failed password counter reset failed")
	}

	e.emitAudit(ctx, auditEventAccountUnlocked, true, "", "", principal.ID, nil, func() map[string]string {
		return map[string]string{
			"trigger": "admin",
		}
	})
	return nil
}
