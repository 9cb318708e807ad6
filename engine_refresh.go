package authcore

import (
	"context"
	"strconv"
	"time"
)

// Refresh exchanges a live refresh token for a new access token. Refresh
// tokens are never rotated: the same token keeps working until it expires or
// its jti lands on the blacklist. The session class of the original login is
// preserved in the new access token.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil || e.jwtManager == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshRejected, false, "", "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_token",
			}
		})
		return nil, ErrTokenInvalid
	}

	revoked, err := e.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshRejected, false, claims.Subject, "", "", ErrSecurityBackendUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "blacklist_unavailable",
			}
		})
		return nil, ErrSecurityBackendUnavailable
	}
	if revoked {
		e.metricInc(MetricRefreshRevoked)
		e.emitAudit(ctx, auditEventRefreshRejected, false, claims.Subject, "", "", ErrRefreshTokenRevoked, func() map[string]string {
			return map[string]string{
				"jti": claims.ID,
			}
		})
		return nil, ErrRefreshTokenRevoked
	}

	principal, err := e.directory.GetPrincipalByID(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshRejected, false, claims.Subject, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "principal_not_found",
			}
		})
		return nil, ErrTokenInvalid
	}
	if statusErr := refreshStatusError(principal); statusErr != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshRejected, false, principal.ID, principal.Role, "", statusErr, func() map[string]string {
			return map[string]string{
				"reason": "account_status",
			}
		})
		return nil, statusErr
	}

	sessionType := e.resolveSessionType(SessionType(claims.SessionType))
	duration := e.config.Session.Duration(sessionType)
	access, err := e.jwtManager.CreateAccess(principal.ID, string(sessionType), duration)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshRejected, false, principal.ID, principal.Role, "", err, func() map[string]string {
			return map[string]string{
				"reason": "issue_access_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return &RefreshResult{
		AccessToken:     access,
		SessionType:     sessionType,
		SessionDuration: int(duration.Seconds()),
	}, nil
}

// Logout revokes the presented refresh token. Revoking an already revoked or
// already expired token succeeds quietly, so repeated logouts are harmless.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogout, false, "", "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_token",
			}
		})
		return ErrTokenInvalid
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := e.blacklist.Revoke(ctx, claims.ID, revokeReasonLogout, expiresAt); err != nil {
		e.emitAudit(ctx, auditEventLogout, false, claims.Subject, "", "", ErrSecurityBackendUnavailable, nil)
		return ErrSecurityBackendUnavailable
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventLogout, true, claims.Subject, "", claims.Subject, nil, func() map[string]string {
		return map[string]string{
			"jti": claims.ID,
		}
	})

	return nil
}

// RevokeSessions blacklists every live refresh token issued to the principal.
// Used for administrative lockout and by the password lifecycle after a
// credential change.
//
// RevokeSessions may return an error when input validation, dependency calls, or security checks fail.
// RevokeSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeSessions(ctx context.Context, principalID string) error {
	if e == nil || e.blacklist == nil {
		return ErrEngineNotReady
	}

	revoked, err := e.blacklist.RevokeAllForPrincipal(ctx, principalID, revokeReasonAdmin)
	if err != nil {
		e.emitAudit(ctx, auditEventTokenRevoked, false, "", "", principalID, ErrSecurityBackendUnavailable, nil)
		return ErrSecurityBackendUnavailable
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, "", "", principalID, nil, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(revoked),
		}
	})

	return nil
}

func refreshStatusError(principal PrincipalRecord) error {
	switch {
	case principal.Locked:
		return ErrAccountLocked
	case principal.Deleted:
		return ErrAccountDeleted
	case principal.Role != RoleAdmin && principal.OfficeWithdrawn:
		return ErrOfficeWithdrawn
	default:
		return nil
	}
}
