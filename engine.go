package authcore

import (
	"context"
	"time"

	"github.com/keikakun/authcore/jwt"
	"github.com/keikakun/authcore/password"
	"github.com/keikakun/authcore/secretbox"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config        Config
	directory     DirectoryProvider
	emailSender   EmailSender
	audit         *auditDispatcher
	metrics       *Metrics
	passwordHash  *password.Argon2
	totp          *totpManager
	jwtManager    *jwt.Manager
	secrets       *secretbox.Box
	breach        *breachScreener
	blacklist     *blacklistStore
	attempts      *attemptStore
	resets        *challengeStore
	verifications *challengeStore
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// ValidateAccess verifies an access token and returns the caller's identity.
// This is the hot path: a pure signature and claims check with no Redis or
// directory round trip. Revocation applies to refresh tokens only; access
// tokens ride out their short lifetime.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AccessIdentity, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	identity := &AccessIdentity{
		PrincipalID:     claims.Subject,
		SessionType:     SessionType(claims.SessionType),
		SessionDuration: int(claims.SessionDuration),
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}

	return identity, nil
}

// issueSession mints the access/refresh pair for a fully authenticated
// principal and records the refresh jti in the principal's issued index.
func (e *Engine) issueSession(ctx context.Context, principalID string, sessionType SessionType) (string, string, time.Duration, error) {
	duration := e.config.Session.Duration(sessionType)

	access, err := e.jwtManager.CreateAccess(principalID, string(sessionType), duration)
	if err != nil {
		return "", "", 0, err
	}

	refresh, jti, expiresAt, err := e.jwtManager.CreateRefresh(principalID, string(sessionType), duration)
	if err != nil {
		return "", "", 0, err
	}

	if err := e.blacklist.TrackIssued(ctx, principalID, jti, expiresAt); err != nil {
		return "", "", 0, ErrSecurityBackendUnavailable
	}

	return access, refresh, duration, nil
}

func (e *Engine) resolveSessionType(requested SessionType) SessionType {
	if requested == "" {
		return e.config.Session.DefaultType
	}
	if _, ok := e.config.Session.Durations[requested]; !ok {
		return e.config.Session.DefaultType
	}
	return requested
}
