package httpapi

import (
	"crypto/rand"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keikakun/authcore"
	"github.com/keikakun/authcore/metrics/export/prometheus"
	"github.com/keikakun/authcore/middleware"
)

// Config carries the HTTP-surface settings that are not already part of the
// engine configuration.
type Config struct {
	// Production selects Secure cookies and SameSite=None.
	Production bool
	// CookieDomain optionally scopes the access cookie. Empty means host-only.
	CookieDomain string
	// ThrottleRPS and ThrottleBurst bound per-client request rates in front
	// of the engine's Redis-backed attempt windows. Zero disables throttling.
	ThrottleRPS   float64
	ThrottleBurst int
	// CSRFSigningKey signs CSRF double-submit tokens. Leave empty to generate
	// a per-process random key; set it when several instances sit behind one
	// load balancer so tokens verify on any of them.
	CSRFSigningKey []byte
}

// API holds the dependencies needed by the REST handlers.
type API struct {
	engine    *authcore.Engine
	policy    CookiePolicy
	csrfKey   []byte
	throttler *middleware.Throttler
	exporter  *prometheus.PrometheusExporter
}

// New creates an API bound to the given engine.
func New(engine *authcore.Engine, cfg Config) (*API, error) {
	if engine == nil {
		return nil, errors.New("engine required")
	}

	policy, err := newCookiePolicy(cfg.Production, cfg.CookieDomain)
	if err != nil {
		return nil, err
	}

	csrfKey := cfg.CSRFSigningKey
	if len(csrfKey) == 0 {
		csrfKey = make([]byte, 32)
		if _, err := rand.Read(csrfKey); err != nil {
			return nil, err
		}
	}

	a := &API{
		engine:   engine,
		policy:   policy,
		csrfKey:  csrfKey,
		exporter: prometheus.NewPrometheusExporter(engine),
	}
	if cfg.ThrottleRPS > 0 && cfg.ThrottleBurst > 0 {
		a.throttler = middleware.NewThrottler(cfg.ThrottleRPS, cfg.ThrottleBurst)
	}
	return a, nil
}

// Router returns a chi.Router with all routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.ClientContext)
	if a.throttler != nil {
		r.Use(a.throttler.Throttle)
	}
	r.Use(middleware.CSRF(AccessCookieName, a.csrfKey))

	r.Get("/csrf-token", a.CSRFToken)
	r.Get("/metrics", a.Metrics)

	r.Post("/auth/token", a.Login)
	r.Post("/auth/token/verify-mfa", a.VerifyMFA)
	r.Post("/auth/mfa/first-time-verify", a.FirstTimeVerifyMFA)
	r.Post("/auth/refresh-token", a.RefreshToken)
	r.Post("/auth/logout", a.Logout)

	r.Post("/auth/register-admin", a.RegisterAdmin)
	r.Post("/auth/verify-email", a.VerifyEmail)
	r.Post("/auth/resend-verification", a.ResendVerification)
	r.Post("/auth/password-reset/request", a.PasswordResetRequest)
	r.Post("/auth/password-reset/confirm", a.PasswordResetConfirm)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(a.engine, AccessCookieName))
		r.Get("/me", a.Me)
		r.Post("/auth/password-change", a.PasswordChange)
		r.Post("/auth/mfa/enroll", a.EnrollMFA)
		r.Post("/auth/mfa/verify", a.ActivateMFA)
		r.Post("/auth/mfa/disable", a.DisableMFA)
		r.Post("/auth/mfa/recovery-codes", a.RegenerateRecoveryCodes)
	})

	return r
}

// CSRFToken handles GET /csrf-token. It issues the double-submit cookie and
// echoes the token so non-browser clients can send the header without reading
// cookies.
func (a *API) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.WriteCSRFCookie(w, a.policy.Secure, a.csrfKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}

// Metrics handles GET /metrics in Prometheus text exposition format.
func (a *API) Metrics(w http.ResponseWriter, r *http.Request) {
	a.exporter.Handler().ServeHTTP(w, r)
}

func identityFrom(r *http.Request) (*authcore.AccessIdentity, bool) {
	return middleware.IdentityFromContext(r.Context())
}

func clearCSRF(w http.ResponseWriter, secure bool) {
	middleware.ClearCSRFCookie(w, secure)
}
