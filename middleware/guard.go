package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/keikakun/authcore"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity injected by [Guard], or false when
// the request did not pass through a guard.
func IdentityFromContext(ctx context.Context) (*authcore.AccessIdentity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*authcore.AccessIdentity)
	return identity, ok
}

// Guard returns middleware that verifies the access token on every request
// and injects the validated identity into the request context. The token is
// read from the Authorization header first; when accessCookie is non-empty
// and no bearer token is present, the cookie of that name is tried instead.
func Guard(engine *authcore.Engine, accessCookie string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok && accessCookie != "" {
				if cookie, err := r.Cookie(accessCookie); err == nil && cookie.Value != "" {
					token, ok = cookie.Value, true
				}
			}
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			identity, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientContext attaches the caller's IP address and User-Agent to the request
// context so the engine can key attempt windows and audit events by origin.
// The IP is taken from RemoteAddr only; operators fronting the service with a
// reverse proxy should rewrite RemoteAddr upstream.
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ip := remoteIP(r.RemoteAddr); ip != "" {
			ctx = authcore.WithClientIP(ctx, ip)
		}
		if ua := r.UserAgent(); ua != "" {
			ctx = authcore.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
