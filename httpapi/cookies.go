package httpapi

import (
	"errors"
	"net/http"
)

// AccessCookieName is the HttpOnly cookie carrying the access token.
const AccessCookieName = "access_token"

// CookiePolicy is computed once from validated configuration and applied to
// every access-token cookie the API writes.
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// newCookiePolicy derives the cookie attributes from the deployment mode.
// Production gets Secure + SameSite=None so the SPA can ride a separate
// origin; development keeps Lax so plain-HTTP testing works.
func newCookiePolicy(production bool, domain string) (CookiePolicy, error) {
	if err := validateCookieDomain(domain); err != nil {
		return CookiePolicy{}, err
	}

	policy := CookiePolicy{
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
		Domain:   domain,
	}
	if production {
		policy.SameSite = http.SameSiteNoneMode
	}
	return policy, nil
}

func (p CookiePolicy) writeAccessCookie(w http.ResponseWriter, token string, maxAgeSeconds int) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    token,
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   maxAgeSeconds,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

func (p CookiePolicy) clearAccessCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

// validateCookieDomain rejects non-ASCII and control characters; a malformed
// domain would silently break cookie delivery on every client.
func validateCookieDomain(domain string) error {
	for i := 0; i < len(domain); i++ {
		c := domain[i]
		if c <= 0x20 || c >= 0x7f || c == ';' || c == ',' {
			return errors.New("cookie domain contains invalid characters")
		}
	}
	return nil
}
