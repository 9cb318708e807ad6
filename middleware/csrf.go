package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

const (
	// CSRFCookieName is the double-submit cookie carrying the CSRF token.
	CSRFCookieName = "authcore_csrf"
	// CSRFHeaderName is the request header the client must echo the cookie
	// value into on mutating requests.
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRF enforces double-submit cookie protection for cookie-authenticated
// mutating requests. Safe methods (GET, HEAD, OPTIONS) pass through. A
// request authenticating with a Bearer Authorization header is exempt even
// when a session cookie rides along, because cross-origin requests cannot
// set custom headers; the same reasoning exempts requests with no session
// cookie at all. Token values are HMAC-signed with signingKey, so a forged
// cookie pair fails validation even though both halves match.
func CSRF(sessionCookie string, signingKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			if _, err := r.Cookie(sessionCookie); err != nil {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CSRFCookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "missing CSRF token", http.StatusForbidden)
				return
			}
			header := r.Header.Get(CSRFHeaderName)
			if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
				http.Error(w, "invalid CSRF token", http.StatusForbidden)
				return
			}
			if !validCSRFToken(cookie.Value, signingKey) {
				http.Error(w, "invalid CSRF token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// signedCSRFToken returns "<payload>.<mac>" where mac is the hex HMAC-SHA256
// of the random hex payload under key.
func signedCSRFToken(key []byte) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	payload := hex.EncodeToString(raw)
	return payload + "." + csrfMAC(payload, key), nil
}

func csrfMAC(payload string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func validCSRFToken(token string, key []byte) bool {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok || payload == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(csrfMAC(payload, key)))
}

// WriteCSRFCookie sets a fresh signed CSRF double-submit cookie. It is
// intentionally NOT HttpOnly so a browser client can read it and echo it back
// as a header on mutating requests.
func WriteCSRFCookie(w http.ResponseWriter, secure bool, signingKey []byte) (string, error) {
	token, err := signedCSRFToken(signingKey)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// ClearCSRFCookie removes the CSRF cookie on logout.
func ClearCSRFCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
