package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keikakun/authcore"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError is the single translation point from engine sentinels to HTTP
// statuses. Credential and token failures collapse to one generic 401 body so
// the response shape never reveals which sub-check failed.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrPassphraseRequired):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, authcore.ErrInvalidMFACredential):
		writeError(w, http.StatusUnauthorized, "invalid mfa credential")
	case errors.Is(err, authcore.ErrTokenInvalid),
		errors.Is(err, authcore.ErrRefreshTokenRevoked):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, authcore.ErrEmailNotVerified),
		errors.Is(err, authcore.ErrOfficeWithdrawn),
		errors.Is(err, authcore.ErrAccountDeleted),
		errors.Is(err, authcore.ErrAccountLocked):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, authcore.ErrDuplicateEmail),
		errors.Is(err, authcore.ErrMFAAlreadyEnabled),
		errors.Is(err, authcore.ErrMFAAlreadyVerified),
		errors.Is(err, authcore.ErrMFANotEnabled),
		errors.Is(err, authcore.ErrMFANotEnrolled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, authcore.ErrWeakPassword),
		errors.Is(err, authcore.ErrPasswordBreached),
		errors.Is(err, authcore.ErrPasswordReused):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, authcore.ErrResetChallengeInvalid),
		errors.Is(err, authcore.ErrVerificationInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authcore.ErrResetAttemptsExceeded),
		errors.Is(err, authcore.ErrVerificationAttemptsExceeded):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, authcore.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many requests; retry after the window elapses")
	case errors.Is(err, authcore.ErrPrincipalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, authcore.ErrSecurityBackendUnavailable),
		errors.Is(err, authcore.ErrEngineNotReady):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, authcore.ErrMFASecretCorrupted):
		writeError(w, http.StatusInternalServerError, "multi-factor secret unreadable; contact an administrator")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// maxAuthBodySize bounds request bodies; every endpoint here carries small
// JSON documents.
const maxAuthBodySize = 16 << 10

func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return req, false
	}
	return req, true
}
