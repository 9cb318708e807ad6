package httpapi

import (
	"net/http"

	"github.com/keikakun/authcore"
)

// Login handles POST /auth/token. On a full grant the access token becomes an
// HttpOnly cookie scoped to the session lifetime and the refresh token is
// returned in the body. When MFA intervenes the response carries only the
// temporary token (plus provisioning material on first-time setup) and no
// session cookie is written.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	result, err := a.engine.Login(r.Context(), authcore.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		Passphrase:  req.Passphrase,
		SessionType: authcore.SessionType(req.SessionType),
	})
	if err != nil {
		mapError(w, err)
		return
	}

	switch {
	case result.RequiresMFAFirstSetup:
		writeJSON(w, http.StatusOK, LoginResponse{
			MFAFirstSetupRequired: true,
			TemporaryToken:        result.TemporaryToken,
			MFASecret:             result.MFASecret,
			MFAProvisioningURI:    result.MFAProvisioningURI,
		})
	case result.RequiresMFA:
		writeJSON(w, http.StatusOK, LoginResponse{
			MFARequired:    true,
			TemporaryToken: result.TemporaryToken,
		})
	default:
		a.policy.writeAccessCookie(w, result.AccessToken, result.SessionDuration)
		writeJSON(w, http.StatusOK, LoginResponse{
			RefreshToken:    result.RefreshToken,
			SessionType:     string(result.SessionType),
			SessionDuration: result.SessionDuration,
		})
	}
}

// VerifyMFA handles POST /auth/token/verify-mfa for accounts with MFA fully
// active.
func (a *API) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[MFAConfirmRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	grant, err := a.engine.ConfirmMFA(r.Context(), req.TemporaryToken, req.Code)
	if err != nil {
		mapError(w, err)
		return
	}
	a.writeSessionGrant(w, grant)
}

// FirstTimeVerifyMFA handles POST /auth/mfa/first-time-verify, completing the
// provisioned-but-unverified setup path. The response carries the one-time
// recovery-code batch.
func (a *API) FirstTimeVerifyMFA(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[MFAConfirmRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	grant, err := a.engine.ConfirmMFAFirstTimeSetup(r.Context(), req.TemporaryToken, req.Code)
	if err != nil {
		mapError(w, err)
		return
	}
	a.writeSessionGrant(w, grant)
}

func (a *API) writeSessionGrant(w http.ResponseWriter, grant *authcore.SessionGrant) {
	a.policy.writeAccessCookie(w, grant.AccessToken, grant.SessionDuration)
	writeJSON(w, http.StatusOK, SessionResponse{
		RefreshToken:    grant.RefreshToken,
		SessionType:     string(grant.SessionType),
		SessionDuration: grant.SessionDuration,
		RecoveryCodes:   grant.RecoveryCodes,
	})
}

// RefreshToken handles POST /auth/refresh-token. A fresh access cookie is
// written; the refresh token itself is never rotated.
func (a *API) RefreshToken(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RefreshRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	result, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		mapError(w, err)
		return
	}

	a.policy.writeAccessCookie(w, result.AccessToken, result.SessionDuration)
	writeJSON(w, http.StatusOK, RefreshResponse{
		SessionType:     string(result.SessionType),
		SessionDuration: result.SessionDuration,
	})
}

// Logout handles POST /auth/logout. The refresh token is revoked server-side
// and both cookies are cleared regardless of revocation outcome.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RefreshRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	err := a.engine.Logout(r.Context(), req.RefreshToken)

	a.policy.clearAccessCookie(w)
	clearCSRF(w, a.policy.Secure)

	if err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /me, echoing the guard-validated identity.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{
		PrincipalID:     identity.PrincipalID,
		SessionType:     string(identity.SessionType),
		SessionDuration: identity.SessionDuration,
		ExpiresAt:       identity.ExpiresAt.Unix(),
	})
}
