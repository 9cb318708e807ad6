package httpapi

import (
	"net/http"
)

// EnrollMFA handles POST /auth/mfa/enroll. The returned secret and URI are
// shown exactly once for authenticator provisioning; the account stays on
// password-only login until the code is verified.
func (a *API) EnrollMFA(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	enrollment, err := a.engine.EnrollMFA(r.Context(), identity.PrincipalID)
	if err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EnrollResponse{
		SecretBase32:    enrollment.SecretBase32,
		ProvisioningURI: enrollment.ProvisioningURI,
	})
}

// ActivateMFA handles POST /auth/mfa/verify, turning a pending enrollment
// into active MFA and returning the recovery-code batch.
func (a *API) ActivateMFA(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := decodeJSON[MFACodeRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	codes, err := a.engine.ActivateMFA(r.Context(), identity.PrincipalID, req.Code)
	if err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RecoveryCodesResponse{RecoveryCodes: codes})
}

// DisableMFA handles POST /auth/mfa/disable. A valid second factor is
// required; a stolen session alone cannot strip the account's MFA.
func (a *API) DisableMFA(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := decodeJSON[MFACodeRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	if err := a.engine.DisableMFA(r.Context(), identity.PrincipalID, req.Code); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateRecoveryCodes handles POST /auth/mfa/recovery-codes. The old
// batch is invalidated wholesale.
func (a *API) RegenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := decodeJSON[MFACodeRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	codes, err := a.engine.RegenerateRecoveryCodes(r.Context(), identity.PrincipalID, req.Code)
	if err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RecoveryCodesResponse{RecoveryCodes: codes})
}
