package httpapi

import (
	"net/http"

	"github.com/keikakun/authcore"
)

// RegisterAdmin handles POST /auth/register-admin. The role comes from the
// request; admin accounts must supply a second passphrase that is hashed and
// stored alongside the password.
func (a *API) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	principal, err := a.engine.Register(r.Context(), authcore.RegisterInput{
		Email:      req.Email,
		Name:       req.Name,
		Role:       authcore.Role(req.Role),
		Password:   req.Password,
		Passphrase: req.Passphrase,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		ID:    principal.ID,
		Email: principal.Email,
		Role:  string(principal.Role),
	})
}

// VerifyEmail handles POST /auth/verify-email.
func (a *API) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[VerifyEmailRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	if err := a.engine.VerifyEmail(r.Context(), req.Token); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResendVerification handles POST /auth/resend-verification. The response is
// 204 whether or not the address exists.
func (a *API) ResendVerification(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ResendVerificationRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	if err := a.engine.ResendVerification(r.Context(), req.Email); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PasswordChange handles POST /auth/password-change for the authenticated
// principal. A successful change revokes every outstanding refresh token, so
// the client should expect other sessions to drop.
func (a *API) PasswordChange(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := decodeJSON[PasswordChangeRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	if err := a.engine.ChangePassword(r.Context(), identity.PrincipalID, req.OldPassword, req.NewPassword); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PasswordResetRequest handles POST /auth/password-reset/request. The response
// is 204 whether or not the address exists.
func (a *API) PasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[PasswordResetRequestBody](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	if err := a.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PasswordResetConfirm handles POST /auth/password-reset/confirm.
func (a *API) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[PasswordResetConfirmRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	if err := a.engine.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
