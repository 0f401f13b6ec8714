package http

import (
	"log/slog"
	"net/http"

	"passport/internal/auth"
)

// AccountHandler serves self-service account management.
type AccountHandler struct {
	accounts *auth.AccountService
	cookies  cookieSettings
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts *auth.AccountService, cookies cookieSettings, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, cookies: cookies, logger: logger}
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// UpdateMe handles PATCH /users/me?verify_token=.
func (h *AccountHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	var req updateUserRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	updated, err := h.accounts.Update(r.Context(), *user, auth.ProfileUpdate{
		Email:    req.Email,
		Password: req.Password,
	}, r.URL.Query().Get("verify_token"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteMe handles DELETE /users/me and drops the session cookie.
func (h *AccountHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	deleted, err := h.accounts.Delete(r.Context(), *user)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.cookies.clearAccessToken(w)
	writeJSON(w, http.StatusOK, deleted)
}

type resetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset handles POST /auth/reset-password-request. The answer
// is the same whether or not the email is registered.
func (h *AccountHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	if err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// ResetPassword handles POST /auth/reset-password.
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	user, err := h.accounts.ResetPassword(r.Context(), req.Email, req.Code, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
