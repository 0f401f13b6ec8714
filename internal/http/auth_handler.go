package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"passport/internal/auth"
	"passport/internal/tokens"
)

// AuthHandler serves the password and refresh token grants.
type AuthHandler struct {
	auth    *auth.Service
	cookies cookieSettings
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *auth.Service, cookies cookieSettings, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, cookies: cookies, logger: logger}
}

// Token handles POST /auth/token with an OAuth2 style form body.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid form body")
		return
	}

	var (
		token tokens.BearerToken
		err   error
	)
	switch strings.TrimSpace(r.PostForm.Get("grant_type")) {
	case "", "password":
		token, err = h.auth.PasswordGrant(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	case "refresh_token":
		token, err = h.auth.RefreshGrant(r.Context(), r.PostForm.Get("refresh_token"))
	default:
		err = auth.ErrUnsupportedGrant
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeBearer(w, h.cookies, token)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /auth/register. New users start unverified.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), auth.Registration{Email: req.Email, Password: req.Password})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Logout handles POST /auth/logout. Tokens are stateless, so logging out
// only drops the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.cookies.clearAccessToken(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /users/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// writeBearer returns the token pair and mirrors the access token in a cookie.
func writeBearer(w http.ResponseWriter, cookies cookieSettings, token tokens.BearerToken) {
	cookies.setAccessToken(w, token.AccessToken, time.Duration(token.ExpiresIn)*time.Second)
	writeJSON(w, http.StatusOK, token)
}
