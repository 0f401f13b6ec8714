package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"passport/internal/auth"
	"passport/internal/sso"
)

type providerLister interface {
	EnabledNames() []sso.Name
}

// SSOHandler serves the external provider login and account linking endpoints.
type SSOHandler struct {
	sso       *auth.SSOService
	providers providerLister
	cookies   cookieSettings
	logger    *slog.Logger
}

// NewSSOHandler creates an SSOHandler.
func NewSSOHandler(ssoService *auth.SSOService, providers providerLister, cookies cookieSettings, logger *slog.Logger) *SSOHandler {
	return &SSOHandler{sso: ssoService, providers: providers, cookies: cookies, logger: logger}
}

// Providers handles GET /sso/providers.
func (h *SSOHandler) Providers(w http.ResponseWriter, _ *http.Request) {
	names := h.providers.EnabledNames()
	if names == nil {
		names = []sso.Name{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": names})
}

// Login handles GET /sso/{provider}/login. It redirects to the provider
// unless redirect=false, in which case the URL is returned as JSON.
func (h *SSOHandler) Login(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerName(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	login, err := h.sso.LoginURL(r.Context(), name, query.Get("redirect_uri"), query.Get("state"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.cookies.setFlow(w, ssoStateCookieName, login.State)
	h.cookies.setFlow(w, ssoVerifierCookieName, login.CodeVerifier)

	if strings.EqualFold(query.Get("redirect"), "false") {
		writeJSON(w, http.StatusOK, map[string]string{"url": login.URL})
		return
	}
	http.Redirect(w, r, login.URL, http.StatusSeeOther)
}

// Token handles POST /sso/{provider}/token: exchange the authorization code
// and log in, registering the user on first sight.
func (h *SSOHandler) Token(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerName(w, r)
	if !ok {
		return
	}
	id, ok := h.exchangeCode(w, r, name)
	if !ok {
		return
	}

	token, err := h.sso.Authorize(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeBearer(w, h.cookies, token)
}

// Connect handles POST /sso/{provider}/connect for an authenticated caller.
func (h *SSOHandler) Connect(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerName(w, r)
	if !ok {
		return
	}
	id, ok := h.exchangeCode(w, r, name)
	if !ok {
		return
	}
	h.connect(w, r, id)
}

// TelegramToken handles POST /sso/telegram/token with a widget payload.
func (h *SSOHandler) TelegramToken(w http.ResponseWriter, r *http.Request) {
	id, ok := h.exchangeWidget(w, r)
	if !ok {
		return
	}

	token, err := h.sso.Authorize(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeBearer(w, h.cookies, token)
}

// TelegramConnect handles POST /sso/telegram/connect with a widget payload.
func (h *SSOHandler) TelegramConnect(w http.ResponseWriter, r *http.Request) {
	id, ok := h.exchangeWidget(w, r)
	if !ok {
		return
	}
	h.connect(w, r, id)
}

// Accounts handles GET /sso/accounts.
func (h *SSOHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	accounts, err := h.sso.Accounts(r.Context(), *user)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// Disconnect handles DELETE /sso/accounts/{id}.
func (h *SSOHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, auth.ErrAccountNotFound)
		return
	}

	if err := h.sso.Disconnect(r.Context(), *user, accountID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SSOHandler) connect(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	account, err := h.sso.Connect(r.Context(), *user, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *SSOHandler) providerName(w http.ResponseWriter, r *http.Request) (sso.Name, bool) {
	name, err := sso.ParseName(chi.URLParam(r, "provider"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return "", false
	}
	return name, true
}

// exchangeCode completes an authorization code flow. The expected state and
// PKCE verifier come from the cookies set by Login.
func (h *SSOHandler) exchangeCode(w http.ResponseWriter, r *http.Request, name sso.Name) (auth.Identity, bool) {
	if err := parseForm(w, r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid form body")
		return auth.Identity{}, false
	}
	if grant := r.PostForm.Get("grant_type"); grant != "" && grant != "authorization_code" {
		writeServiceError(w, h.logger, auth.ErrUnsupportedGrant)
		return auth.Identity{}, false
	}

	cb := sso.Callback{
		Code:          r.PostForm.Get("code"),
		RedirectURI:   r.PostForm.Get("redirect_uri"),
		State:         r.PostForm.Get("state"),
		ExpectedState: cookieValue(r, ssoStateCookieName),
		CodeVerifier:  r.PostForm.Get("code_verifier"),
	}
	if cb.CodeVerifier == "" {
		cb.CodeVerifier = cookieValue(r, ssoVerifierCookieName)
	}

	id, err := h.sso.Exchange(r.Context(), name, cb)
	h.cookies.clearFlow(w)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return auth.Identity{}, false
	}
	return id, true
}

func (h *SSOHandler) exchangeWidget(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	var payload sso.WidgetPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return auth.Identity{}, false
	}

	id, err := h.sso.Exchange(r.Context(), sso.Telegram, sso.Callback{Widget: &payload})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return auth.Identity{}, false
	}
	return id, true
}
