package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"passport/internal/sso"
	"passport/internal/tokens"
	"passport/internal/users"
)

func telegramRequest(t *testing.T, target string, payload sso.WidgetPayload) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSSOProviders(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/sso/providers", nil))

	var body struct {
		Providers []string `json:"providers"`
	}
	decodeBody(t, rec, &body)
	if strings.Join(body.Providers, ",") != "google,telegram" {
		t.Fatalf("unexpected providers: %v", body.Providers)
	}
}

func TestSSOLoginRedirectsAndSetsFlowCookies(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/sso/google/login?redirect_uri="+url.QueryEscape("http://localhost:3000/cb"), nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "https://idp.example.com/authorize?state=flow-state") {
		t.Fatalf("unexpected redirect location %q", loc)
	}

	state := findCookie(rec, ssoStateCookieName)
	verifier := findCookie(rec, ssoVerifierCookieName)
	if state == nil || state.Value != "flow-state" || state.Path != ssoCookiePath || !state.HttpOnly {
		t.Fatalf("unexpected state cookie: %+v", state)
	}
	if verifier == nil || verifier.Value != "flow-verifier" {
		t.Fatalf("unexpected verifier cookie: %+v", verifier)
	}
}

func TestSSOLoginWithoutRedirect(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/sso/google/login?redirect=false&redirect_uri=http://localhost/cb", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if !strings.HasPrefix(body["url"], "https://idp.example.com/authorize") {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSSOLoginErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{name: "unknown provider", target: "/sso/github/login", status: http.StatusNotFound, code: "sso_unknown_provider"},
		{name: "disabled provider", target: "/sso/yandex/login?redirect_uri=http://localhost/cb", status: http.StatusServiceUnavailable, code: "sso_disabled"},
		{name: "missing redirect", target: "/sso/google/login", status: http.StatusBadRequest, code: "sso_missing_redirect_uri"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Fatalf("expected %s, got %q", tt.code, code)
			}
		})
	}
}

func TestSSOTokenUsesFlowCookies(t *testing.T) {
	ts := newTestServer(t)

	req := formRequest("/sso/google/token", url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {"auth-code"},
		"redirect_uri": {"http://localhost:3000/cb"},
		"state":        {"flow-state"},
	})
	req.AddCookie(&http.Cookie{Name: ssoStateCookieName, Value: "flow-state"})
	req.AddCookie(&http.Cookie{Name: ssoVerifierCookieName, Value: "flow-verifier"})
	rec := ts.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var token tokens.BearerToken
	decodeBody(t, rec, &token)
	if token.AccessToken == "" {
		t.Fatal("expected access token")
	}

	calls := ts.providers.callbacks()
	if len(calls) != 1 {
		t.Fatalf("expected one provider login, got %d", len(calls))
	}
	cb := calls[0]
	if cb.Code != "auth-code" || cb.ExpectedState != "flow-state" || cb.CodeVerifier != "flow-verifier" || cb.RedirectURI != "http://localhost:3000/cb" {
		t.Fatalf("unexpected callback: %+v", cb)
	}
	if c := findCookie(rec, ssoStateCookieName); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected state cookie to be cleared, got %+v", c)
	}

	me := ts.do(t, withBearer(httptest.NewRequest(http.MethodGet, "/users/me", nil), token.AccessToken))
	var user users.User
	decodeBody(t, me, &user)
	if user.EmailOrEmpty() != "sso@example.com" || !user.IsVerified {
		t.Fatalf("expected verified sso user, got %+v", user)
	}
}

func TestSSOTokenRejectsStateMismatch(t *testing.T) {
	ts := newTestServer(t)

	req := formRequest("/sso/google/token", url.Values{"code": {"auth-code"}, "state": {"forged"}})
	req.AddCookie(&http.Cookie{Name: ssoStateCookieName, Value: "flow-state"})
	rec := ts.do(t, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "sso_login_error" {
		t.Fatalf("expected sso_login_error, got %q", code)
	}
}

func TestTelegramLoginListAndDisconnect(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, telegramRequest(t, "/sso/telegram/token", signedWidget(42, "Ann")))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var token tokens.BearerToken
	decodeBody(t, rec, &token)

	list := ts.do(t, withBearer(httptest.NewRequest(http.MethodGet, "/sso/accounts", nil), token.AccessToken))
	if list.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", list.Code)
	}
	var body struct {
		Accounts []users.SSOAccount `json:"accounts"`
	}
	decodeBody(t, list, &body)
	if len(body.Accounts) != 1 || body.Accounts[0].Provider != "telegram" || body.Accounts[0].AccountID != "42" {
		t.Fatalf("unexpected accounts: %+v", body.Accounts)
	}
	if strings.Contains(list.Body.String(), "access_token") {
		t.Fatalf("account listing leaks provider tokens: %s", list.Body.String())
	}

	// The only sign-in method of a password-less user cannot be removed.
	del := ts.do(t, withBearer(httptest.NewRequest(http.MethodDelete, "/sso/accounts/"+body.Accounts[0].ID.String(), nil), token.AccessToken))
	if del.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", del.Code)
	}
	if code := errorCode(t, del); code != "last_auth_method" {
		t.Fatalf("expected last_auth_method, got %q", code)
	}
}

func TestTelegramTokenRejectsTamperedPayload(t *testing.T) {
	ts := newTestServer(t)
	payload := signedWidget(42, "Ann")
	payload.FirstName = "Eve"

	rec := ts.do(t, telegramRequest(t, "/sso/telegram/token", payload))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "invalid_telegram_hash" {
		t.Fatalf("expected invalid_telegram_hash, got %q", code)
	}
}

func TestTelegramTokenRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t)
	body := `{"id":1,"first_name":"` + strings.Repeat("a", maxJSONBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/sso/telegram/token", strings.NewReader(body))

	rec := ts.do(t, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rec.Code)
	}
}

func TestTelegramConnectAndDisconnect(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "user@example.com", "password123")
	token := ts.login(t, "user@example.com", "password123")

	connect := func() *httptest.ResponseRecorder {
		return ts.do(t, withBearer(telegramRequest(t, "/sso/telegram/connect", signedWidget(7, "Ann")), token.AccessToken))
	}

	rec := connect()
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var account users.SSOAccount
	decodeBody(t, rec, &account)

	rec = connect()
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "sso_already_associated_this_user" {
		t.Fatalf("expected sso_already_associated_this_user, got %q", code)
	}

	del := ts.do(t, withBearer(httptest.NewRequest(http.MethodDelete, "/sso/accounts/"+account.ID.String(), nil), token.AccessToken))
	if del.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", del.Code, del.Body.String())
	}
}

func TestTelegramConnectRequiresAuthentication(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, telegramRequest(t, "/sso/telegram/connect", signedWidget(7, "Ann")))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestDisconnectUnknownAccount(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "user@example.com", "password123")
	token := ts.login(t, "user@example.com", "password123")

	for _, id := range []string{"not-a-uuid", "6f1c1b0e-8d2a-4a55-9a53-0f5d1e3c2b7a"} {
		rec := ts.do(t, withBearer(httptest.NewRequest(http.MethodDelete, "/sso/accounts/"+id, nil), token.AccessToken))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404 for %s, got %d", id, rec.Code)
		}
	}
}

func TestSSOTokenRequiresRememberedState(t *testing.T) {
	ts := newTestServer(t)
	ts.providers.registry = sso.NewRegistry(sso.Config{
		Yandex: sso.ClientConfig{Enabled: true, ClientID: "client", ClientSecret: "secret", RedirectURI: "http://localhost:3000/cb"},
	}, nil, nil)

	tests := []struct {
		name string
		form url.Values
	}{
		{name: "no state", form: url.Values{"code": {"attacker-code"}}},
		{name: "state without cookie", form: url.Values{"code": {"attacker-code"}, "state": {"forged"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, formRequest("/sso/yandex/token", tt.form))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d: %s", rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != "sso_login_error" {
				t.Fatalf("expected sso_login_error, got %q", code)
			}
		})
	}
}
