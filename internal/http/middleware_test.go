package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBearerTokensOrder(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-token"})

	got := bearerTokens(req, "access_token")
	if len(got) != 2 || got[0] != "cookie-token" || got[1] != "header-token" {
		t.Fatalf("expected cookie then header, got %v", got)
	}
}

func TestBearerTokensHeader(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer abc", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "Bearer", want: ""},
		{header: "Bearer   ", want: ""},
		{header: "", want: ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got := strings.Join(bearerTokens(req, "access_token"), ",")
		if got != tt.want {
			t.Fatalf("bearerTokens(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestStaleCookieFallsBackToHeader(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "user@example.com", "password123")
	token := ts.login(t, "user@example.com", "password123")

	req := withBearer(httptest.NewRequest(http.MethodGet, "/users/me", nil), token.AccessToken)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "expired-or-garbage"})
	rec := ts.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected valid header to authenticate, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "expired-or-garbage"})
	if rec := ts.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected stale cookie alone to be rejected, got %d", rec.Code)
	}
}

func TestSecurityHeadersOutsideDevelopment(t *testing.T) {
	handler := newSecurityHeadersMiddleware("production")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("Strict-Transport-Security"); got == "" {
		t.Fatal("expected HSTS header outside development")
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
}

func TestWriteServiceErrorHidesUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, discardLogger(), errString("database exploded"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "exploded") {
		t.Fatalf("expected internal detail to be hidden, got %s", rec.Body.String())
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(strings.ToLower(s), sub) {
			return true
		}
	}
	return false
}
