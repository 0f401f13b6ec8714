package sso

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// fakeProvider is an OAuth2/OIDC authorization server double.
type fakeProvider struct {
	srv *httptest.Server

	mu              sync.Mutex
	discoveryHits   int
	tokenForms      []url.Values
	tokenBasicUser  string
	userinfoAuth    string
	tokenStatus     int
	tokenExtra      map[string]any
	userinfoStatus  int
	userinfoPayload map[string]any
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{
		tokenStatus:     http.StatusOK,
		userinfoStatus:  http.StatusOK,
		userinfoPayload: map[string]any{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		fp.discoveryHits++
		fp.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                 fp.srv.URL,
			"authorization_endpoint": fp.srv.URL + "/authorize",
			"token_endpoint":         fp.srv.URL + "/token",
			"userinfo_endpoint":      fp.srv.URL + "/userinfo",
			"jwks_uri":               fp.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		user, _, _ := r.BasicAuth()
		fp.mu.Lock()
		fp.tokenForms = append(fp.tokenForms, r.PostForm)
		fp.tokenBasicUser = user
		status, extra := fp.tokenStatus, fp.tokenExtra
		fp.mu.Unlock()

		if status != http.StatusOK {
			writeJSON(w, status, map[string]any{"error": "invalid_grant"})
			return
		}
		body := map[string]any{
			"access_token":  "provider-access",
			"refresh_token": "provider-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		}
		for k, v := range extra {
			body[k] = v
		}
		writeJSON(w, http.StatusOK, body)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		fp.userinfoAuth = r.Header.Get("Authorization")
		status, payload := fp.userinfoStatus, fp.userinfoPayload
		fp.mu.Unlock()
		writeJSON(w, status, payload)
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"keys": []any{}})
	})

	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakeProvider) endpoints() DiscoveryDocument {
	return DiscoveryDocument{
		AuthorizationEndpoint: fp.srv.URL + "/authorize",
		TokenEndpoint:         fp.srv.URL + "/token",
		UserinfoEndpoint:      fp.srv.URL + "/userinfo",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
