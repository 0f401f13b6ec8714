package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"passport/internal/auth"
	"passport/internal/config"
	"passport/internal/notify"
	"passport/internal/platform/cache"
	"passport/internal/sso"
	"passport/internal/tokens"
	"passport/internal/users"
	"passport/internal/verification"
)

const testBotToken = "123456789:AAF-test-token"

// codeProviderStub is an authorization code provider that records the
// callback it was handed.
type codeProviderStub struct {
	openID   sso.OpenID
	mu       *sync.Mutex
	received *[]sso.Callback
	loggedIn bool
}

func (p *codeProviderStub) Name() sso.Name { return sso.Google }

func (p *codeProviderStub) Discover(context.Context) (sso.DiscoveryDocument, error) {
	return sso.DiscoveryDocument{AuthorizationEndpoint: "https://idp.example.com/authorize"}, nil
}

func (p *codeProviderStub) LoginURL(_ context.Context, redirectURI, state string, _ url.Values) (string, error) {
	if redirectURI == "" {
		return "", sso.ErrMissingRedirect
	}
	return "https://idp.example.com/authorize?state=" + p.State() + "&redirect_uri=" + url.QueryEscape(redirectURI), nil
}

func (p *codeProviderStub) Login(_ context.Context, cb sso.Callback) (*sso.Token, error) {
	p.mu.Lock()
	*p.received = append(*p.received, cb)
	p.mu.Unlock()
	if cb.State != cb.ExpectedState {
		return nil, sso.ErrLoginFailed
	}
	p.loggedIn = true
	return &sso.Token{AccessToken: "provider-access"}, nil
}

func (p *codeProviderStub) UserInfo(context.Context) (*sso.OpenID, error) {
	if !p.loggedIn {
		return nil, sso.ErrNotAuthorized
	}
	id := p.openID
	return &id, nil
}

func (p *codeProviderStub) RawUserInfo(context.Context) (map[string]any, error) {
	return map[string]any{"sub": p.openID.ID}, nil
}

func (p *codeProviderStub) State() string        { return "flow-state" }
func (p *codeProviderStub) CodeVerifier() string { return "flow-verifier" }

// testFactory serves the Google stub and delegates everything else to a
// real registry.
type testFactory struct {
	registry *sso.Registry
	google   sso.OpenID
	mu       sync.Mutex
	received []sso.Callback
}

func (f *testFactory) New(name sso.Name) (sso.Provider, error) {
	if name == sso.Google {
		return &codeProviderStub{openID: f.google, mu: &f.mu, received: &f.received}, nil
	}
	return f.registry.New(name)
}

func (f *testFactory) EnabledNames() []sso.Name {
	return append([]sso.Name{sso.Google}, f.registry.EnabledNames()...)
}

func (f *testFactory) callbacks() []sso.Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sso.Callback(nil), f.received...)
}

type testServer struct {
	handler   http.Handler
	auth      *auth.Service
	providers *testFactory
	mu        sync.Mutex
	sent      []notify.Message
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := discardLogger()

	set, err := tokens.NewSet(tokens.Config{
		Secret:               "test-secret",
		Issuer:               "passport",
		Audience:             []string{"passport"},
		AccessLifetime:       15 * time.Minute,
		RefreshLifetime:      24 * time.Hour,
		VerificationLifetime: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewSet returned error: %v", err)
	}
	tokenService := tokens.NewService(set)

	store := users.NewMemoryStore()
	codeStore := cache.NewMemoryStore()
	registry := sso.NewRegistry(sso.Config{
		Telegram: sso.TelegramConfig{Enabled: true, BotToken: testBotToken},
	}, nil, codeStore)

	ts := &testServer{
		providers: &testFactory{
			registry: registry,
			google:   sso.OpenID{Provider: sso.Google, ID: "g-1", Email: "sso@example.com", DisplayName: "Sso User"},
		},
	}

	authService := auth.NewService(store, tokenService, logger)
	authService.SetBcryptCost(bcrypt.MinCost)
	ts.auth = authService

	dispatcher := notify.NewDispatcher(logger)
	dispatcher.Register(notify.ChannelEmail, notify.SenderFunc(func(_ context.Context, msg notify.Message) error {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		ts.sent = append(ts.sent, msg)
		return nil
	}))

	cfg := config.Config{
		Environment:    "development",
		AllowedOrigins: []string{"http://localhost:3000"},
		Cookie:         config.CookieConfig{Name: "access_token"},
	}
	notifyService := auth.NewNotifyService(store, verification.NewService(codeStore, 6, 5*time.Minute), tokenService, dispatcher, logger)
	ts.handler = NewRouter(cfg, Services{
		Auth:      authService,
		SSO:       auth.NewSSOService(ts.providers, store, authService, logger),
		Notify:    notifyService,
		Accounts:  auth.NewAccountService(store, authService, notifyService, logger),
		Providers: ts.providers,
	}, logger)
	return ts
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(t *testing.T, email, password string) users.User {
	t.Helper()
	user, err := ts.auth.Register(context.Background(), auth.Registration{Email: email, Password: password})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return user
}

func (ts *testServer) login(t *testing.T, email, password string) tokens.BearerToken {
	t.Helper()
	rec := ts.do(t, formRequest("/auth/token", url.Values{
		"grant_type": {"password"},
		"username":   {email},
		"password":   {password},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("password grant: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var token tokens.BearerToken
	decodeBody(t, rec, &token)
	return token
}

func (ts *testServer) lastMessage(t *testing.T) notify.Message {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.sent) == 0 {
		t.Fatal("expected a notification to be sent")
	}
	return ts.sent[len(ts.sent)-1]
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	decodeBody(t, rec, &body)
	return body.Error
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func signedWidget(id int64, firstName string) sso.WidgetPayload {
	p := sso.WidgetPayload{ID: id, FirstName: firstName, AuthDate: time.Now().Unix()}
	secret := sha256.Sum256([]byte(testBotToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(p.DataCheckString()))
	p.Hash = hex.EncodeToString(mac.Sum(nil))
	return p
}
