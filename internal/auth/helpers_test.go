package auth

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"passport/internal/sso"
	"passport/internal/tokens"
	"passport/internal/users"
)

func newTokenService(t *testing.T) *tokens.Service {
	t.Helper()
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
	return tokens.NewService(set)
}

func newTestService(t *testing.T, store users.Store) *Service {
	t.Helper()
	svc := NewService(store, newTokenService(t), nil)
	svc.bcryptCost = bcrypt.MinCost
	return svc
}

func subjectOf(t *testing.T, svc *Service, token tokens.BearerToken) string {
	t.Helper()
	claims, err := svc.tokens.Validate(svc.tokens.Params().Access, token.AccessToken)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	return claims.Subject
}

// countingStore counts user creations across units of work.
type countingStore struct {
	users.Store
	userCreates atomic.Int32
}

func (s *countingStore) Within(ctx context.Context, fn func(users.Repositories) error) error {
	return s.Store.Within(ctx, func(repos users.Repositories) error {
		return fn(countingRepos{Repositories: repos, store: s})
	})
}

type countingRepos struct {
	users.Repositories
	store *countingStore
}

func (r countingRepos) Users() users.UserRepository {
	return countingUsers{UserRepository: r.Repositories.Users(), store: r.store}
}

type countingUsers struct {
	users.UserRepository
	store *countingStore
}

func (u countingUsers) Create(ctx context.Context, user users.User) (users.User, error) {
	u.store.userCreates.Add(1)
	return u.UserRepository.Create(ctx, user)
}

// storeStub runs units of work against hand-written repositories.
type storeStub struct {
	users    *userRepoStub
	accounts *accountRepoStub
}

func (s *storeStub) Within(_ context.Context, fn func(users.Repositories) error) error {
	return fn(s)
}

func (s *storeStub) Users() users.UserRepository             { return s.users }
func (s *storeStub) SSOAccounts() users.SSOAccountRepository { return s.accounts }

type userRepoStub struct {
	create     func(ctx context.Context, user users.User) (users.User, error)
	get        func(ctx context.Context, id uuid.UUID) (users.User, error)
	getByEmail func(ctx context.Context, email string) (users.User, error)
}

func (r *userRepoStub) Create(ctx context.Context, user users.User) (users.User, error) {
	if r.create != nil {
		return r.create(ctx, user)
	}
	user.ID = uuid.New()
	return user, nil
}

func (r *userRepoStub) Get(ctx context.Context, id uuid.UUID) (users.User, error) {
	if r.get != nil {
		return r.get(ctx, id)
	}
	return users.User{}, users.ErrNotFound
}

func (r *userRepoStub) GetByEmail(ctx context.Context, email string) (users.User, error) {
	if r.getByEmail != nil {
		return r.getByEmail(ctx, email)
	}
	return users.User{}, users.ErrNotFound
}

func (r *userRepoStub) Update(_ context.Context, user users.User) (users.User, error) {
	return user, nil
}

func (r *userRepoStub) Delete(context.Context, uuid.UUID) error {
	return nil
}

type accountRepoStub struct {
	create                    func(ctx context.Context, account users.SSOAccount) (users.SSOAccount, error)
	getByProviderAndAccountID func(ctx context.Context, provider, accountID string) (users.SSOAccount, error)
}

func (r *accountRepoStub) Create(ctx context.Context, account users.SSOAccount) (users.SSOAccount, error) {
	if r.create != nil {
		return r.create(ctx, account)
	}
	return account, nil
}

func (r *accountRepoStub) Get(context.Context, uuid.UUID) (users.SSOAccount, error) {
	return users.SSOAccount{}, users.ErrNotFound
}

func (r *accountRepoStub) GetByProviderAndAccountID(ctx context.Context, provider, accountID string) (users.SSOAccount, error) {
	if r.getByProviderAndAccountID != nil {
		return r.getByProviderAndAccountID(ctx, provider, accountID)
	}
	return users.SSOAccount{}, users.ErrNotFound
}

func (r *accountRepoStub) GetByUserAndProvider(context.Context, uuid.UUID, string) (users.SSOAccount, error) {
	return users.SSOAccount{}, users.ErrNotFound
}

func (r *accountRepoStub) ListByUser(context.Context, uuid.UUID) ([]users.SSOAccount, error) {
	return nil, nil
}

func (r *accountRepoStub) Update(_ context.Context, account users.SSOAccount) (users.SSOAccount, error) {
	return account, nil
}

func (r *accountRepoStub) Delete(context.Context, uuid.UUID) error {
	return nil
}

// providerStub is a scripted sso.Provider.
type providerStub struct {
	name     sso.Name
	openID   sso.OpenID
	loginErr error
	loggedIn bool
}

func (p *providerStub) Name() sso.Name { return p.name }

func (p *providerStub) Discover(context.Context) (sso.DiscoveryDocument, error) {
	return sso.DiscoveryDocument{AuthorizationEndpoint: "https://idp.example.com/authorize"}, nil
}

func (p *providerStub) LoginURL(_ context.Context, redirectURI, state string, _ url.Values) (string, error) {
	if state == "" {
		state = "generated-state"
	}
	return "https://idp.example.com/authorize?state=" + state + "&redirect_uri=" + url.QueryEscape(redirectURI), nil
}

func (p *providerStub) Login(context.Context, sso.Callback) (*sso.Token, error) {
	if p.loginErr != nil {
		return nil, p.loginErr
	}
	p.loggedIn = true
	return &sso.Token{AccessToken: "provider-access", RefreshToken: "provider-refresh"}, nil
}

func (p *providerStub) UserInfo(context.Context) (*sso.OpenID, error) {
	if !p.loggedIn {
		return nil, sso.ErrNotAuthorized
	}
	id := p.openID
	return &id, nil
}

func (p *providerStub) RawUserInfo(context.Context) (map[string]any, error) {
	return map[string]any{"id": p.openID.ID}, nil
}

func (p *providerStub) State() string        { return "generated-state" }
func (p *providerStub) CodeVerifier() string { return "verifier" }

// factoryStub hands out providerStub instances.
type factoryStub struct {
	providers map[sso.Name]*providerStub
}

func (f factoryStub) New(name sso.Name) (sso.Provider, error) {
	p, ok := f.providers[name]
	if !ok {
		return nil, sso.ErrDisabled
	}
	cp := *p
	return &cp, nil
}

func googleIdentity(accountID, email string) Identity {
	return Identity{
		OpenID: sso.OpenID{Provider: sso.Google, ID: accountID, Email: email, DisplayName: "Test User"},
		Token:  sso.Token{AccessToken: "provider-access"},
	}
}

func telegramOpenID(id string) sso.OpenID {
	return sso.OpenID{Provider: sso.Telegram, ID: id}
}
