package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"passport/internal/platform/cache"
)

const (
	googleIssuer       = "https://accounts.google.com"
	googleDiscoveryKey = "sso:discovery:google"
	discoveryCacheTTL  = 24 * time.Hour
)

// GoogleProvider authenticates users with Google's OpenID Connect service.
// The discovery document is fetched once per instance and shared across
// instances through the ephemeral store.
type GoogleProvider struct {
	*oauth2Flow
	issuer string
	store  cache.Store
	doc    *DiscoveryDocument
}

// NewGoogle creates a Google provider. store may be nil.
func NewGoogle(creds ClientConfig, client *http.Client, store cache.Store) *GoogleProvider {
	g := &GoogleProvider{issuer: googleIssuer, store: store}
	g.oauth2Flow = &oauth2Flow{
		name:          Google,
		creds:         creds,
		scopes:        []string{oidc.ScopeOpenID, "email", "profile"},
		requiresState: true,
		usesPKCE:      true,
		client:        client,
		endpoints:     g.Discover,
	}
	return g
}

// Name returns "google".
func (g *GoogleProvider) Name() Name { return Google }

// Discover returns Google's endpoints, fetching the .well-known document on first use.
func (g *GoogleProvider) Discover(ctx context.Context) (DiscoveryDocument, error) {
	if g.doc != nil {
		return *g.doc, nil
	}

	if doc, ok := g.cachedDiscovery(ctx); ok {
		g.doc = &doc
		return doc, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, g.client), g.issuer)
	if err != nil {
		return DiscoveryDocument{}, ErrLoginFailed.WithCause(fmt.Errorf("google discovery: %w", err))
	}

	var extra struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&extra); err != nil {
		return DiscoveryDocument{}, ErrLoginFailed.WithCause(fmt.Errorf("google discovery: %w", err))
	}

	endpoint := provider.Endpoint()
	doc := DiscoveryDocument{
		Issuer:                g.issuer,
		AuthorizationEndpoint: endpoint.AuthURL,
		TokenEndpoint:         endpoint.TokenURL,
		UserinfoEndpoint:      provider.UserInfoEndpoint(),
		JWKSURI:               extra.JWKSURI,
	}
	g.doc = &doc

	if g.store != nil {
		if raw, err := json.Marshal(doc); err == nil {
			_ = g.store.Set(ctx, googleDiscoveryKey, string(raw), discoveryCacheTTL)
		}
	}
	return doc, nil
}

func (g *GoogleProvider) cachedDiscovery(ctx context.Context) (DiscoveryDocument, bool) {
	if g.store == nil {
		return DiscoveryDocument{}, false
	}
	raw, err := g.store.Get(ctx, googleDiscoveryKey)
	if err != nil {
		return DiscoveryDocument{}, false
	}
	var doc DiscoveryDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc.AuthorizationEndpoint == "" {
		return DiscoveryDocument{}, false
	}
	return doc, true
}

// Login exchanges the code and, when Google returned an id_token, verifies it.
func (g *GoogleProvider) Login(ctx context.Context, cb Callback) (*Token, error) {
	tok, err := g.oauth2Flow.Login(ctx, cb)
	if err != nil {
		return nil, err
	}
	if tok.IDToken == "" || g.doc == nil || g.doc.JWKSURI == "" {
		return tok, nil
	}

	oidcCtx := oidc.ClientContext(ctx, g.client)
	verifier := oidc.NewVerifier(g.issuer, oidc.NewRemoteKeySet(oidcCtx, g.doc.JWKSURI), &oidc.Config{ClientID: g.creds.ClientID})
	if _, err := verifier.Verify(oidcCtx, tok.IDToken); err != nil {
		return nil, ErrLoginFailed.WithCause(fmt.Errorf("verify id_token: %w", err))
	}
	return tok, nil
}

// RawUserInfo returns the unmodified userinfo response.
func (g *GoogleProvider) RawUserInfo(ctx context.Context) (map[string]any, error) {
	doc, err := g.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if doc.UserinfoEndpoint == "" {
		return nil, ErrNotSupported.WithMessage("Google discovery document has no userinfo endpoint")
	}
	return g.fetchUserInfo(ctx, doc.UserinfoEndpoint, "")
}

// UserInfo returns the normalized identity. Unverified emails are rejected.
func (g *GoogleProvider) UserInfo(ctx context.Context) (*OpenID, error) {
	raw, err := g.RawUserInfo(ctx)
	if err != nil {
		return nil, err
	}
	return googleOpenID(raw)
}

func googleOpenID(raw map[string]any) (*OpenID, error) {
	if !boolField(raw, "email_verified") {
		return nil, ErrLoginFailed.WithMessage("User %s is not verified with Google", stringField(raw, "email"))
	}
	id := stringField(raw, "sub")
	if id == "" {
		return nil, ErrLoginFailed.WithCause(errors.New("google userinfo: missing sub"))
	}
	return &OpenID{
		Provider:    Google,
		ID:          id,
		Email:       stringField(raw, "email"),
		FirstName:   stringField(raw, "given_name"),
		LastName:    stringField(raw, "family_name"),
		DisplayName: stringField(raw, "name"),
		Picture:     stringField(raw, "picture"),
	}, nil
}
