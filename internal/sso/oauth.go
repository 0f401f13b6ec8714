package sso

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

const maxUserInfoBytes = 1 << 20

// ClientConfig holds OAuth2 client credentials for one provider.
type ClientConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// oauth2Flow is the authorization-code machinery shared by OAuth2/OIDC providers.
type oauth2Flow struct {
	name          Name
	creds         ClientConfig
	scopes        []string
	requiresState bool
	usesPKCE      bool
	client        *http.Client
	endpoints     func(ctx context.Context) (DiscoveryDocument, error)

	state    string
	verifier string
	token    *oauth2.Token
}

func (f *oauth2Flow) State() string        { return f.state }
func (f *oauth2Flow) CodeVerifier() string { return f.verifier }

func (f *oauth2Flow) config(ctx context.Context, redirectURI string) (*oauth2.Config, error) {
	doc, err := f.endpoints(ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     f.creds.ClientID,
		ClientSecret: f.creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       f.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}, nil
}

func (f *oauth2Flow) redirect(uri string) (string, error) {
	if uri == "" {
		uri = f.creds.RedirectURI
	}
	if uri == "" {
		return "", ErrMissingRedirect
	}
	return uri, nil
}

// LoginURL builds the authorization endpoint URL, generating state and PKCE
// values when the provider needs them.
func (f *oauth2Flow) LoginURL(ctx context.Context, redirectURI, state string, params url.Values) (string, error) {
	redirectURI, err := f.redirect(redirectURI)
	if err != nil {
		return "", err
	}

	if f.requiresState {
		if state == "" {
			if f.state == "" {
				generated, err := GenerateState()
				if err != nil {
					return "", fmt.Errorf("generate state: %w", err)
				}
				f.state = generated
			}
			state = f.state
		} else {
			f.state = state
		}
	}

	var opts []oauth2.AuthCodeOption
	if f.usesPKCE {
		if f.verifier == "" {
			f.verifier = oauth2.GenerateVerifier()
		}
		opts = append(opts, oauth2.S256ChallengeOption(f.verifier))
	}
	for key, values := range params {
		for _, v := range values {
			opts = append(opts, oauth2.SetAuthURLParam(key, v))
		}
	}

	cfg, err := f.config(ctx, redirectURI)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// Login exchanges the authorization code for the provider's token set.
// The exchange is never retried: authorization codes are single-use.
func (f *oauth2Flow) Login(ctx context.Context, cb Callback) (*Token, error) {
	if strings.TrimSpace(cb.Code) == "" {
		return nil, ErrLoginFailed.WithMessage("Missing authorization code")
	}

	expected := cb.ExpectedState
	if expected == "" {
		expected = f.state
	}
	if f.requiresState {
		if expected == "" {
			return nil, ErrLoginFailed.WithMessage("Missing state")
		}
		if subtle.ConstantTimeCompare([]byte(cb.State), []byte(expected)) != 1 {
			return nil, ErrLoginFailed.WithMessage("State mismatch")
		}
	}

	verifier := cb.CodeVerifier
	if verifier == "" {
		verifier = f.verifier
	}
	if f.usesPKCE && verifier == "" {
		return nil, ErrLoginFailed.WithMessage("Missing PKCE code verifier")
	}

	redirectURI, err := f.redirect(cb.RedirectURI)
	if err != nil {
		return nil, err
	}
	cfg, err := f.config(ctx, redirectURI)
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	tok, err := cfg.Exchange(ctx, cb.Code, opts...)
	if err != nil {
		return nil, ErrLoginFailed.WithCause(fmt.Errorf("%s token exchange: %w", f.name, err))
	}
	f.token = tok

	return f.providerToken(), nil
}

func (f *oauth2Flow) providerToken() *Token {
	out := &Token{
		AccessToken:  f.token.AccessToken,
		RefreshToken: f.token.RefreshToken,
		TokenType:    f.token.Type(),
		ExpiresIn:    f.token.ExpiresIn,
		Scope:        strings.Join(f.scopes, " "),
	}
	if idToken, ok := f.token.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	if scope, ok := f.token.Extra("scope").(string); ok && scope != "" {
		out.Scope = scope
	}
	return out
}

// fetchUserInfo calls the userinfo endpoint with the stored access token.
// scheme overrides the Authorization scheme for providers that do not accept "Bearer".
func (f *oauth2Flow) fetchUserInfo(ctx context.Context, endpoint, scheme string) (map[string]any, error) {
	if f.token == nil {
		return nil, ErrNotAuthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if scheme == "" {
		f.token.SetAuthHeader(req)
	} else {
		req.Header.Set("Authorization", scheme+" "+f.token.AccessToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ErrLoginFailed.WithCause(fmt.Errorf("%s userinfo: %w", f.name, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ErrLoginFailed.WithMessage("%s userinfo endpoint returned status %d", f.name, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&payload); err != nil {
		return nil, ErrLoginFailed.WithCause(fmt.Errorf("%s userinfo: decode: %w", f.name, err))
	}
	return payload, nil
}

// GenerateState generates a cryptographically secure random state string.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
