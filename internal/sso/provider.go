// Package sso implements the external identity provider strategies.
//
// Each provider is a separate Provider implementation. Instances hold the
// transient state of a single login attempt (state, PKCE verifier, provider
// tokens) and must not be shared between requests; build a fresh one from
// the Registry for every flow.
package sso

import (
	"context"
	"net/url"
)

// Name identifies a supported provider.
type Name string

const (
	Google   Name = "google"
	Yandex   Name = "yandex"
	Telegram Name = "telegram"
)

// Names lists every supported provider.
func Names() []Name {
	return []Name{Google, Yandex, Telegram}
}

// ParseName validates a provider name taken from user input.
func ParseName(raw string) (Name, error) {
	for _, n := range Names() {
		if string(n) == raw {
			return n, nil
		}
	}
	return "", ErrUnknownProvider.WithMessage("Unknown SSO provider %q", raw)
}

// OpenID is the provider-agnostic identity every strategy produces.
type OpenID struct {
	Provider    Name   `json:"provider"`
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
}

// Token is the token set a provider returned for the current flow.
type Token struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	ExpiresIn    int64
	Scope        string
}

// DiscoveryDocument lists a provider's endpoints.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri,omitempty"`
}

// Callback is what the caller brings back from the provider.
type Callback struct {
	Code        string
	RedirectURI string
	// State is the value the provider echoed back; ExpectedState is the value
	// remembered when the login URL was built (for example from a cookie).
	State         string
	ExpectedState string
	CodeVerifier  string
	Widget        *WidgetPayload
}

// Provider is the capability contract every identity provider implements.
type Provider interface {
	Name() Name
	Discover(ctx context.Context) (DiscoveryDocument, error)
	LoginURL(ctx context.Context, redirectURI, state string, params url.Values) (string, error)
	Login(ctx context.Context, cb Callback) (*Token, error)
	UserInfo(ctx context.Context) (*OpenID, error)
	RawUserInfo(ctx context.Context) (map[string]any, error)
	// State and CodeVerifier expose the transient values generated while
	// building the login URL so the caller can carry them to the callback.
	State() string
	CodeVerifier() string
}
