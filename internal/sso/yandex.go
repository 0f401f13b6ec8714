package sso

import (
	"context"
	"errors"
	"net/http"
)

const yandexAvatarURL = "https://avatars.yandex.net/get-yapic"

var yandexDiscovery = DiscoveryDocument{
	AuthorizationEndpoint: "https://oauth.yandex.ru/authorize",
	TokenEndpoint:         "https://oauth.yandex.ru/token",
	UserinfoEndpoint:      "https://login.yandex.ru/info?format=json",
}

// YandexProvider authenticates users with Yandex ID. Its endpoints are fixed.
type YandexProvider struct {
	*oauth2Flow
	doc DiscoveryDocument
}

// NewYandex creates a Yandex provider.
func NewYandex(creds ClientConfig, client *http.Client) *YandexProvider {
	y := &YandexProvider{doc: yandexDiscovery}
	y.oauth2Flow = &oauth2Flow{
		name:          Yandex,
		creds:         creds,
		scopes:        []string{"login:email", "login:info", "login:avatar"},
		requiresState: true,
		client:        client,
		endpoints:     y.Discover,
	}
	return y
}

// Name returns "yandex".
func (y *YandexProvider) Name() Name { return Yandex }

// Discover returns the fixed Yandex endpoints.
func (y *YandexProvider) Discover(context.Context) (DiscoveryDocument, error) {
	return y.doc, nil
}

// RawUserInfo returns the unmodified userinfo response.
func (y *YandexProvider) RawUserInfo(ctx context.Context) (map[string]any, error) {
	return y.fetchUserInfo(ctx, y.doc.UserinfoEndpoint, "OAuth")
}

// UserInfo returns the normalized identity.
func (y *YandexProvider) UserInfo(ctx context.Context) (*OpenID, error) {
	raw, err := y.RawUserInfo(ctx)
	if err != nil {
		return nil, err
	}
	return yandexOpenID(raw)
}

func yandexOpenID(raw map[string]any) (*OpenID, error) {
	id := stringField(raw, "id")
	if id == "" {
		return nil, ErrLoginFailed.WithCause(errors.New("yandex userinfo: missing id"))
	}
	var picture string
	if avatarID := stringField(raw, "default_avatar_id"); avatarID != "" && !boolField(raw, "is_avatar_empty") {
		picture = yandexAvatarURL + "/" + avatarID + "/islands-200"
	}
	return &OpenID{
		Provider:    Yandex,
		ID:          id,
		Email:       stringField(raw, "default_email"),
		FirstName:   stringField(raw, "first_name"),
		LastName:    stringField(raw, "last_name"),
		DisplayName: stringField(raw, "display_name"),
		Picture:     picture,
	}, nil
}
