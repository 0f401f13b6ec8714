package sso

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	telegramAuthURL          = "https://oauth.telegram.org/auth"
	defaultTelegramAuthLimit = 5 * time.Minute
)

// WidgetPayload is the data the Telegram login widget hands to the browser.
type WidgetPayload struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// fields returns every present field except hash, keyed by its wire name.
func (p WidgetPayload) fields() map[string]string {
	out := map[string]string{
		"id":        strconv.FormatInt(p.ID, 10),
		"auth_date": strconv.FormatInt(p.AuthDate, 10),
	}
	if p.FirstName != "" {
		out["first_name"] = p.FirstName
	}
	if p.LastName != "" {
		out["last_name"] = p.LastName
	}
	if p.Username != "" {
		out["username"] = p.Username
	}
	if p.PhotoURL != "" {
		out["photo_url"] = p.PhotoURL
	}
	return out
}

// DataCheckString builds the string Telegram signs: sorted key=value lines.
func (p WidgetPayload) DataCheckString() string {
	fields := p.fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}
	return strings.Join(lines, "\n")
}

// TelegramConfig configures the widget flow.
type TelegramConfig struct {
	Enabled    bool
	BotToken   string
	AuthExpiry time.Duration
	Origin     string
}

// TelegramProvider validates Telegram login widget payloads. There is no code
// exchange: the signed payload is the credential.
type TelegramProvider struct {
	cfg     TelegramConfig
	now     func() time.Time
	payload *WidgetPayload
}

// NewTelegram creates a Telegram provider.
func NewTelegram(cfg TelegramConfig) *TelegramProvider {
	if cfg.AuthExpiry <= 0 {
		cfg.AuthExpiry = defaultTelegramAuthLimit
	}
	return &TelegramProvider{cfg: cfg, now: time.Now}
}

// Name returns "telegram".
func (t *TelegramProvider) Name() Name { return Telegram }

func (t *TelegramProvider) State() string        { return "" }
func (t *TelegramProvider) CodeVerifier() string { return "" }

// Discover returns only the widget authorization endpoint.
func (t *TelegramProvider) Discover(context.Context) (DiscoveryDocument, error) {
	return DiscoveryDocument{AuthorizationEndpoint: telegramAuthURL}, nil
}

// BotID returns the numeric prefix of the bot token.
func (t *TelegramProvider) BotID() string {
	id, _, _ := strings.Cut(t.cfg.BotToken, ":")
	return id
}

// LoginURL returns the Telegram OAuth page for the configured bot. redirectURI
// is used as the origin when set.
func (t *TelegramProvider) LoginURL(_ context.Context, redirectURI, _ string, params url.Values) (string, error) {
	origin := redirectURI
	if origin == "" {
		origin = t.cfg.Origin
	}
	if origin == "" {
		return "", ErrMissingRedirect
	}
	// Telegram refuses "localhost" origins.
	origin = strings.Replace(origin, "localhost", "127.0.0.1", 1)

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("bot_id", t.BotID())
	q.Set("origin", origin)
	q.Set("request_access", "write")
	return telegramAuthURL + "?" + q.Encode(), nil
}

// Validate checks the payload signature and freshness and returns the identity.
func (t *TelegramProvider) Validate(p WidgetPayload) (*OpenID, error) {
	if t.cfg.BotToken == "" {
		return nil, ErrDisabled
	}

	secret := sha256.Sum256([]byte(t.cfg.BotToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(p.DataCheckString()))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(p.Hash))) {
		return nil, ErrInvalidSignature
	}

	if t.now().Sub(time.Unix(p.AuthDate, 0)) > t.cfg.AuthExpiry {
		return nil, ErrAuthDataExpired
	}

	return telegramOpenID(p), nil
}

func telegramOpenID(p WidgetPayload) *OpenID {
	display := p.FirstName
	if p.LastName != "" {
		display = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	return &OpenID{
		Provider:    Telegram,
		ID:          strconv.FormatInt(p.ID, 10),
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DisplayName: display,
		Picture:     p.PhotoURL,
	}
}

// Login validates the widget payload carried by the callback.
func (t *TelegramProvider) Login(_ context.Context, cb Callback) (*Token, error) {
	if cb.Widget == nil {
		return nil, ErrLoginFailed.WithCause(errors.New("telegram: missing widget payload"))
	}
	if _, err := t.Validate(*cb.Widget); err != nil {
		return nil, err
	}
	payload := *cb.Widget
	t.payload = &payload
	return &Token{AccessToken: payload.Hash, TokenType: "telegram"}, nil
}

// RawUserInfo returns the validated payload as a map.
func (t *TelegramProvider) RawUserInfo(context.Context) (map[string]any, error) {
	if t.payload == nil {
		return nil, ErrNotAuthorized
	}
	out := make(map[string]any)
	for k, v := range t.payload.fields() {
		out[k] = v
	}
	return out, nil
}

// UserInfo returns the identity from the validated payload.
func (t *TelegramProvider) UserInfo(context.Context) (*OpenID, error) {
	if t.payload == nil {
		return nil, ErrNotAuthorized
	}
	return telegramOpenID(*t.payload), nil
}
