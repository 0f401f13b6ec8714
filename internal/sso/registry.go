package sso

import (
	"net/http"
	"time"

	"passport/internal/platform/cache"
)

const defaultHTTPTimeout = 10 * time.Second

// Config enables and configures each provider.
type Config struct {
	Google   ClientConfig
	Yandex   ClientConfig
	Telegram TelegramConfig
}

// Registry builds per-request provider instances.
type Registry struct {
	cfg    Config
	client *http.Client
	store  cache.Store
}

// NewRegistry creates a Registry. A nil client gets a default with a bounded
// timeout; store may be nil.
func NewRegistry(cfg Config, client *http.Client, store cache.Store) *Registry {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Registry{cfg: cfg, client: client, store: store}
}

// Enabled reports whether the provider is turned on in config.
func (r *Registry) Enabled(name Name) bool {
	switch name {
	case Google:
		return r.cfg.Google.Enabled
	case Yandex:
		return r.cfg.Yandex.Enabled
	case Telegram:
		return r.cfg.Telegram.Enabled
	default:
		return false
	}
}

// EnabledNames lists the providers turned on in config.
func (r *Registry) EnabledNames() []Name {
	var out []Name
	for _, n := range Names() {
		if r.Enabled(n) {
			out = append(out, n)
		}
	}
	return out
}

// New returns a fresh provider instance for a single login attempt.
func (r *Registry) New(name Name) (Provider, error) {
	switch name {
	case Google:
		if !r.cfg.Google.Enabled {
			return nil, ErrDisabled
		}
		return NewGoogle(r.cfg.Google, r.client, r.store), nil
	case Yandex:
		if !r.cfg.Yandex.Enabled {
			return nil, ErrDisabled
		}
		return NewYandex(r.cfg.Yandex, r.client), nil
	case Telegram:
		if !r.cfg.Telegram.Enabled {
			return nil, ErrDisabled
		}
		return NewTelegram(r.cfg.Telegram), nil
	default:
		return nil, ErrUnknownProvider.WithMessage("Unknown SSO provider %q", name)
	}
}
