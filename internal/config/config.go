package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config aggregates runtime configuration for the passport service.
type Config struct {
	Environment    string   `env:"APP_ENV" envDefault:"development"`
	HTTPPort       int      `env:"PORT" envDefault:"8080"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"text"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8080"`
	DataStore      string   `env:"DATA_STORE" envDefault:"memory"`
	DatabaseURL    string   `env:"-"`
	RedisURL       string   `env:"REDIS_URL"`

	Cookie       CookieConfig       `envPrefix:"AUTH_COOKIE_"`
	JWT          JWTConfig          `envPrefix:"JWT_"`
	Google       OAuthClientConfig  `envPrefix:"SSO_GOOGLE_"`
	Yandex       OAuthClientConfig  `envPrefix:"SSO_YANDEX_"`
	Telegram     TelegramConfig     `envPrefix:"SSO_TELEGRAM_"`
	SMTP         SMTPConfig         `envPrefix:"SMTP_"`
	Verification VerificationConfig `envPrefix:"VERIFICATION_"`
	Admin        AdminConfig        `envPrefix:"ADMIN_"`

	SSOHTTPTimeout    time.Duration `env:"SSO_HTTP_TIMEOUT" envDefault:"10s"`
	SSOAllowedDomains []string      `env:"SSO_ALLOWED_DOMAINS" envSeparator:","`
	SSOAllowedEmails  []string      `env:"SSO_ALLOWED_EMAILS" envSeparator:","`
}

// CookieConfig controls the access token cookie.
type CookieConfig struct {
	Name   string `env:"NAME" envDefault:"access_token"`
	Secure bool   `env:"SECURE"`
	Domain string `env:"DOMAIN"`
}

// JWTConfig holds token policy. Key material is read as secrets.
type JWTConfig struct {
	Algorithm            string        `env:"ALGORITHM" envDefault:"HS256"`
	Issuer               string        `env:"ISSUER" envDefault:"passport"`
	Audience             []string      `env:"AUDIENCE" envSeparator:"," envDefault:"passport"`
	AccessLifetime       time.Duration `env:"ACCESS_LIFETIME" envDefault:"15m"`
	RefreshLifetime      time.Duration `env:"REFRESH_LIFETIME" envDefault:"720h"`
	VerificationLifetime time.Duration `env:"VERIFICATION_LIFETIME" envDefault:"5m"`
	Secret               string        `env:"-"`
	PrivateKey           string        `env:"-"`
	PublicKey            string        `env:"-"`
}

// OAuthClientConfig configures one OAuth2 provider.
type OAuthClientConfig struct {
	Enabled      bool   `env:"ENABLED"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"-"`
	RedirectURI  string `env:"REDIRECT_URI"`
}

// TelegramConfig configures the login widget and the notification bot.
type TelegramConfig struct {
	Enabled       bool          `env:"ENABLED"`
	AuthExpiry    time.Duration `env:"AUTH_EXPIRY" envDefault:"5m"`
	Origin        string        `env:"ORIGIN"`
	NotifyEnabled bool          `env:"NOTIFY_ENABLED"`
	BotToken      string        `env:"-"`
}

// SMTPConfig configures outgoing mail. Mail is disabled without a host.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	From     string `env:"FROM" envDefault:"noreply@localhost"`
	Password string `env:"-"`
}

// VerificationConfig sizes verification codes.
type VerificationConfig struct {
	CodeLength int           `env:"CODE_LENGTH" envDefault:"6"`
	CodeTTL    time.Duration `env:"CODE_TTL" envDefault:"5m"`
}

// AdminConfig seeds a superuser at startup when Email is set.
type AdminConfig struct {
	Email    string `env:"EMAIL"`
	Password string `env:"-"`
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Environment = strings.ToLower(cfg.Environment)
	cfg.DataStore = strings.ToLower(cfg.DataStore)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.AllowedOrigins = trimAll(cfg.AllowedOrigins)
	cfg.JWT.Audience = trimAll(cfg.JWT.Audience)

	secrets := []struct {
		key  string
		dest *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"JWT_SECRET", &cfg.JWT.Secret},
		{"JWT_PRIVATE_KEY", &cfg.JWT.PrivateKey},
		{"JWT_PUBLIC_KEY", &cfg.JWT.PublicKey},
		{"SSO_GOOGLE_CLIENT_SECRET", &cfg.Google.ClientSecret},
		{"SSO_YANDEX_CLIENT_SECRET", &cfg.Yandex.ClientSecret},
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken},
		{"SMTP_PASSWORD", &cfg.SMTP.Password},
		{"ADMIN_PASSWORD", &cfg.Admin.Password},
	}
	for _, s := range secrets {
		value, err := getEnvOrFile(s.key, "/run/secrets/passport_"+strings.ToLower(s.key))
		if err != nil {
			return Config{}, err
		}
		*s.dest = strings.TrimSpace(value)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error

	if !c.IsDevelopment() {
		if len(c.AllowedOrigins) == 0 {
			errs = append(errs, errors.New("ALLOWED_ORIGINS must define at least one origin outside development"))
		}
		for _, origin := range c.AllowedOrigins {
			if origin == "*" {
				errs = append(errs, errors.New("ALLOWED_ORIGINS cannot contain wildcard outside development"))
				break
			}
		}
	}

	switch c.DataStore {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATA_STORE is postgres but DATABASE_URL is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATA_STORE %q", c.DataStore))
	}

	alg := strings.ToUpper(c.JWT.Algorithm)
	switch {
	case strings.HasPrefix(alg, "HS"):
		if c.JWT.Secret == "" {
			errs = append(errs, fmt.Errorf("JWT_SECRET is required for %s", alg))
		}
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"), strings.HasPrefix(alg, "ES"):
		if c.JWT.PrivateKey == "" || c.JWT.PublicKey == "" {
			errs = append(errs, fmt.Errorf("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required for %s", alg))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWT.Algorithm))
	}

	for name, client := range map[string]OAuthClientConfig{"SSO_GOOGLE": c.Google, "SSO_YANDEX": c.Yandex} {
		if client.Enabled && (client.ClientID == "" || client.ClientSecret == "") {
			errs = append(errs, fmt.Errorf("%s_CLIENT_ID and %s_CLIENT_SECRET are required when %s_ENABLED is set", name, name, name))
		}
	}
	if (c.Telegram.Enabled || c.Telegram.NotifyEnabled) && c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required when Telegram login or notifications are enabled"))
	}
	if c.Admin.Email != "" && c.Admin.Password == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set"))
	}

	return errors.Join(errs...)
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore returns true if the in-memory repository should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
