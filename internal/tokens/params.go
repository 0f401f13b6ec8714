package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type is the purpose a token was issued for.
type Type string

const (
	TypeAccess       Type = "access"
	TypeRefresh      Type = "refresh"
	TypeVerification Type = "verification"
)

// Params describes how one type of token is signed and validated.
type Params struct {
	Type      Type
	Method    jwt.SigningMethod
	SignKey   any
	VerifyKey any
	Issuer    string
	Audience  []string
	Lifetime  time.Duration
}

// Set holds the three fixed token configurations.
type Set struct {
	Access       Params
	Refresh      Params
	Verification Params
}

// Config is the key material and policy the Set is derived from.
type Config struct {
	Algorithm            string
	Secret               string
	PrivateKeyPEM        string
	PublicKeyPEM         string
	Issuer               string
	Audience             []string
	AccessLifetime       time.Duration
	RefreshLifetime      time.Duration
	VerificationLifetime time.Duration
}

// NewSet parses key material and builds access, refresh and verification
// params sharing issuer, audience, algorithm and keys.
func NewSet(cfg Config) (Set, error) {
	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return Set{}, fmt.Errorf("tokens: unsupported algorithm %q", cfg.Algorithm)
	}

	signKey, verifyKey, err := parseKeys(alg, cfg)
	if err != nil {
		return Set{}, err
	}

	if cfg.AccessLifetime <= 0 || cfg.RefreshLifetime <= 0 || cfg.VerificationLifetime <= 0 {
		return Set{}, errors.New("tokens: lifetimes must be positive")
	}

	base := Params{
		Method:    method,
		SignKey:   signKey,
		VerifyKey: verifyKey,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
	}

	access := base
	access.Type = TypeAccess
	access.Lifetime = cfg.AccessLifetime

	refresh := base
	refresh.Type = TypeRefresh
	refresh.Lifetime = cfg.RefreshLifetime

	verification := base
	verification.Type = TypeVerification
	verification.Lifetime = cfg.VerificationLifetime

	return Set{Access: access, Refresh: refresh, Verification: verification}, nil
}

func parseKeys(alg string, cfg Config) (any, any, error) {
	switch {
	case strings.HasPrefix(alg, "HS"):
		if cfg.Secret == "" {
			return nil, nil, errors.New("tokens: secret is required for HMAC algorithms")
		}
		key := []byte(cfg.Secret)
		return key, key, nil
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
		if err != nil {
			return nil, nil, fmt.Errorf("tokens: parse rsa private key: %w", err)
		}
		if cfg.PublicKeyPEM == "" {
			return priv, &priv.PublicKey, nil
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, nil, fmt.Errorf("tokens: parse rsa public key: %w", err)
		}
		return priv, pub, nil
	case strings.HasPrefix(alg, "ES"):
		priv, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
		if err != nil {
			return nil, nil, fmt.Errorf("tokens: parse ec private key: %w", err)
		}
		if cfg.PublicKeyPEM == "" {
			return priv, &priv.PublicKey, nil
		}
		pub, err := jwt.ParseECPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, nil, fmt.Errorf("tokens: parse ec public key: %w", err)
		}
		return priv, pub, nil
	default:
		return nil, nil, fmt.Errorf("tokens: unsupported algorithm %q", alg)
	}
}
