// Package tokens issues and validates the signed bearer tokens handed to
// first-party clients.
package tokens

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"passport/internal/apperr"
)

var (
	ErrInvalidToken = apperr.New(apperr.KindUnauthorized, "invalid_token", "Invalid token")

	// The specific failures below all match ErrInvalidToken as well.
	ErrBadSignature     = apperr.New(apperr.KindUnauthorized, "invalid_token_signature", "Token signature is invalid").Refines(ErrInvalidToken)
	ErrWrongAlgorithm   = apperr.New(apperr.KindUnauthorized, "invalid_token_algorithm", "Token is signed with an unexpected algorithm").Refines(ErrInvalidToken)
	ErrWrongIssuer      = apperr.New(apperr.KindUnauthorized, "invalid_token_issuer", "Token issuer is not accepted").Refines(ErrInvalidToken)
	ErrWrongAudience    = apperr.New(apperr.KindUnauthorized, "invalid_token_audience", "Token audience is not accepted").Refines(ErrInvalidToken)
	ErrExpired          = apperr.New(apperr.KindUnauthorized, "token_expired", "Token has expired").Refines(ErrInvalidToken)
	ErrNotYetValid      = apperr.New(apperr.KindUnauthorized, "token_not_yet_valid", "Token is not valid yet").Refines(ErrInvalidToken)
	ErrInvalidTokenType = apperr.New(apperr.KindUnauthorized, "invalid_token_type", "Invalid token type").Refines(ErrInvalidToken)
)

// Claims is the JWT claim set carried by every token.
type Claims struct {
	Type  Type   `json:"typ"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// BearerToken is the token pair returned to a caller after authentication.
type BearerToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ID           string `json:"jti"`
}

// ClaimOption adds optional identity hints to an access token.
type ClaimOption func(*Claims)

// WithEmail embeds the email hint.
func WithEmail(email string) ClaimOption {
	return func(c *Claims) { c.Email = email }
}

// WithName embeds the display name hint.
func WithName(name string) ClaimOption {
	return func(c *Claims) { c.Name = name }
}

// Service signs and validates tokens for the configured Set.
type Service struct {
	set   Set
	now   func() time.Time
	newID func() string
}

// Option configures the Service during construction.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDSource overrides the token identifier generator.
func WithIDSource(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService constructs a Service.
func NewService(set Set, opts ...Option) *Service {
	svc := &Service{
		set:   set,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Params returns the token configuration set.
func (s *Service) Params() Set {
	return s.set
}

// Issue signs a token of params.Type for subject.
func (s *Service) Issue(params Params, subject string, opts ...ClaimOption) (string, error) {
	token, _, err := s.issue(params, subject, opts...)
	return token, err
}

func (s *Service) issue(params Params, subject string, opts ...ClaimOption) (string, Claims, error) {
	now := s.now().UTC().Truncate(time.Second)
	claims := Claims{
		Type: params.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.newID(),
			Issuer:    params.Issuer,
			Audience:  jwt.ClaimStrings(params.Audience),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(params.Lifetime)),
		},
	}
	if params.Type == TypeAccess {
		for _, opt := range opts {
			opt(&claims)
		}
	}

	signed, err := jwt.NewWithClaims(params.Method, claims).SignedString(params.SignKey)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign %s token: %w", params.Type, err)
	}
	return signed, claims, nil
}

// Pair issues an access and refresh token for subject.
func (s *Service) Pair(subject string, opts ...ClaimOption) (BearerToken, error) {
	access, claims, err := s.issue(s.set.Access, subject, opts...)
	if err != nil {
		return BearerToken{}, err
	}
	refresh, err := s.Issue(s.set.Refresh, subject)
	if err != nil {
		return BearerToken{}, err
	}
	return BearerToken{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.set.Access.Lifetime.Seconds()),
		ID:           claims.ID,
	}, nil
}

var errUnexpectedAlgorithm = errors.New("unexpected signing algorithm")

// Validate verifies raw against params and returns its claims.
func (s *Service) Validate(params Params, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != params.Method.Alg() {
			return nil, errUnexpectedAlgorithm
		}
		return params.VerifyKey, nil
	},
		jwt.WithIssuer(params.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if len(params.Audience) > 0 && !audienceMatches(claims.Audience, params.Audience) {
		return nil, ErrWrongAudience
	}
	if claims.Type != params.Type {
		return nil, ErrInvalidTokenType.WithMessage("Invalid token type: %s", claims.Type)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, errUnexpectedAlgorithm):
		return ErrWrongAlgorithm.WithCause(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature.WithCause(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired.WithCause(err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid.WithCause(err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrWrongIssuer.WithCause(err)
	default:
		return ErrInvalidToken.WithCause(err)
	}
}

func audienceMatches(got jwt.ClaimStrings, accepted []string) bool {
	for _, aud := range got {
		if slices.Contains(accepted, aud) {
			return true
		}
	}
	return false
}
