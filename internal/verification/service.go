// Package verification issues short numeric one-time codes bound to a user
// and a purpose.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"passport/internal/apperr"
	"passport/internal/platform/cache"
)

var (
	ErrCodeExpired = apperr.New(apperr.KindBadRequest, "code_expired", "Verification code expired or was never issued")
	ErrWrongCode   = apperr.New(apperr.KindBadRequest, "wrong_code", "Wrong verification code")
)

// Purpose scopes a code so codes for different actions never collide.
type Purpose string

const (
	PurposeVerify    Purpose = "verify"
	PurposeSensitive Purpose = "sensitive"
	PurposeReset     Purpose = "reset"
)

const (
	defaultLength = 6
	defaultTTL    = 5 * time.Minute
)

// Service issues and checks verification codes.
type Service struct {
	store  cache.Store
	length int
	ttl    time.Duration
}

// NewService wires a Service. Zero length or ttl fall back to 6 digits and 5 minutes.
func NewService(store cache.Store, length int, ttl time.Duration) *Service {
	if length <= 0 {
		length = defaultLength
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{store: store, length: length, ttl: ttl}
}

// TTL returns how long an issued code stays valid.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue generates a new code for userID, replacing any previous one.
func (s *Service) Issue(ctx context.Context, userID string, purpose Purpose) (string, error) {
	code, err := generateCode(s.length)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	if err := s.store.Set(ctx, key(userID, purpose), code, s.ttl); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Check consumes the code for userID. A wrong code leaves the stored code intact.
func (s *Service) Check(ctx context.Context, userID string, purpose Purpose, code string) error {
	k := key(userID, purpose)
	stored, err := s.store.Get(ctx, k)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return ErrCodeExpired
		}
		return fmt.Errorf("load code: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(stored)) != 1 {
		return ErrWrongCode
	}

	if err := s.store.Delete(ctx, k); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

func key(userID string, purpose Purpose) string {
	return "verification:" + string(purpose) + ":" + userID
}

func generateCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for range length {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
