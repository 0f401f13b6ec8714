package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"passport/internal/tokens"
	"passport/internal/users"
)

const minPasswordLength = 8

// dummyHash is compared against when the email is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z6wQbnjs3Jv1aGrCuAC6/pRa")

// Service provides first-party authentication: password and refresh grants,
// access token resolution and user registration.
type Service struct {
	store      users.Store
	tokens     *tokens.Service
	logger     *slog.Logger
	bcryptCost int
}

// NewService creates a new auth Service.
func NewService(store users.Store, tokenService *tokens.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		tokens:     tokenService,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// SetBcryptCost overrides the hashing cost for new passwords.
func (s *Service) SetBcryptCost(cost int) {
	s.bcryptCost = cost
}

// PasswordGrant exchanges an email and password for a token pair.
func (s *Service) PasswordGrant(ctx context.Context, email, password string) (tokens.BearerToken, error) {
	var user users.User
	err := s.store.Within(ctx, func(repos users.Repositories) error {
		var err error
		user, err = repos.Users().GetByEmail(ctx, email)
		return err
	})
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		return tokens.BearerToken{}, fmt.Errorf("find user: %w", err)
	}

	if err != nil || !user.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return tokens.BearerToken{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) != nil {
		return tokens.BearerToken{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return tokens.BearerToken{}, ErrInactiveUser
	}

	return s.IssueFor(user)
}

// RefreshGrant exchanges a refresh token for a new token pair.
func (s *Service) RefreshGrant(ctx context.Context, refreshToken string) (tokens.BearerToken, error) {
	claims, err := s.tokens.Validate(s.tokens.Params().Refresh, refreshToken)
	if err != nil {
		return tokens.BearerToken{}, err
	}
	user, err := s.resolveSubject(ctx, claims.Subject)
	if err != nil {
		return tokens.BearerToken{}, err
	}
	return s.IssueFor(user)
}

// Authenticate resolves an access token to an active user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (users.User, error) {
	if accessToken == "" {
		return users.User{}, ErrUnauthenticated
	}
	claims, err := s.tokens.Validate(s.tokens.Params().Access, accessToken)
	if err != nil {
		return users.User{}, err
	}
	return s.resolveSubject(ctx, claims.Subject)
}

func (s *Service) resolveSubject(ctx context.Context, subject string) (users.User, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return users.User{}, tokens.ErrInvalidToken
	}

	var user users.User
	err = s.store.Within(ctx, func(repos users.Repositories) error {
		var err error
		user, err = repos.Users().Get(ctx, id)
		return err
	})
	if errors.Is(err, users.ErrNotFound) {
		return users.User{}, ErrUnauthenticated
	}
	if err != nil {
		return users.User{}, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return users.User{}, ErrInactiveUser
	}
	return user, nil
}

// IssueFor issues a token pair for user.
func (s *Service) IssueFor(user users.User, opts ...tokens.ClaimOption) (tokens.BearerToken, error) {
	if email := user.EmailOrEmpty(); email != "" {
		opts = append([]tokens.ClaimOption{tokens.WithEmail(email)}, opts...)
	}
	return s.tokens.Pair(user.ID.String(), opts...)
}

// Registration describes a new password user.
type Registration struct {
	Email       string
	Password    string
	IsSuperuser bool
	IsVerified  bool
}

// Register creates a password user. The email must be unused.
func (s *Service) Register(ctx context.Context, reg Registration) (users.User, error) {
	email := users.NormalizeEmail(reg.Email)
	if email == nil {
		return users.User{}, ErrEmailRequired
	}
	if len(reg.Password) < minPasswordLength {
		return users.User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.bcryptCost)
	if err != nil {
		return users.User{}, fmt.Errorf("hash password: %w", err)
	}
	hashed := string(hash)

	var created users.User
	err = s.store.Within(ctx, func(repos users.Repositories) error {
		if _, err := repos.Users().GetByEmail(ctx, *email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, users.ErrNotFound) {
			return fmt.Errorf("find user: %w", err)
		}

		u, err := repos.Users().Create(ctx, users.User{
			Email:        email,
			PasswordHash: &hashed,
			IsActive:     true,
			IsSuperuser:  reg.IsSuperuser,
			IsVerified:   reg.IsVerified,
		})
		if errors.Is(err, users.ErrUniqueViolation) {
			return ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		created = u
		return nil
	})
	if err != nil {
		return users.User{}, err
	}

	s.logger.Info("user registered", "user_id", created.ID, "superuser", created.IsSuperuser)
	return created, nil
}

// EnsureSuperuser registers a verified superuser unless the email is taken.
func (s *Service) EnsureSuperuser(ctx context.Context, email, password string) error {
	_, err := s.Register(ctx, Registration{Email: email, Password: password, IsSuperuser: true, IsVerified: true})
	if errors.Is(err, ErrEmailTaken) {
		s.logger.Debug("superuser already present", "email", email)
		return nil
	}
	return err
}
