package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"passport/internal/notify"
	"passport/internal/users"
	"passport/internal/verification"
)

// AccountService manages the caller's own account: profile changes, deletion
// and password reset by emailed code.
type AccountService struct {
	store  users.Store
	auth   *Service
	notify *NotifyService
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(store users.Store, authService *Service, notifyService *NotifyService, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{store: store, auth: authService, notify: notifyService, logger: logger}
}

// ProfileUpdate lists the fields a user may change. Nil fields are left alone.
type ProfileUpdate struct {
	Email    *string
	Password *string
}

func (u ProfileUpdate) empty() bool {
	return u.Email == nil && u.Password == nil
}

// Update applies upd to the caller. Changing the email or the password needs
// a verification token issued to the caller. A new email must be confirmed
// again.
func (s *AccountService) Update(ctx context.Context, caller users.User, upd ProfileUpdate, verifyToken string) (users.User, error) {
	if upd.empty() {
		return caller, nil
	}
	if verifyToken == "" {
		return users.User{}, ErrVerificationRequired
	}
	if err := s.notify.RequireVerificationToken(ctx, caller, verifyToken); err != nil {
		return users.User{}, err
	}

	var email *string
	if upd.Email != nil {
		if email = users.NormalizeEmail(*upd.Email); email == nil {
			return users.User{}, ErrEmailRequired
		}
	}
	var hash *string
	if upd.Password != nil {
		h, err := s.hashPassword(*upd.Password)
		if err != nil {
			return users.User{}, err
		}
		hash = &h
	}

	var updated users.User
	err := s.store.Within(ctx, func(repos users.Repositories) error {
		current, err := repos.Users().Get(ctx, caller.ID)
		if err != nil {
			return err
		}
		if email != nil && (current.Email == nil || *current.Email != *email) {
			current.Email = email
			current.IsVerified = false
		}
		if hash != nil {
			current.PasswordHash = hash
		}

		updated, err = repos.Users().Update(ctx, current)
		if errors.Is(err, users.ErrUniqueViolation) {
			return ErrEmailTaken
		}
		return err
	})
	switch {
	case errors.Is(err, users.ErrNotFound):
		return users.User{}, ErrUnauthenticated
	case errors.Is(err, ErrEmailTaken):
		return users.User{}, err
	case err != nil:
		return users.User{}, fmt.Errorf("update user: %w", err)
	}

	s.logger.Info("user updated", "user_id", updated.ID, "email_changed", email != nil, "password_changed", hash != nil)
	return updated, nil
}

// Delete removes the caller and every account linked to it.
func (s *AccountService) Delete(ctx context.Context, caller users.User) (users.User, error) {
	err := s.store.Within(ctx, func(repos users.Repositories) error {
		return repos.Users().Delete(ctx, caller.ID)
	})
	if errors.Is(err, users.ErrNotFound) {
		return users.User{}, ErrUnauthenticated
	}
	if err != nil {
		return users.User{}, fmt.Errorf("delete user: %w", err)
	}

	s.logger.Info("user deleted", "user_id", caller.ID)
	return caller, nil
}

// RequestPasswordReset emails a reset code. Unknown emails succeed silently
// so the endpoint does not reveal which addresses are registered.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	if !s.notify.dispatcher.Available(notify.ChannelEmail) {
		return notify.ErrChannelUnavailable.WithMessage("Email delivery is not configured")
	}

	user, err := s.findByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		s.logger.Debug("password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	if !user.IsActive {
		s.logger.Debug("password reset for inactive user", "user_id", user.ID)
		return nil
	}

	code, err := s.notify.codes.Issue(ctx, user.ID.String(), verification.PurposeReset)
	if err != nil {
		return fmt.Errorf("issue reset code: %w", err)
	}
	msg := notify.Message{
		To:      *user.Email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Your password reset code is %s. It expires in %s.", code, s.notify.codes.TTL().Round(time.Second)),
	}
	if err := s.notify.dispatcher.Send(ctx, notify.ChannelEmail, msg); err != nil {
		s.logger.Warn("password reset delivery failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword consumes a reset code and sets a new password. A successful
// reset proves control of the mailbox, so the user becomes verified.
func (s *AccountService) ResetPassword(ctx context.Context, email, code, password string) (users.User, error) {
	user, err := s.findByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return users.User{}, verification.ErrCodeExpired
	}
	if err != nil {
		return users.User{}, err
	}
	if len(password) < minPasswordLength {
		return users.User{}, ErrWeakPassword
	}
	if err := s.notify.codes.Check(ctx, user.ID.String(), verification.PurposeReset, code); err != nil {
		return users.User{}, err
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return users.User{}, err
	}

	var updated users.User
	err = s.store.Within(ctx, func(repos users.Repositories) error {
		current, err := repos.Users().Get(ctx, user.ID)
		if err != nil {
			return err
		}
		current.PasswordHash = &hash
		current.IsVerified = true
		updated, err = repos.Users().Update(ctx, current)
		return err
	})
	if err != nil {
		return users.User{}, fmt.Errorf("reset password: %w", err)
	}

	s.logger.Info("password reset", "user_id", updated.ID)
	return updated, nil
}

func (s *AccountService) findByEmail(ctx context.Context, email string) (users.User, error) {
	normalized := users.NormalizeEmail(email)
	if normalized == nil {
		return users.User{}, ErrEmailRequired
	}
	var user users.User
	err := s.store.Within(ctx, func(repos users.Repositories) error {
		var err error
		user, err = repos.Users().GetByEmail(ctx, *normalized)
		return err
	})
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		return users.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, err
}

func (s *AccountService) hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.auth.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
