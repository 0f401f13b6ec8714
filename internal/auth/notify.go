package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"passport/internal/notify"
	"passport/internal/sso"
	"passport/internal/tokens"
	"passport/internal/users"
	"passport/internal/verification"
)

// NotifyService sends verification codes and trades them for short-lived
// verification tokens.
type NotifyService struct {
	store      users.Store
	codes      *verification.Service
	tokens     *tokens.Service
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

// NewNotifyService creates a NotifyService.
func NewNotifyService(store users.Store, codes *verification.Service, tokenService *tokens.Service, dispatcher *notify.Dispatcher, logger *slog.Logger) *NotifyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyService{store: store, codes: codes, tokens: tokenService, dispatcher: dispatcher, logger: logger}
}

// purposeFor scopes codes: unverified users confirm their account, verified
// users confirm a sensitive action.
func purposeFor(user users.User) verification.Purpose {
	if user.IsVerified {
		return verification.PurposeSensitive
	}
	return verification.PurposeVerify
}

// SendCode issues a code and delivers it over ch. Delivery failures are
// logged, not returned.
func (s *NotifyService) SendCode(ctx context.Context, user users.User, ch notify.Channel) error {
	if !s.dispatcher.Available(ch) {
		return notify.ErrChannelUnavailable.WithMessage("Notification channel %q is not configured", ch)
	}
	to, err := s.address(ctx, user, ch)
	if err != nil {
		return err
	}

	code, err := s.codes.Issue(ctx, user.ID.String(), purposeFor(user))
	if err != nil {
		return fmt.Errorf("issue verification code: %w", err)
	}

	msg := notify.Message{
		To:      to,
		Subject: "Your verification code",
		Body:    fmt.Sprintf("Your verification code is %s. It expires in %s.", code, s.codes.TTL().Round(time.Second)),
	}
	if err := s.dispatcher.Send(ctx, ch, msg); err != nil {
		s.logger.Warn("verification code delivery failed", "channel", ch, "user_id", user.ID, "error", err)
	}
	return nil
}

func (s *NotifyService) address(ctx context.Context, user users.User, ch notify.Channel) (string, error) {
	switch ch {
	case notify.ChannelEmail:
		email := user.EmailOrEmpty()
		if email == "" {
			return "", ErrNoAddress.WithMessage("User has no email address")
		}
		return email, nil
	case notify.ChannelTelegram:
		var account users.SSOAccount
		err := s.store.Within(ctx, func(repos users.Repositories) error {
			var err error
			account, err = repos.SSOAccounts().GetByUserAndProvider(ctx, user.ID, string(sso.Telegram))
			return err
		})
		if errors.Is(err, users.ErrNotFound) {
			return "", ErrNoAddress.WithMessage("User has no linked Telegram account")
		}
		if err != nil {
			return "", fmt.Errorf("find telegram account: %w", err)
		}
		return account.AccountID, nil
	default:
		return "", notify.ErrChannelUnavailable
	}
}

// VerifyCode consumes code, marks the user verified and returns a
// verification token.
func (s *NotifyService) VerifyCode(ctx context.Context, user users.User, code string) (string, error) {
	if err := s.codes.Check(ctx, user.ID.String(), purposeFor(user), code); err != nil {
		return "", err
	}

	if !user.IsVerified {
		err := s.store.Within(ctx, func(repos users.Repositories) error {
			current, err := repos.Users().Get(ctx, user.ID)
			if err != nil {
				return err
			}
			current.IsVerified = true
			_, err = repos.Users().Update(ctx, current)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("mark user verified: %w", err)
		}
		s.logger.Info("user verified", "user_id", user.ID)
	}

	return s.tokens.Issue(s.tokens.Params().Verification, user.ID.String())
}

// RequireVerificationToken checks that token is a valid verification token
// issued to user.
func (s *NotifyService) RequireVerificationToken(_ context.Context, user users.User, token string) error {
	claims, err := s.tokens.Validate(s.tokens.Params().Verification, token)
	if err != nil {
		return err
	}
	if claims.Subject != user.ID.String() {
		return tokens.ErrInvalidToken
	}
	return nil
}
