package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"passport/internal/sso"
	"passport/internal/tokens"
	"passport/internal/users"
)

// ProviderFactory builds per-request provider instances.
type ProviderFactory interface {
	New(name sso.Name) (sso.Provider, error)
}

// LoginRedirect is where to send the browser plus the transient values the
// caller must carry to the callback.
type LoginRedirect struct {
	URL          string
	State        string
	CodeVerifier string
}

// Identity is the outcome of a successful provider exchange.
type Identity struct {
	OpenID sso.OpenID
	Token  sso.Token
}

// SSOService resolves external identities to local users.
type SSOService struct {
	providers ProviderFactory
	store     users.Store
	auth      *Service
	allowlist Allowlist
	logger    *slog.Logger
}

// NewSSOService creates an SSOService.
func NewSSOService(providers ProviderFactory, store users.Store, auth *Service, logger *slog.Logger) *SSOService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSOService{providers: providers, store: store, auth: auth, logger: logger}
}

// RestrictRegistration limits which identities may create new users.
func (s *SSOService) RestrictRegistration(allowlist Allowlist) {
	s.allowlist = allowlist
}

// LoginURL builds the provider login URL.
func (s *SSOService) LoginURL(ctx context.Context, name sso.Name, redirectURI, state string) (LoginRedirect, error) {
	provider, err := s.providers.New(name)
	if err != nil {
		return LoginRedirect{}, err
	}
	url, err := provider.LoginURL(ctx, redirectURI, state, nil)
	if err != nil {
		return LoginRedirect{}, err
	}
	if state == "" && provider.State() != "" {
		s.logger.Debug("generated sso state", "provider", name)
	}
	return LoginRedirect{URL: url, State: provider.State(), CodeVerifier: provider.CodeVerifier()}, nil
}

// Exchange completes the provider flow and returns the normalized identity.
func (s *SSOService) Exchange(ctx context.Context, name sso.Name, cb sso.Callback) (Identity, error) {
	provider, err := s.providers.New(name)
	if err != nil {
		return Identity{}, err
	}
	token, err := provider.Login(ctx, cb)
	if err != nil {
		s.logger.Info("sso login failed", "provider", name, "error", err)
		return Identity{}, err
	}
	openID, err := provider.UserInfo(ctx)
	if err != nil {
		s.logger.Info("sso userinfo failed", "provider", name, "error", err)
		return Identity{}, err
	}
	return Identity{OpenID: *openID, Token: *token}, nil
}

// errLostRace rolls back a unit of work that collided with a concurrent link.
var errLostRace = errors.New("sso account linked concurrently")

// Authorize logs in with an external identity, registering a verified user
// on first sight. An existing link never creates a user.
func (s *SSOService) Authorize(ctx context.Context, id Identity) (tokens.BearerToken, error) {
	user, err := s.authorize(ctx, id)
	if errors.Is(err, errLostRace) {
		// The concurrent winner's link is committed now; resolving again
		// takes the existing-link path.
		s.logger.Info("sso link race lost, retrying", "provider", id.OpenID.Provider)
		user, err = s.authorize(ctx, id)
		if errors.Is(err, errLostRace) {
			return tokens.BearerToken{}, ErrAlreadyLinkedToOther
		}
	}
	if err != nil {
		return tokens.BearerToken{}, err
	}
	if !user.IsActive {
		return tokens.BearerToken{}, ErrInactiveUser
	}

	var opts []tokens.ClaimOption
	if id.OpenID.DisplayName != "" {
		opts = append(opts, tokens.WithName(id.OpenID.DisplayName))
	}
	return s.auth.IssueFor(user, opts...)
}

func (s *SSOService) authorize(ctx context.Context, id Identity) (users.User, error) {
	provider := string(id.OpenID.Provider)

	var user users.User
	err := s.store.Within(ctx, func(repos users.Repositories) error {
		account, err := repos.SSOAccounts().GetByProviderAndAccountID(ctx, provider, id.OpenID.ID)
		switch {
		case err == nil:
			if _, err := repos.SSOAccounts().Update(ctx, refreshAccount(account, id)); err != nil {
				return fmt.Errorf("update sso account: %w", err)
			}
			user, err = repos.Users().Get(ctx, account.UserID)
			if err != nil {
				return fmt.Errorf("find user: %w", err)
			}
			return nil
		case !errors.Is(err, users.ErrNotFound):
			return fmt.Errorf("find sso account: %w", err)
		}

		user, err = s.userForNewLink(ctx, repos, id)
		if err != nil {
			return err
		}

		link := refreshAccount(users.SSOAccount{UserID: user.ID, Provider: provider, AccountID: id.OpenID.ID}, id)
		if _, err := repos.SSOAccounts().Create(ctx, link); err != nil {
			if errors.Is(err, users.ErrUniqueViolation) {
				return errLostRace
			}
			return fmt.Errorf("create sso account: %w", err)
		}
		s.logger.Info("sso account linked", "provider", provider, "user_id", user.ID)
		return nil
	})
	return user, err
}

// userForNewLink finds the user an unlinked identity belongs to by email or
// registers a new verified user without a password.
func (s *SSOService) userForNewLink(ctx context.Context, repos users.Repositories, id Identity) (users.User, error) {
	email := users.NormalizeEmail(id.OpenID.Email)
	if email != nil {
		existing, err := repos.Users().GetByEmail(ctx, *email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, users.ErrNotFound) {
			return users.User{}, fmt.Errorf("find user: %w", err)
		}
	}

	if s.allowlist.Restricted() && (email == nil || !s.allowlist.Allows(*email)) {
		s.logger.Info("sso registration rejected by allowlist", "provider", id.OpenID.Provider)
		return users.User{}, ErrRegistrationNotAllowed
	}

	created, err := repos.Users().Create(ctx, users.User{Email: email, IsActive: true, IsVerified: true})
	if errors.Is(err, users.ErrUniqueViolation) {
		return users.User{}, errLostRace
	}
	if err != nil {
		return users.User{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered via sso", "provider", id.OpenID.Provider, "user_id", created.ID)
	return created, nil
}

// Connect links an external identity to the authenticated caller.
func (s *SSOService) Connect(ctx context.Context, caller users.User, id Identity) (users.SSOAccount, error) {
	provider := string(id.OpenID.Provider)

	var created users.SSOAccount
	err := s.store.Within(ctx, func(repos users.Repositories) error {
		accounts := repos.SSOAccounts()

		existing, err := accounts.GetByProviderAndAccountID(ctx, provider, id.OpenID.ID)
		if err == nil {
			return alreadyLinked(existing, caller)
		}
		if !errors.Is(err, users.ErrNotFound) {
			return fmt.Errorf("find sso account: %w", err)
		}

		link := refreshAccount(users.SSOAccount{UserID: caller.ID, Provider: provider, AccountID: id.OpenID.ID}, id)
		created, err = accounts.Create(ctx, link)
		if errors.Is(err, users.ErrUniqueViolation) {
			// The unique index is the authority; report who won.
			winner, lookupErr := accounts.GetByProviderAndAccountID(ctx, provider, id.OpenID.ID)
			if lookupErr != nil {
				return fmt.Errorf("find sso account after conflict: %w", lookupErr)
			}
			return alreadyLinked(winner, caller)
		}
		if err != nil {
			return fmt.Errorf("create sso account: %w", err)
		}
		return nil
	})
	if err != nil {
		return users.SSOAccount{}, err
	}

	s.logger.Info("sso account connected", "provider", provider, "user_id", caller.ID)
	return created, nil
}

func alreadyLinked(account users.SSOAccount, caller users.User) error {
	if account.UserID == caller.ID {
		return ErrAlreadyLinkedToYou
	}
	return ErrAlreadyLinkedToOther
}

// Disconnect removes one of the caller's links. The last sign-in method of a
// user without a password cannot be removed.
func (s *SSOService) Disconnect(ctx context.Context, caller users.User, accountID uuid.UUID) error {
	return s.store.Within(ctx, func(repos users.Repositories) error {
		account, err := repos.SSOAccounts().Get(ctx, accountID)
		if errors.Is(err, users.ErrNotFound) || (err == nil && account.UserID != caller.ID) {
			return ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("find sso account: %w", err)
		}

		user, err := repos.Users().Get(ctx, caller.ID)
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}
		if !user.HasPassword() {
			linked, err := repos.SSOAccounts().ListByUser(ctx, caller.ID)
			if err != nil {
				return fmt.Errorf("list sso accounts: %w", err)
			}
			if len(linked) <= 1 {
				return ErrLastAuthMethod
			}
		}

		if err := repos.SSOAccounts().Delete(ctx, account.ID); err != nil {
			return fmt.Errorf("delete sso account: %w", err)
		}
		s.logger.Info("sso account disconnected", "provider", account.Provider, "user_id", caller.ID)
		return nil
	})
}

// Accounts lists the caller's linked accounts.
func (s *SSOService) Accounts(ctx context.Context, caller users.User) ([]users.SSOAccount, error) {
	var accounts []users.SSOAccount
	err := s.store.Within(ctx, func(repos users.Repositories) error {
		var err error
		accounts, err = repos.SSOAccounts().ListByUser(ctx, caller.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list sso accounts: %w", err)
	}
	return accounts, nil
}

// refreshAccount copies the provider tokens and profile of id onto account.
func refreshAccount(account users.SSOAccount, id Identity) users.SSOAccount {
	account.AccessToken = id.Token.AccessToken
	account.RefreshToken = id.Token.RefreshToken
	account.IDToken = id.Token.IDToken
	account.ExpiresIn = id.Token.ExpiresIn
	account.Scope = id.Token.Scope
	account.Email = id.OpenID.Email
	account.FirstName = id.OpenID.FirstName
	account.LastName = id.OpenID.LastName
	account.DisplayName = id.OpenID.DisplayName
	account.Picture = id.OpenID.Picture
	return account
}
