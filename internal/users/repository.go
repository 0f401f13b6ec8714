package users

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository persists users. Lookups return ErrNotFound when nothing matches.
type UserRepository interface {
	Create(ctx context.Context, user User) (User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Update(ctx context.Context, user User) (User, error)
	// Delete removes a user together with every linked account.
	Delete(ctx context.Context, id uuid.UUID) error
}

// SSOAccountRepository persists linked external identities.
type SSOAccountRepository interface {
	Create(ctx context.Context, account SSOAccount) (SSOAccount, error)
	Get(ctx context.Context, id uuid.UUID) (SSOAccount, error)
	GetByProviderAndAccountID(ctx context.Context, provider, accountID string) (SSOAccount, error)
	GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (SSOAccount, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]SSOAccount, error)
	Update(ctx context.Context, account SSOAccount) (SSOAccount, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repositories groups the repositories bound to one unit of work.
type Repositories interface {
	Users() UserRepository
	SSOAccounts() SSOAccountRepository
}

// Store runs functions inside an atomic unit of work. Everything fn writes is
// committed when it returns nil and discarded otherwise.
type Store interface {
	Within(ctx context.Context, fn func(Repositories) error) error
}
