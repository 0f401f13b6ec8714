package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps users in-process, ideal for local development or tests.
// Units of work are serialized and run against a copy of the data that
// replaces the live state only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

type memoryState struct {
	users    map[uuid.UUID]User
	accounts map[uuid.UUID]SSOAccount
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			users:    make(map[uuid.UUID]User),
			accounts: make(map[uuid.UUID]SSOAccount),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Within runs fn against a snapshot and commits it on success.
// fn must not call Within on the same store.
func (s *MemoryStore) Within(ctx context.Context, fn func(Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(memoryRepositories{state: work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (st *memoryState) clone() *memoryState {
	cp := &memoryState{
		users:    make(map[uuid.UUID]User, len(st.users)),
		accounts: make(map[uuid.UUID]SSOAccount, len(st.accounts)),
	}
	for id, u := range st.users {
		cp.users[id] = u
	}
	for id, a := range st.accounts {
		cp.accounts[id] = a
	}
	return cp
}

type memoryRepositories struct {
	state *memoryState
	now   func() time.Time
}

func (r memoryRepositories) Users() UserRepository {
	return memoryUserRepository(r)
}

func (r memoryRepositories) SSOAccounts() SSOAccountRepository {
	return memorySSOAccountRepository(r)
}

type memoryUserRepository struct {
	state *memoryState
	now   func() time.Time
}

func (r memoryUserRepository) Create(_ context.Context, user User) (User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, exists := r.state.users[user.ID]; exists {
		return User{}, ErrUniqueViolation
	}
	if r.emailTaken(user.Email, user.ID) {
		return User{}, ErrUniqueViolation
	}

	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.state.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (r memoryUserRepository) Get(_ context.Context, id uuid.UUID) (User, error) {
	user, ok := r.state.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r memoryUserRepository) GetByEmail(_ context.Context, email string) (User, error) {
	for _, user := range r.state.users {
		if user.Email != nil && strings.EqualFold(*user.Email, email) {
			return cloneUser(user), nil
		}
	}
	return User{}, ErrNotFound
}

func (r memoryUserRepository) Update(_ context.Context, user User) (User, error) {
	existing, ok := r.state.users[user.ID]
	if !ok {
		return User{}, ErrNotFound
	}
	if r.emailTaken(user.Email, user.ID) {
		return User{}, ErrUniqueViolation
	}

	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = r.now()
	r.state.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (r memoryUserRepository) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.state.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.state.users, id)
	for accountID, account := range r.state.accounts {
		if account.UserID == id {
			delete(r.state.accounts, accountID)
		}
	}
	return nil
}

func (r memoryUserRepository) emailTaken(email *string, self uuid.UUID) bool {
	if email == nil {
		return false
	}
	for id, other := range r.state.users {
		if id != self && other.Email != nil && strings.EqualFold(*other.Email, *email) {
			return true
		}
	}
	return false
}

func cloneUser(u User) User {
	if u.Email != nil {
		v := *u.Email
		u.Email = &v
	}
	if u.PasswordHash != nil {
		v := *u.PasswordHash
		u.PasswordHash = &v
	}
	return u
}

type memorySSOAccountRepository struct {
	state *memoryState
	now   func() time.Time
}

func (r memorySSOAccountRepository) Create(_ context.Context, account SSOAccount) (SSOAccount, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if _, ok := r.state.users[account.UserID]; !ok {
		return SSOAccount{}, ErrNotFound
	}
	if _, exists := r.state.accounts[account.ID]; exists {
		return SSOAccount{}, ErrUniqueViolation
	}
	for _, other := range r.state.accounts {
		if other.Provider == account.Provider && other.AccountID == account.AccountID {
			return SSOAccount{}, ErrUniqueViolation
		}
	}

	now := r.now()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.state.accounts[account.ID] = account
	return account, nil
}

func (r memorySSOAccountRepository) Get(_ context.Context, id uuid.UUID) (SSOAccount, error) {
	account, ok := r.state.accounts[id]
	if !ok {
		return SSOAccount{}, ErrNotFound
	}
	return account, nil
}

func (r memorySSOAccountRepository) GetByProviderAndAccountID(_ context.Context, provider, accountID string) (SSOAccount, error) {
	for _, account := range r.state.accounts {
		if account.Provider == provider && account.AccountID == accountID {
			return account, nil
		}
	}
	return SSOAccount{}, ErrNotFound
}

func (r memorySSOAccountRepository) GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (SSOAccount, error) {
	accounts, _ := r.ListByUser(ctx, userID)
	for _, account := range accounts {
		if account.Provider == provider {
			return account, nil
		}
	}
	return SSOAccount{}, ErrNotFound
}

func (r memorySSOAccountRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]SSOAccount, error) {
	accounts := make([]SSOAccount, 0)
	for _, account := range r.state.accounts {
		if account.UserID == userID {
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].ID.String() < accounts[j].ID.String()
	})
	return accounts, nil
}

func (r memorySSOAccountRepository) Update(_ context.Context, account SSOAccount) (SSOAccount, error) {
	existing, ok := r.state.accounts[account.ID]
	if !ok {
		return SSOAccount{}, ErrNotFound
	}

	// The identity key and owner are immutable.
	account.UserID = existing.UserID
	account.Provider = existing.Provider
	account.AccountID = existing.AccountID
	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = r.now()
	r.state.accounts[account.ID] = account
	return account, nil
}

func (r memorySSOAccountRepository) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.state.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(r.state.accounts, id)
	return nil
}
