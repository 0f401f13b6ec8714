package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Within runs fn inside a database transaction.
func (s *PostgresStore) Within(ctx context.Context, fn func(Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(postgresRepositories{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type postgresRepositories struct {
	tx *sqlx.Tx
}

func (r postgresRepositories) Users() UserRepository {
	return &postgresUserRepository{tx: r.tx}
}

func (r postgresRepositories) SSOAccounts() SSOAccountRepository {
	return &postgresSSOAccountRepository{tx: r.tx}
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Constraint)
		}
	}
	return err
}

// insertWithSavepoint runs an INSERT ... RETURNING so that a constraint
// violation leaves the surrounding transaction usable for follow-up reads.
func insertWithSavepoint(ctx context.Context, tx *sqlx.Tx, dest any, query string, args ...any) error {
	if _, err := tx.ExecContext(ctx, `SAVEPOINT passport_insert`); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := tx.GetContext(ctx, dest, query, args...); err != nil {
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT passport_insert`); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %w", rbErr)
		}
		return translate(err)
	}
	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT passport_insert`); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

type postgresUserRepository struct {
	tx *sqlx.Tx
}

const userColumns = `id, email, password_hash, is_active, is_superuser, is_verified, created_at, updated_at`

// Create inserts a new user.
func (r *postgresUserRepository) Create(ctx context.Context, user User) (User, error) {
	const query = `
		INSERT INTO users (id, email, password_hash, is_active, is_superuser, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING ` + userColumns

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	var row userRow
	if err := insertWithSavepoint(ctx, r.tx, &row, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.IsActive,
		user.IsSuperuser,
		user.IsVerified,
		time.Now().UTC(),
	); err != nil {
		return User{}, err
	}
	return row.toUser(), nil
}

// Get looks up a user by id.
func (r *postgresUserRepository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var row userRow
	if err := r.tx.GetContext(ctx, &row, query, id); err != nil {
		return User{}, translate(err)
	}
	return row.toUser(), nil
}

// GetByEmail looks up a user by email, ignoring case.
func (r *postgresUserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	var row userRow
	if err := r.tx.GetContext(ctx, &row, query, email); err != nil {
		return User{}, translate(err)
	}
	return row.toUser(), nil
}

// Update overwrites the mutable user fields.
func (r *postgresUserRepository) Update(ctx context.Context, user User) (User, error) {
	const query = `
		UPDATE users
		SET email = $2, password_hash = $3, is_active = $4, is_superuser = $5, is_verified = $6, updated_at = $7
		WHERE id = $1
		RETURNING ` + userColumns

	var row userRow
	if err := r.tx.GetContext(ctx, &row, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.IsActive,
		user.IsSuperuser,
		user.IsVerified,
		time.Now().UTC(),
	); err != nil {
		return User{}, translate(err)
	}
	return row.toUser(), nil
}

// Delete removes a user. Linked accounts go with it through the foreign key.
func (r *postgresUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, r.tx, `DELETE FROM users WHERE id = $1`, id)
}

type postgresSSOAccountRepository struct {
	tx *sqlx.Tx
}

const accountColumns = `id, user_id, provider, account_id, access_token, refresh_token, id_token, expires_in, scope,
	email, first_name, last_name, display_name, picture, created_at, updated_at`

// Create inserts a new linked account.
func (r *postgresSSOAccountRepository) Create(ctx context.Context, account SSOAccount) (SSOAccount, error) {
	const query = `
		INSERT INTO sso_accounts (id, user_id, provider, account_id, access_token, refresh_token, id_token, expires_in, scope,
			email, first_name, last_name, display_name, picture, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING ` + accountColumns

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	var row accountRow
	if err := insertWithSavepoint(ctx, r.tx, &row, query,
		account.ID,
		account.UserID,
		account.Provider,
		account.AccountID,
		account.AccessToken,
		account.RefreshToken,
		account.IDToken,
		account.ExpiresIn,
		account.Scope,
		account.Email,
		account.FirstName,
		account.LastName,
		account.DisplayName,
		account.Picture,
		time.Now().UTC(),
	); err != nil {
		return SSOAccount{}, err
	}
	return row.toAccount(), nil
}

// Get looks up a linked account by id.
func (r *postgresSSOAccountRepository) Get(ctx context.Context, id uuid.UUID) (SSOAccount, error) {
	const query = `SELECT ` + accountColumns + ` FROM sso_accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByProviderAndAccountID looks up the link for an external identity.
func (r *postgresSSOAccountRepository) GetByProviderAndAccountID(ctx context.Context, provider, accountID string) (SSOAccount, error) {
	const query = `SELECT ` + accountColumns + ` FROM sso_accounts WHERE provider = $1 AND account_id = $2`
	return r.getOne(ctx, query, provider, accountID)
}

// GetByUserAndProvider returns the oldest link the user has at a provider.
func (r *postgresSSOAccountRepository) GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (SSOAccount, error) {
	const query = `SELECT ` + accountColumns + ` FROM sso_accounts WHERE user_id = $1 AND provider = $2 ORDER BY created_at LIMIT 1`
	return r.getOne(ctx, query, userID, provider)
}

func (r *postgresSSOAccountRepository) getOne(ctx context.Context, query string, args ...any) (SSOAccount, error) {
	var row accountRow
	if err := r.tx.GetContext(ctx, &row, query, args...); err != nil {
		return SSOAccount{}, translate(err)
	}
	return row.toAccount(), nil
}

// ListByUser returns every link of a user, oldest first.
func (r *postgresSSOAccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]SSOAccount, error) {
	const query = `SELECT ` + accountColumns + ` FROM sso_accounts WHERE user_id = $1 ORDER BY created_at, id`

	var rows []accountRow
	if err := r.tx.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, translate(err)
	}

	accounts := make([]SSOAccount, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, rows[i].toAccount())
	}
	return accounts, nil
}

// Update refreshes cached tokens and profile data of a link.
func (r *postgresSSOAccountRepository) Update(ctx context.Context, account SSOAccount) (SSOAccount, error) {
	const query = `
		UPDATE sso_accounts
		SET access_token = $2, refresh_token = $3, id_token = $4, expires_in = $5, scope = $6,
			email = $7, first_name = $8, last_name = $9, display_name = $10, picture = $11, updated_at = $12
		WHERE id = $1
		RETURNING ` + accountColumns

	var row accountRow
	if err := r.tx.GetContext(ctx, &row, query,
		account.ID,
		account.AccessToken,
		account.RefreshToken,
		account.IDToken,
		account.ExpiresIn,
		account.Scope,
		account.Email,
		account.FirstName,
		account.LastName,
		account.DisplayName,
		account.Picture,
		time.Now().UTC(),
	); err != nil {
		return SSOAccount{}, translate(err)
	}
	return row.toAccount(), nil
}

// Delete removes a link.
func (r *postgresSSOAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, r.tx, `DELETE FROM sso_accounts WHERE id = $1`, id)
}

func deleteByID(ctx context.Context, tx *sqlx.Tx, query string, id uuid.UUID) error {
	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// userRow is a database row representation of User.
type userRow struct {
	ID           uuid.UUID      `db:"id"`
	Email        sql.NullString `db:"email"`
	PasswordHash sql.NullString `db:"password_hash"`
	IsActive     bool           `db:"is_active"`
	IsSuperuser  bool           `db:"is_superuser"`
	IsVerified   bool           `db:"is_verified"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *userRow) toUser() User {
	return User{
		ID:           r.ID,
		Email:        nullableString(r.Email),
		PasswordHash: nullableString(r.PasswordHash),
		IsActive:     r.IsActive,
		IsSuperuser:  r.IsSuperuser,
		IsVerified:   r.IsVerified,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// accountRow is a database row representation of SSOAccount.
type accountRow struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	Provider     string    `db:"provider"`
	AccountID    string    `db:"account_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	IDToken      string    `db:"id_token"`
	ExpiresIn    int64     `db:"expires_in"`
	Scope        string    `db:"scope"`
	Email        string    `db:"email"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	DisplayName  string    `db:"display_name"`
	Picture      string    `db:"picture"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *accountRow) toAccount() SSOAccount {
	return SSOAccount{
		ID:           r.ID,
		UserID:       r.UserID,
		Provider:     r.Provider,
		AccountID:    r.AccountID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		IDToken:      r.IDToken,
		ExpiresIn:    r.ExpiresIn,
		Scope:        r.Scope,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		DisplayName:  r.DisplayName,
		Picture:      r.Picture,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
