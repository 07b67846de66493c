package oauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"auth-service/internal/auth"
)

// Repository implements the oauth_accounts persistence, plus the one
// cross-table write the resolver needs: creating a user together with its
// first linked account in a single transaction.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) FindAccount(ctx context.Context, provider, providerID string) (*Account, error) {
	var account Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_id, created_at
		FROM oauth_accounts
		WHERE provider = $1 AND provider_id = $2
	`, provider, providerID).Scan(
		&account.ID, &account.UserID, &account.Provider, &account.ProviderID, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("query oauth account: %w", err)
	}
	return &account, nil
}

func (r *Repository) CreateAccount(ctx context.Context, account *Account) error {
	account.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.UserID, account.Provider, account.ProviderID, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrDuplicate
		}
		return fmt.Errorf("insert oauth account: %w", err)
	}
	return nil
}

// CreateUserWithAccount inserts the user row and its first linked account
// atomically, so a crash between the two writes cannot strand a user that the
// resolver would then fail to find by provider identity.
func (r *Repository) CreateUserWithAccount(ctx context.Context, user *auth.User, account *Account) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	account.CreatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin user+account tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, email_verified_at, created_at, updated_at)
		VALUES ($1, $2, NULL, $3, $4, $5, $6, $6)
	`, user.ID, user.Email, user.FirstName, user.LastName, user.EmailVerifiedAt, now)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrDuplicate
		}
		return fmt.Errorf("insert oauth user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.UserID, account.Provider, account.ProviderID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrDuplicate
		}
		return fmt.Errorf("insert first oauth account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user+account tx: %w", err)
	}
	return nil
}

func (r *Repository) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, provider, provider_id, created_at
		FROM oauth_accounts
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query oauth accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0, 2)
	for rows.Next() {
		var account Account
		if err := rows.Scan(&account.ID, &account.UserID, &account.Provider, &account.ProviderID, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan oauth account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oauth accounts: %w", err)
	}
	return accounts, nil
}

func (r *Repository) DeleteAccount(ctx context.Context, userID, provider string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM oauth_accounts
		WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	if err != nil {
		return fmt.Errorf("delete oauth account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}
