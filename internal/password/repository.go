package password

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auth-service/internal/auth"
)

// ResetToken is one outstanding password reset grant. A user has at most one:
// requesting a new reset replaces the previous token.
type ResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Repository implements password_reset_tokens persistence on PostgreSQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ReplaceResetToken drops any outstanding token for the user and stores the
// new one, so an attacker who saw an old reset mail cannot use it after the
// user requests a fresh one.
func (r *Repository) ReplaceResetToken(ctx context.Context, record *ResetToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset token tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM password_reset_tokens WHERE user_id = $1
	`, record.UserID); err != nil {
		return fmt.Errorf("delete previous reset tokens: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at)
		VALUES ($1, $2, $3, $4)
	`, record.ID, record.UserID, record.Token, record.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset token tx: %w", err)
	}
	return nil
}

func (r *Repository) FindResetToken(ctx context.Context, token string) (*ResetToken, error) {
	var record ResetToken
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, created_at
		FROM password_reset_tokens
		WHERE token = $1
	`, token).Scan(&record.ID, &record.UserID, &record.Token, &record.ExpiresAt, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("query reset token: %w", err)
	}
	return &record, nil
}

func (r *Repository) DeleteResetToken(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM password_reset_tokens WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("delete reset token: %w", err)
	}
	return nil
}

// DeleteExpiredResetTokens is the retention sweep for this table.
func (r *Repository) DeleteExpiredResetTokens(ctx context.Context, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM password_reset_tokens
			WHERE expires_at < NOW()
			ORDER BY created_at ASC
			LIMIT $1
		)
		DELETE FROM password_reset_tokens t
		USING stale
		WHERE t.id = stale.id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}
	return res.RowsAffected()
}
