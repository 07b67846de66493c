package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auth-service/internal/auth"
)

// Token is one outstanding email verification grant.
type Token struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Repository implements verification_tokens persistence on PostgreSQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ReplaceToken drops any outstanding token for the user and stores the new
// one. Resending therefore invalidates earlier mails.
func (r *Repository) ReplaceToken(ctx context.Context, record *Token) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin verification token tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM verification_tokens WHERE user_id = $1
	`, record.UserID); err != nil {
		return fmt.Errorf("delete previous verification tokens: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO verification_tokens (id, user_id, token, expires_at)
		VALUES ($1, $2, $3, $4)
	`, record.ID, record.UserID, record.Token, record.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("insert verification token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit verification token tx: %w", err)
	}
	return nil
}

func (r *Repository) FindToken(ctx context.Context, token string) (*Token, error) {
	var record Token
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, created_at
		FROM verification_tokens
		WHERE token = $1
	`, token).Scan(&record.ID, &record.UserID, &record.Token, &record.ExpiresAt, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("query verification token: %w", err)
	}
	return &record, nil
}

func (r *Repository) DeleteToken(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM verification_tokens WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("delete verification token: %w", err)
	}
	return nil
}

// DeleteExpiredTokens is the retention sweep for this table.
func (r *Repository) DeleteExpiredTokens(ctx context.Context, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM verification_tokens
			WHERE expires_at < NOW()
			ORDER BY created_at ASC
			LIMIT $1
		)
		DELETE FROM verification_tokens t
		USING stale
		WHERE t.id = stale.id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired verification tokens: %w", err)
	}
	return res.RowsAffected()
}
