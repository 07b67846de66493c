package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository implements Store on PostgreSQL through database/sql.
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

// NewID returns a fresh UUIDv7 string.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid v7: %w", err)
	}
	return id.String(), nil
}

// --- users ---

const userColumns = `id, email, password_hash, first_name, last_name,
		email_verified_at, disabled_at, totp_secret, totp_enabled_at,
		created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var passwordHash, totpSecret sql.NullString
	var verifiedAt, disabledAt, totpEnabledAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Email, &passwordHash, &user.FirstName, &user.LastName,
		&verifiedAt, &disabledAt, &totpSecret, &totpEnabledAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if passwordHash.Valid {
		user.PasswordHash = &passwordHash.String
	}
	if totpSecret.Valid {
		user.TOTPSecret = &totpSecret.String
	}
	if verifiedAt.Valid {
		value := verifiedAt.Time.UTC()
		user.EmailVerifiedAt = &value
	}
	if disabledAt.Valid {
		value := disabledAt.Time.UTC()
		user.DisabledAt = &value
	}
	if totpEnabledAt.Valid {
		value := totpEnabledAt.Time.UTC()
		user.TOTPEnabledAt = &value
	}

	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) SetEmailVerified(ctx context.Context, userID string, verifiedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email_verified_at = $2, updated_at = $2
		WHERE id = $1
	`, userID, verifiedAt.UTC())
	if err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) SetTOTPSecret(ctx context.Context, userID, secret string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET totp_secret = $2, totp_enabled_at = NULL, updated_at = $3
		WHERE id = $1
	`, userID, secret, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set totp secret: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) EnableTOTP(ctx context.Context, userID string, enabledAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET totp_enabled_at = $2, updated_at = $2
		WHERE id = $1 AND totp_secret IS NOT NULL
	`, userID, enabledAt.UTC())
	if err != nil {
		return fmt.Errorf("enable totp: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- refresh tokens ---

func (r *Repository) CreateRefreshToken(ctx context.Context, record *RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, user_id, token_hash, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.UserID, record.TokenHash, record.UserAgent, record.IPAddress, record.ExpiresAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *Repository) FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var record RefreshToken
	var revokedAt sql.NullTime
	var replacedBy sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, user_agent, ip_address, expires_at, revoked_at, replaced_by, created_at
		FROM auth_refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&record.ID, &record.UserID, &record.TokenHash, &record.UserAgent, &record.IPAddress,
		&record.ExpiresAt, &revokedAt, &replacedBy, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query refresh token: %w", err)
	}

	if revokedAt.Valid {
		value := revokedAt.Time.UTC()
		record.RevokedAt = &value
	}
	if replacedBy.Valid {
		record.ReplacedBy = &replacedBy.String
	}

	return &record, nil
}

// RotateRefreshToken revokes the grant identified by oldID and inserts its
// successor inside one transaction. The row lock re-checks usability so that
// of two concurrent rotations of the same token exactly one commits; the
// loser observes the tombstone and gets ErrTokenNotUsable.
func (r *Repository) RotateRefreshToken(ctx context.Context, oldID string, successor *RefreshToken) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh rotation tx: %w", err)
	}
	defer tx.Rollback()

	var expiresAt time.Time
	var revokedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT expires_at, revoked_at
		FROM auth_refresh_tokens
		WHERE id = $1
		FOR UPDATE
	`, oldID).Scan(&expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTokenNotUsable
		}
		return fmt.Errorf("lock refresh token row: %w", err)
	}

	if revokedAt.Valid || now.After(expiresAt.UTC()) {
		return ErrTokenNotUsable
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, user_id, token_hash, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, successor.ID, successor.UserID, successor.TokenHash, successor.UserAgent, successor.IPAddress, successor.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert rotated refresh token: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = $2, replaced_by = $3
		WHERE id = $1
	`, oldID, now, successor.ID)
	if err != nil {
		return fmt.Errorf("revoke rotated refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh rotation tx: %w", err)
	}

	return nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = $3
		WHERE token_hash = $1 AND user_id = $2 AND revoked_at IS NULL
	`, tokenHash, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return nil
}

// --- access token blacklist ---

func (r *Repository) BlacklistAccessToken(ctx context.Context, record *BlacklistedAccessToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_blacklisted_access_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_hash) DO NOTHING
	`, record.ID, record.UserID, record.TokenHash, record.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert blacklisted access token: %w", err)
	}
	return nil
}

func (r *Repository) IsAccessTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM auth_blacklisted_access_tokens
			WHERE token_hash = $1 AND expires_at > NOW()
		)
	`, tokenHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query blacklisted access token: %w", err)
	}
	return exists, nil
}

// --- retention sweeps ---

// DeleteStaleRefreshTokens removes rows that expired, or whose tombstone is
// older than retention. Live tombstones stay: they are what reuse detection
// observes.
func (r *Repository) DeleteStaleRefreshTokens(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_refresh_tokens
			WHERE expires_at < NOW() OR (revoked_at IS NOT NULL AND revoked_at < $1)
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM auth_refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh tokens: %w", err)
	}

	return res.RowsAffected()
}

// DeleteExpiredBlacklistedTokens drops blacklist rows past their expiry; the
// tokens they named would fail verification on expiry grounds anyway.
func (r *Repository) DeleteExpiredBlacklistedTokens(ctx context.Context, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_blacklisted_access_tokens
			WHERE expires_at < NOW()
			ORDER BY created_at ASC
			LIMIT $1
		)
		DELETE FROM auth_blacklisted_access_tokens t
		USING stale
		WHERE t.id = stale.id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklisted tokens: %w", err)
	}

	return res.RowsAffected()
}
