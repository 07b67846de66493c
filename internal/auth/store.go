package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrNotFound is returned by store lookups when no row matches.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")

	// ErrTokenNotUsable is returned by RotateRefreshToken when the presented
	// token was revoked or expired by the time the rotation transaction
	// locked its row. Losing one of two concurrent refreshes surfaces here.
	ErrTokenNotUsable = errors.New("refresh token not usable")
)

// Store is the durable record set the session lifecycle operates on.
// Implemented by Repository; faked in tests.
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)

	CreateRefreshToken(ctx context.Context, record *RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// RotateRefreshToken atomically revokes the old grant and inserts its
	// successor. It fails with ErrTokenNotUsable when the old grant is no
	// longer usable, which is what turns refresh replay into a terminal,
	// detectable event.
	RotateRefreshToken(ctx context.Context, oldID string, successor *RefreshToken) error
	// RevokeRefreshToken tombstones the grant matching (tokenHash, userID).
	// Revoking an already-revoked or unknown token is a no-op.
	RevokeRefreshToken(ctx context.Context, tokenHash, userID string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	// BlacklistAccessToken is idempotent: re-inserting the same token hash
	// has no effect.
	BlacklistAccessToken(ctx context.Context, record *BlacklistedAccessToken) error
	IsAccessTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error)
}

// HashToken derives the storage key for a token value. Raw token strings are
// never written to the database.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
