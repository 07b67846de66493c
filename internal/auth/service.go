// Package auth implements the session lifecycle: registration, login,
// refresh-token rotation with reuse detection, and logout with access-token
// blacklisting.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auth-service/internal/apperr"
	"auth-service/internal/observability"
	"auth-service/internal/token"
)

const msgInvalidCredentials = "invalid credentials"

// Service orchestrates the (User, RefreshToken) state machine. It is the only
// caller of the issuer, the refresh token store, and the blacklist.
type Service struct {
	store  Store
	issuer *token.Issuer
	hasher PasswordHasher
	logger *observability.Logger
}

func NewService(store Store, issuer *token.Issuer, hasher PasswordHasher, logger *observability.Logger) *Service {
	return &Service{store: store, issuer: issuer, hasher: hasher, logger: logger}
}

// RegisterInput carries the registration payload after boundary validation.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user and opens its first session.
func (s *Service) Register(ctx context.Context, in RegisterInput, client ClientInfo) (*AuthResult, error) {
	email := NormalizeEmail(in.Email)

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, apperr.Conflict("email already in use")
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           id,
		Email:        email,
		PasswordHash: &hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Concurrent registration won the race on the email unique index.
			return nil, apperr.Conflict("email already in use")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.IssueSession(ctx, user, client)
}

// Login verifies credentials and opens a new session. Every rejection uses
// the same message so callers cannot tell which factor failed.
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (*AuthResult, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			observability.CountLogin("rejected")
			return nil, apperr.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	if !user.HasPassword() || !s.hasher.Verify(*user.PasswordHash, password) || user.Disabled() {
		observability.CountLogin("rejected")
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	result, err := s.IssueSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	observability.CountLogin("success")
	return result, nil
}

// IssueSession mints an access/refresh pair for an already-resolved user and
// persists the refresh grant. Also the entry point for the OAuth callback
// path, which resolves its user elsewhere.
func (s *Service) IssueSession(ctx context.Context, user *User, client ClientInfo) (*AuthResult, error) {
	pair, err := s.mintPair(ctx, user.ID, client)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user.Sanitized(), TokenPair: *pair}, nil
}

func (s *Service) mintPair(ctx context.Context, userID string, client ClientInfo) (*TokenPair, error) {
	now := time.Now().UTC()

	access, err := s.issuer.Issue(token.KindAccess, userID, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.issuer.Issue(token.KindRefresh, userID, now)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: HashToken(refresh),
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		ExpiresAt: s.issuer.ExpiryAt(token.KindRefresh, now),
	}
	if err := s.store.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	observability.CountTokenIssued(string(token.KindAccess))
	observability.CountTokenIssued(string(token.KindRefresh))

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a refresh grant: the presented token is retired and exactly
// one successor is created, atomically. A token that was already rotated is
// rejected forever, which bounds stolen-refresh-token replay to one use.
func (s *Service) Refresh(ctx context.Context, presented string, client ClientInfo) (*TokenPair, error) {
	now := time.Now().UTC()

	record, err := s.store.FindRefreshToken(ctx, HashToken(presented))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			observability.CountRefreshRejected("unknown")
			return nil, apperr.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if record.RevokedAt != nil {
		// Replay of a rotated token.
		observability.CountRefreshRejected("reuse")
		s.logger.Warn("refresh_token_reuse", map[string]any{"user_id": record.UserID})
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}
	if !now.Before(record.ExpiresAt) {
		observability.CountRefreshRejected("expired")
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	claims, err := s.issuer.VerifyKind(presented, token.KindRefresh)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, token.ErrExpired) {
			reason = "expired"
		}
		observability.CountRefreshRejected(reason)
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			observability.CountRefreshRejected("user_gone")
			return nil, apperr.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.Disabled() {
		observability.CountRefreshRejected("user_disabled")
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	access, err := s.issuer.Issue(token.KindAccess, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.issuer.Issue(token.KindRefresh, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	successorID, err := NewID()
	if err != nil {
		return nil, err
	}
	successor := &RefreshToken{
		ID:        successorID,
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		ExpiresAt: s.issuer.ExpiryAt(token.KindRefresh, now),
	}

	if err := s.store.RotateRefreshToken(ctx, record.ID, successor); err != nil {
		if errors.Is(err, ErrTokenNotUsable) {
			// Lost a concurrent rotation of the same token.
			observability.CountRefreshRejected("reuse")
			return nil, apperr.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	observability.CountTokenIssued(string(token.KindAccess))
	observability.CountTokenIssued(string(token.KindRefresh))

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout blacklists the access token for the remainder of its lifetime and
// tombstones the refresh grant. Best effort: an access token that no longer
// verifies is skipped, never an error, so logging out twice is harmless.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken, userID string) error {
	claims, err := s.issuer.VerifyKind(accessToken, token.KindAccess)
	if err == nil && claims.ExpiresAt != nil {
		id, idErr := NewID()
		if idErr != nil {
			return idErr
		}
		record := &BlacklistedAccessToken{
			ID:        id,
			UserID:    userID,
			TokenHash: HashToken(accessToken),
			ExpiresAt: claims.ExpiresAt.Time,
		}
		if err := s.store.BlacklistAccessToken(ctx, record); err != nil {
			return fmt.Errorf("blacklist access token: %w", err)
		}
		observability.CountBlacklistInsert()
	}

	if refreshToken != "" {
		// Scoped to (token, user) so one user cannot revoke another's grant.
		if err := s.store.RevokeRefreshToken(ctx, HashToken(refreshToken), userID); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}

	return nil
}
