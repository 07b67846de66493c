// Package password covers the credential management flows: forgot/reset with
// mailed single-use tokens, authenticated change, and first-time set for
// accounts created through OAuth.
package password

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"auth-service/internal/apperr"
	"auth-service/internal/auth"
	"auth-service/internal/mail"
	"auth-service/internal/observability"
)

const resetTokenTTL = time.Hour

// UserStore is the slice of user persistence this package needs, satisfied by
// auth.Repository.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
	GetUserByID(ctx context.Context, id string) (*auth.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// SessionRevoker tears down every refresh grant of a user, satisfied by
// auth.Repository.
type SessionRevoker interface {
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// TokenStore is the reset token persistence, satisfied by Repository.
type TokenStore interface {
	ReplaceResetToken(ctx context.Context, record *ResetToken) error
	FindResetToken(ctx context.Context, token string) (*ResetToken, error)
	DeleteResetToken(ctx context.Context, id string) error
}

type Service struct {
	users    UserStore
	tokens   TokenStore
	sessions SessionRevoker
	hasher   auth.PasswordHasher
	mailer   mail.Sender
	logger   *observability.Logger

	appURL            string
	exposeDebugTokens bool
}

func NewService(users UserStore, tokens TokenStore, sessions SessionRevoker, hasher auth.PasswordHasher, mailer mail.Sender, logger *observability.Logger, appURL string, exposeDebugTokens bool) *Service {
	return &Service{
		users:             users,
		tokens:            tokens,
		sessions:          sessions,
		hasher:            hasher,
		mailer:            mailer,
		logger:            logger,
		appURL:            appURL,
		exposeDebugTokens: exposeDebugTokens,
	}
}

// ForgotResult is identical whether or not the email matched a user. The
// DebugToken field is populated only with EXPOSE_DEBUG_TOKENS on.
type ForgotResult struct {
	DebugToken string
}

// Forgot starts a reset flow. The outcome is indistinguishable for known and
// unknown addresses so the endpoint cannot be used to enumerate accounts.
func (s *Service) Forgot(ctx context.Context, email string) (*ForgotResult, error) {
	user, err := s.users.GetUserByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return &ForgotResult{}, nil
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	raw, err := newToken()
	if err != nil {
		return nil, err
	}
	id, err := auth.NewID()
	if err != nil {
		return nil, err
	}

	record := &ResetToken{
		ID:        id,
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: time.Now().UTC().Add(resetTokenTTL),
	}
	if err := s.tokens.ReplaceResetToken(ctx, record); err != nil {
		return nil, fmt.Errorf("store reset token: %w", err)
	}

	s.sendMail(ctx, user, mail.TemplatePasswordReset, mail.Params{
		ActionURL: fmt.Sprintf("%s/reset-password?token=%s", s.appURL, raw),
		FirstName: user.FirstName,
	})

	result := &ForgotResult{}
	if s.exposeDebugTokens {
		result.DebugToken = raw
	}
	return result, nil
}

// Reset consumes a reset token, replaces the password, and revokes every
// refresh grant so stolen sessions die with the old credential.
func (s *Service) Reset(ctx context.Context, token, newPassword string) error {
	record, err := s.tokens.FindResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return apperr.BadRequest("invalid or expired reset token")
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}
	if !time.Now().UTC().Before(record.ExpiresAt) {
		return apperr.BadRequest("invalid or expired reset token")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, record.UserID, hash); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return apperr.BadRequest("invalid or expired reset token")
		}
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.tokens.DeleteResetToken(ctx, record.ID); err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if err := s.sessions.RevokeAllRefreshTokens(ctx, record.UserID); err != nil {
		return fmt.Errorf("revoke sessions after reset: %w", err)
	}

	s.logger.Info("password_reset", map[string]any{"user_id": record.UserID})
	s.notifyChanged(ctx, record.UserID)
	return nil
}

// Change replaces the password for an authenticated user after verifying the
// current one, then revokes all other sessions.
func (s *Service) Change(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if !user.HasPassword() {
		return apperr.BadRequest("no password set for this account")
	}
	if !s.hasher.Verify(*user.PasswordHash, currentPassword) {
		return apperr.Unauthorized("current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.sessions.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions after change: %w", err)
	}

	s.logger.Info("password_changed", map[string]any{"user_id": userID})
	s.sendMail(ctx, user, mail.TemplatePasswordChanged, mail.Params{FirstName: user.FirstName})
	return nil
}

// Set gives an OAuth-created account its first password. Accounts that
// already have one must go through Change, which verifies it.
func (s *Service) Set(ctx context.Context, userID, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.HasPassword() {
		return apperr.BadRequest("password already set")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("set password: %w", err)
	}

	s.logger.Info("password_set", map[string]any{"user_id": userID})
	return nil
}

func (s *Service) notifyChanged(ctx context.Context, userID string) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return
	}
	s.sendMail(ctx, user, mail.TemplatePasswordChanged, mail.Params{FirstName: user.FirstName})
}

func (s *Service) sendMail(ctx context.Context, user *auth.User, template mail.Template, params mail.Params) {
	if err := s.mailer.Send(ctx, user.Email, template, params); err != nil {
		s.logger.Error("mail_send_failed", map[string]any{
			"template": string(template),
			"user_id":  user.ID,
			"error":    err.Error(),
		})
	}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
