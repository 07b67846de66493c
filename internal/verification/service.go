// Package verification implements email address confirmation with mailed
// single-use tokens.
package verification

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

const tokenTTL = 24 * time.Hour

// UserStore is the user persistence slice this package needs, satisfied by
// auth.Repository.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
	GetUserByID(ctx context.Context, id string) (*auth.User, error)
	SetEmailVerified(ctx context.Context, userID string, verifiedAt time.Time) error
}

// TokenStore is the verification token persistence, satisfied by Repository.
type TokenStore interface {
	ReplaceToken(ctx context.Context, record *Token) error
	FindToken(ctx context.Context, token string) (*Token, error)
	DeleteToken(ctx context.Context, id string) error
}

type Service struct {
	users  UserStore
	tokens TokenStore
	mailer mail.Sender
	logger *observability.Logger

	appURL            string
	exposeDebugTokens bool
}

func NewService(users UserStore, tokens TokenStore, mailer mail.Sender, logger *observability.Logger, appURL string, exposeDebugTokens bool) *Service {
	return &Service{
		users:             users,
		tokens:            tokens,
		mailer:            mailer,
		logger:            logger,
		appURL:            appURL,
		exposeDebugTokens: exposeDebugTokens,
	}
}

// RequestResult mirrors password.ForgotResult: DebugToken is populated only
// with EXPOSE_DEBUG_TOKENS on.
type RequestResult struct {
	DebugToken string
}

// Request mails a fresh verification link to the authenticated user.
func (s *Service) Request(ctx context.Context, userID string) (*RequestResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.EmailVerifiedAt != nil {
		return nil, apperr.BadRequest("email is already verified")
	}

	return s.issue(ctx, user)
}

// Resend is the unauthenticated variant keyed by email. Like the forgot-
// password flow it answers identically for unknown and already-verified
// addresses.
func (s *Service) Resend(ctx context.Context, email string) (*RequestResult, error) {
	user, err := s.users.GetUserByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return &RequestResult{}, nil
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	if user.EmailVerifiedAt != nil {
		return &RequestResult{}, nil
	}

	return s.issue(ctx, user)
}

func (s *Service) issue(ctx context.Context, user *auth.User) (*RequestResult, error) {
	raw, err := newToken()
	if err != nil {
		return nil, err
	}
	id, err := auth.NewID()
	if err != nil {
		return nil, err
	}

	record := &Token{
		ID:        id,
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: time.Now().UTC().Add(tokenTTL),
	}
	if err := s.tokens.ReplaceToken(ctx, record); err != nil {
		return nil, fmt.Errorf("store verification token: %w", err)
	}

	if err := s.mailer.Send(ctx, user.Email, mail.TemplateVerifyEmail, mail.Params{
		ActionURL: fmt.Sprintf("%s/verify-email?token=%s", s.appURL, raw),
		FirstName: user.FirstName,
	}); err != nil {
		s.logger.Error("mail_send_failed", map[string]any{
			"template": string(mail.TemplateVerifyEmail),
			"user_id":  user.ID,
			"error":    err.Error(),
		})
	}

	result := &RequestResult{}
	if s.exposeDebugTokens {
		result.DebugToken = raw
	}
	return result, nil
}

// Confirm consumes a verification token and stamps the user's email.
func (s *Service) Confirm(ctx context.Context, token string) error {
	record, err := s.tokens.FindToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return apperr.BadRequest("invalid or expired verification token")
		}
		return fmt.Errorf("lookup verification token: %w", err)
	}
	if !time.Now().UTC().Before(record.ExpiresAt) {
		return apperr.BadRequest("invalid or expired verification token")
	}

	if err := s.users.SetEmailVerified(ctx, record.UserID, time.Now().UTC()); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return apperr.BadRequest("invalid or expired verification token")
		}
		return fmt.Errorf("mark email verified: %w", err)
	}
	if err := s.tokens.DeleteToken(ctx, record.ID); err != nil {
		return fmt.Errorf("consume verification token: %w", err)
	}

	s.logger.Info("email_verified", map[string]any{"user_id": record.UserID})
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
