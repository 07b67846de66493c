// Package twofactor implements TOTP enrollment and verification. Enrollment
// is two-step: Setup stores a pending secret, Enable activates it only after
// the user proves their authenticator produces matching codes.
package twofactor

import (
	"context"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"

	"auth-service/internal/apperr"
	"auth-service/internal/auth"
	"auth-service/internal/observability"
)

// UserStore is the user persistence slice this package needs, satisfied by
// auth.Repository.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*auth.User, error)
	SetTOTPSecret(ctx context.Context, userID, secret string) error
	EnableTOTP(ctx context.Context, userID string, enabledAt time.Time) error
}

type Service struct {
	users  UserStore
	logger *observability.Logger
	issuer string
}

func NewService(users UserStore, logger *observability.Logger, issuer string) *Service {
	return &Service{users: users, logger: logger, issuer: issuer}
}

// SetupResult carries the enrollment material for the authenticator app.
type SetupResult struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

// Setup generates and stores a pending secret. Calling it again before Enable
// replaces the pending secret; calling it after Enable is rejected so an
// attacker with a stolen session cannot silently swap the authenticator.
func (s *Service) Setup(ctx context.Context, userID string) (*SetupResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.TOTPEnabledAt != nil {
		return nil, apperr.BadRequest("two-factor authentication is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.users.SetTOTPSecret(ctx, userID, key.Secret()); err != nil {
		return nil, fmt.Errorf("store totp secret: %w", err)
	}

	return &SetupResult{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// Enable activates the pending secret once the user presents a valid code.
func (s *Service) Enable(ctx context.Context, userID, code string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.TOTPEnabledAt != nil {
		return apperr.BadRequest("two-factor authentication is already enabled")
	}
	if user.TOTPSecret == nil {
		return apperr.BadRequest("run setup before enabling two-factor authentication")
	}

	if !totp.Validate(code, *user.TOTPSecret) {
		return apperr.BadRequest("invalid verification code")
	}

	if err := s.users.EnableTOTP(ctx, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("enable totp: %w", err)
	}

	s.logger.Info("totp_enabled", map[string]any{"user_id": userID})
	return nil
}

// Verify checks a code against the active secret.
func (s *Service) Verify(ctx context.Context, userID, code string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.TOTPEnabledAt == nil || user.TOTPSecret == nil {
		return apperr.BadRequest("two-factor authentication is not enabled")
	}

	if !totp.Validate(code, *user.TOTPSecret) {
		return apperr.Unauthorized("invalid verification code")
	}
	return nil
}
