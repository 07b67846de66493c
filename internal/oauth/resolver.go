// Package oauth links external provider identities to local users: the
// resolver implements find-or-create with by-email merging, and the handler
// exposes the callback, link, list, and unlink surface.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auth-service/internal/apperr"
	"auth-service/internal/auth"
	"auth-service/internal/observability"
)

// AccountStore is the oauth_accounts persistence the resolver writes through,
// satisfied by Repository.
type AccountStore interface {
	FindAccount(ctx context.Context, provider, providerID string) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
	CreateUserWithAccount(ctx context.Context, user *auth.User, account *Account) error
}

// UserDirectory is the user lookup side, satisfied by auth.Repository.
type UserDirectory interface {
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
	GetUserByID(ctx context.Context, id string) (*auth.User, error)
}

// Resolver maps a provider profile onto exactly one local user.
type Resolver struct {
	accounts AccountStore
	users    UserDirectory
	logger   *observability.Logger
}

func NewResolver(accounts AccountStore, users UserDirectory, logger *observability.Logger) *Resolver {
	return &Resolver{accounts: accounts, users: users, logger: logger}
}

// Resolve finds or creates the local user for profile. Resolution order:
// an account already linked to this provider identity wins, then an existing
// user with the profile's email gets the identity linked, then a new user is
// created together with the link. A unique violation on either write means a
// concurrent callback for the same identity got there first, so resolution
// restarts once and finds the winner's rows.
func (r *Resolver) Resolve(ctx context.Context, profile Profile) (*auth.User, error) {
	user, err := r.resolve(ctx, profile)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicate) {
			user, err = r.resolve(ctx, profile)
		}
		if err != nil {
			if errors.Is(err, auth.ErrDuplicate) {
				return nil, fmt.Errorf("oauth resolution raced twice for %s:%s", profile.Provider, profile.ProviderID)
			}
			return nil, err
		}
	}

	if user.Disabled() {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	return user, nil
}

func (r *Resolver) resolve(ctx context.Context, profile Profile) (*auth.User, error) {
	account, err := r.accounts.FindAccount(ctx, profile.Provider, profile.ProviderID)
	if err == nil {
		user, err := r.users.GetUserByID(ctx, account.UserID)
		if err != nil {
			return nil, fmt.Errorf("lookup linked user: %w", err)
		}
		return user, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return nil, fmt.Errorf("lookup oauth account: %w", err)
	}

	email := auth.NormalizeEmail(profile.ResolvedEmail())

	user, err := r.users.GetUserByEmail(ctx, email)
	if err == nil {
		// Same mailbox, new provider: link instead of forking the identity.
		accountID, err := auth.NewID()
		if err != nil {
			return nil, err
		}
		if err := r.accounts.CreateAccount(ctx, &Account{
			ID:         accountID,
			UserID:     user.ID,
			Provider:   profile.Provider,
			ProviderID: profile.ProviderID,
		}); err != nil {
			return nil, err
		}
		r.logger.Info("oauth_account_linked", map[string]any{
			"provider": profile.Provider,
			"user_id":  user.ID,
		})
		return user, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	userID, err := auth.NewID()
	if err != nil {
		return nil, err
	}
	accountID, err := auth.NewID()
	if err != nil {
		return nil, err
	}

	newUser := &auth.User{
		ID:        userID,
		Email:     email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
	}
	if profile.Email != "" {
		// The provider vouched for the address.
		now := time.Now().UTC()
		newUser.EmailVerifiedAt = &now
	}

	if err := r.accounts.CreateUserWithAccount(ctx, newUser, &Account{
		ID:         accountID,
		UserID:     userID,
		Provider:   profile.Provider,
		ProviderID: profile.ProviderID,
	}); err != nil {
		return nil, err
	}

	r.logger.Info("oauth_user_created", map[string]any{
		"provider": profile.Provider,
		"user_id":  userID,
	})
	return newUser, nil
}
