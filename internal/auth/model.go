package auth

import "time"

// User is the root identity record. PasswordHash is nil for accounts created
// through an OAuth provider that never set a password.
type User struct {
	ID              string
	Email           string
	PasswordHash    *string
	FirstName       string
	LastName        string
	EmailVerifiedAt *time.Time
	DisabledAt      *time.Time
	TOTPSecret      *string
	TOTPEnabledAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u *User) HasPassword() bool { return u.PasswordHash != nil && *u.PasswordHash != "" }

func (u *User) Disabled() bool { return u.DisabledAt != nil }

// Sanitized strips credential material for API responses.
func (u *User) Sanitized() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
}

// PublicUser is the outward user shape. It never carries the password hash.
type PublicUser struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// RefreshToken is one refresh grant. Revocation is a tombstone: RevokedAt is
// set exactly once and the row survives until retention cleanup.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	UserAgent  string
	IPAddress  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

// Usable reports whether the grant can still mint new tokens.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// BlacklistedAccessToken records an access token invalidated before its
// natural expiry. ExpiresAt is copied from the token's own claim so the row
// can be garbage-collected once the token would fail verification anyway.
type BlacklistedAccessToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ClientInfo is the advisory issuance context recorded with each refresh
// grant.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// TokenPair bundles a short-lived access token with its long-lived refresh
// token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is returned by register, login, and the OAuth callback path.
type AuthResult struct {
	User PublicUser `json:"user"`
	TokenPair
}
