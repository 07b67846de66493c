// Package token issues and verifies the signed access and refresh tokens of
// the session lifecycle, and resolves configured expiry strings into absolute
// instants.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes the two token lifetimes.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	defaultAccessExpiry  = "15m"
	defaultRefreshExpiry = "7d"
)

var (
	// ErrInvalid is returned when a token is structurally broken or its
	// signature does not verify against any key.
	ErrInvalid = errors.New("invalid token")

	// ErrExpired is returned when the signature is genuine but the expiry
	// claim has passed. Kept distinct from ErrInvalid: a garbled token and a
	// time-barred one drive different log classifications.
	ErrExpired = errors.New("token expired")
)

// Claims carried by every issued token.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// Issuer mints signed tokens and verifies presented ones against the keyring.
type Issuer struct {
	keyring       *Keyring
	accessExpiry  string
	refreshExpiry string
}

// NewIssuer builds an Issuer. Empty expiry strings fall back to the hard-coded
// defaults ("15m" access, "7d" refresh); malformed ones are handled by
// ParseExpiry's 7-day fail-safe.
func NewIssuer(keyring *Keyring, accessExpiry, refreshExpiry string) *Issuer {
	if accessExpiry == "" {
		accessExpiry = defaultAccessExpiry
	}
	if refreshExpiry == "" {
		refreshExpiry = defaultRefreshExpiry
	}
	return &Issuer{keyring: keyring, accessExpiry: accessExpiry, refreshExpiry: refreshExpiry}
}

// Lifetime returns the configured duration for the given kind.
func (i *Issuer) Lifetime(kind Kind) time.Duration {
	return ParseExpiry(i.expiryString(kind))
}

// ExpiryAt resolves the configured lifetime for kind into an absolute instant.
func (i *Issuer) ExpiryAt(kind Kind, now time.Time) time.Time {
	return CalculateExpiry(i.expiryString(kind), now)
}

func (i *Issuer) expiryString(kind Kind) string {
	if kind == KindRefresh {
		return i.refreshExpiry
	}
	return i.accessExpiry
}

// Issue produces a signed token of the given kind for userID. The jti claim
// makes every token unique even when two are minted within the same second.
func (i *Issuer) Issue(kind Kind, userID string, now time.Time) (string, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(i.ExpiryAt(kind, now)),
		},
		TokenType: string(kind),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.keyring.signingKey(now))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}

	return signed, nil
}

// Verify checks signature and expiry, returning the claims on success. It
// tries every keyring secret so tokens signed before a rotation stay valid.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	expired := false
	for _, secret := range i.keyring.verificationKeys() {
		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err == nil && parsed.Valid {
			return claims, nil
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			expired = true
		}
	}

	if expired {
		return nil, ErrExpired
	}
	return nil, ErrInvalid
}

// VerifyKind verifies the token and additionally requires its typ claim to
// match kind, so a refresh token cannot pass where an access token is
// expected.
func (i *Issuer) VerifyKind(tokenString string, kind Kind) (*Claims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != string(kind) {
		return nil, ErrInvalid
	}
	return claims, nil
}
