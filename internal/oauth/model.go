package oauth

import (
	"fmt"
	"time"
)

// Account links one external provider identity to a local user. The pair
// (Provider, ProviderID) is unique across the system.
type Account struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	Provider   string    `json:"provider"`
	ProviderID string    `json:"providerId"`
	CreatedAt  time.Time `json:"linkedAt"`
}

// Profile is the normalized identity a provider returns after a successful
// code exchange.
type Profile struct {
	Provider   string
	ProviderID string
	Email      string
	FirstName  string
	LastName   string
}

// ResolvedEmail returns the profile email, or a synthetic placeholder when
// the provider withheld it. The placeholder keeps the users.email unique
// constraint satisfied and can never collide with a real address.
func (p Profile) ResolvedEmail() string {
	if p.Email != "" {
		return p.Email
	}
	return fmt.Sprintf("%s@%s.oauth", p.ProviderID, p.Provider)
}
