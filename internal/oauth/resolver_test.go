package oauth

import (
	"context"
	"strings"
	"testing"
	"time"

	"auth-service/internal/apperr"
	"auth-service/internal/auth"
	"auth-service/internal/observability"
)

type fakeAccounts struct {
	byIdentity map[string]*Account

	// raceOnCreate makes the first create fail with ErrDuplicate while
	// materializing the winner's rows, mimicking a concurrent callback.
	raceOnCreate bool
	createCalls  int
	users        *fakeUsers
}

func identityKey(provider, providerID string) string { return provider + "/" + providerID }

func (f *fakeAccounts) FindAccount(_ context.Context, provider, providerID string) (*Account, error) {
	account, ok := f.byIdentity[identityKey(provider, providerID)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (f *fakeAccounts) CreateAccount(_ context.Context, account *Account) error {
	f.createCalls++
	key := identityKey(account.Provider, account.ProviderID)
	if _, exists := f.byIdentity[key]; exists {
		return auth.ErrDuplicate
	}
	clone := *account
	f.byIdentity[key] = &clone
	return nil
}

func (f *fakeAccounts) CreateUserWithAccount(_ context.Context, user *auth.User, account *Account) error {
	f.createCalls++
	key := identityKey(account.Provider, account.ProviderID)

	if f.raceOnCreate {
		f.raceOnCreate = false
		winner := &auth.User{ID: "winner-user", Email: user.Email}
		f.users.byID[winner.ID] = winner
		f.byIdentity[key] = &Account{ID: "winner-account", UserID: winner.ID, Provider: account.Provider, ProviderID: account.ProviderID}
		return auth.ErrDuplicate
	}

	if _, exists := f.byIdentity[key]; exists {
		return auth.ErrDuplicate
	}
	userClone := *user
	f.users.byID[user.ID] = &userClone
	accountClone := *account
	f.byIdentity[key] = &accountClone
	return nil
}

type fakeUsers struct {
	byID map[string]*auth.User
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*auth.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, user := range f.byID {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func newTestResolver() (*Resolver, *fakeAccounts, *fakeUsers) {
	users := &fakeUsers{byID: make(map[string]*auth.User)}
	accounts := &fakeAccounts{byIdentity: make(map[string]*Account), users: users}
	return NewResolver(accounts, users, observability.NewLogger()), accounts, users
}

func TestResolve_ExistingAccount(t *testing.T) {
	t.Parallel()

	resolver, accounts, users := newTestResolver()
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com"}
	accounts.byIdentity[identityKey("google", "g-123")] = &Account{ID: "acc1", UserID: "u1", Provider: "google", ProviderID: "g-123"}

	user, err := resolver.Resolve(context.Background(), Profile{Provider: "google", ProviderID: "g-123", Email: "other@x.com"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("want linked user u1, got %q", user.ID)
	}
	if accounts.createCalls != 0 {
		t.Fatalf("resolution of a linked identity must not write, got %d creates", accounts.createCalls)
	}
}

func TestResolve_MergesByEmail(t *testing.T) {
	t.Parallel()

	resolver, accounts, users := newTestResolver()
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com"}

	user, err := resolver.Resolve(context.Background(), Profile{Provider: "github", ProviderID: "42", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("want existing user u1, got %q", user.ID)
	}

	linked, ok := accounts.byIdentity[identityKey("github", "42")]
	if !ok || linked.UserID != "u1" {
		t.Fatalf("identity must be linked to the existing user, got %+v", linked)
	}
}

func TestResolve_MergeIsCaseInsensitiveOnEmail(t *testing.T) {
	t.Parallel()

	resolver, _, users := newTestResolver()
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com"}

	user, err := resolver.Resolve(context.Background(), Profile{Provider: "github", ProviderID: "42", Email: "A@X.com"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("mixed-case provider email must merge into u1, got %q", user.ID)
	}
}

func TestResolve_CreatesUserWithVerifiedEmail(t *testing.T) {
	t.Parallel()

	resolver, accounts, users := newTestResolver()

	user, err := resolver.Resolve(context.Background(), Profile{
		Provider: "google", ProviderID: "g-123", Email: "new@x.com", FirstName: "N", LastName: "U",
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if user.Email != "new@x.com" {
		t.Fatalf("unexpected email %q", user.Email)
	}
	if user.EmailVerifiedAt == nil {
		t.Fatalf("provider-vouched email must arrive verified")
	}
	if user.HasPassword() {
		t.Fatalf("oauth-created user must not carry a password hash")
	}
	if _, ok := users.byID[user.ID]; !ok {
		t.Fatalf("user row missing")
	}
	if _, ok := accounts.byIdentity[identityKey("google", "g-123")]; !ok {
		t.Fatalf("account row missing")
	}
}

func TestResolve_SyntheticEmailWhenWithheld(t *testing.T) {
	t.Parallel()

	resolver, _, _ := newTestResolver()

	user, err := resolver.Resolve(context.Background(), Profile{Provider: "github", ProviderID: "42"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if user.Email != "42@github.oauth" {
		t.Fatalf("want synthetic placeholder email, got %q", user.Email)
	}
	if user.EmailVerifiedAt != nil {
		t.Fatalf("placeholder email must not be marked verified")
	}

	// The placeholder is stable, so a second callback resolves the same user.
	again, err := resolver.Resolve(context.Background(), Profile{Provider: "github", ProviderID: "42"})
	if err != nil {
		t.Fatalf("second Resolve error: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("repeat resolution forked the identity: %q vs %q", again.ID, user.ID)
	}
}

func TestResolve_RetriesOnceAfterCreateRace(t *testing.T) {
	t.Parallel()

	resolver, accounts, _ := newTestResolver()
	accounts.raceOnCreate = true

	user, err := resolver.Resolve(context.Background(), Profile{Provider: "google", ProviderID: "g-9", Email: "race@x.com"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if user.ID != "winner-user" {
		t.Fatalf("loser must adopt the winner's user, got %q", user.ID)
	}
}

func TestResolve_DisabledUserRejected(t *testing.T) {
	t.Parallel()

	resolver, accounts, users := newTestResolver()
	disabled := time.Now().UTC()
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com", DisabledAt: &disabled}
	accounts.byIdentity[identityKey("google", "g-123")] = &Account{ID: "acc1", UserID: "u1", Provider: "google", ProviderID: "g-123"}

	_, err := resolver.Resolve(context.Background(), Profile{Provider: "google", ProviderID: "g-123"})
	if apperr.CodeOf(err) != apperr.CodeUnauthorized {
		t.Fatalf("want unauthorized for disabled user, got %v", err)
	}
}

func TestProfile_ResolvedEmail(t *testing.T) {
	t.Parallel()

	if got := (Profile{Provider: "github", ProviderID: "42", Email: "a@x.com"}).ResolvedEmail(); got != "a@x.com" {
		t.Fatalf("real email must win, got %q", got)
	}
	got := (Profile{Provider: "github", ProviderID: "42"}).ResolvedEmail()
	if got != "42@github.oauth" {
		t.Fatalf("unexpected placeholder %q", got)
	}
	if !strings.HasSuffix(got, ".oauth") {
		t.Fatalf("placeholder must sit under the reserved .oauth suffix")
	}
}
