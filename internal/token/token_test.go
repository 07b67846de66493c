package token

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T, accessExpiry, refreshExpiry string) *Issuer {
	t.Helper()
	keyring, err := NewKeyringFromSecrets("test-secret")
	if err != nil {
		t.Fatalf("NewKeyringFromSecrets error: %v", err)
	}
	return NewIssuer(keyring, accessExpiry, refreshExpiry)
}

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, "15m", "7d")
	now := time.Now().UTC()

	signed, err := issuer.Issue(KindAccess, "user-123", now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := issuer.Verify(signed)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("subject mismatch: got %q", claims.Subject)
	}
	if claims.TokenType != string(KindAccess) {
		t.Fatalf("typ mismatch: got %q", claims.TokenType)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti claim to be set")
	}
}

func TestIssue_UniquePerCall(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, "15m", "7d")
	now := time.Now().UTC()

	first, err := issuer.Issue(KindRefresh, "u1", now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	second, err := issuer.Issue(KindRefresh, "u1", now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if first == second {
		t.Fatalf("two tokens minted at the same instant must differ")
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, "15m", "7d")

	signed, err := issuer.Issue(KindAccess, "u1", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	_, err = issuer.Verify(signed)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, "15m", "7d")
	other := newTestIssuer(t, "15m", "7d")

	keyring, err := NewKeyringFromSecrets("another-secret")
	if err != nil {
		t.Fatalf("NewKeyringFromSecrets error: %v", err)
	}
	other.keyring = keyring

	signed, err := issuer.Issue(KindAccess, "u1", time.Now().UTC())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	_, err = other.Verify(signed)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, "15m", "7d")

	_, err := issuer.Verify("not.a.jwt")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestVerify_AcceptsPreviousKeyAfterRotation(t *testing.T) {
	t.Parallel()

	oldKeyring, err := NewKeyringFromSecrets("old-secret")
	if err != nil {
		t.Fatalf("NewKeyringFromSecrets error: %v", err)
	}
	oldIssuer := NewIssuer(oldKeyring, "15m", "7d")

	signed, err := oldIssuer.Issue(KindAccess, "u1", time.Now().UTC())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	rotated, err := NewKeyringFromSecrets("new-secret", "old-secret")
	if err != nil {
		t.Fatalf("NewKeyringFromSecrets error: %v", err)
	}
	issuer := NewIssuer(rotated, "15m", "7d")

	claims, err := issuer.Verify(signed)
	if err != nil {
		t.Fatalf("Verify after rotation error: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("subject mismatch: got %q", claims.Subject)
	}

	// New tokens are signed with the newest key.
	fresh, err := issuer.Issue(KindAccess, "u2", time.Now().UTC())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := oldIssuer.Verify(fresh); !errors.Is(err, ErrInvalid) {
		t.Fatalf("old keyring must not verify tokens signed with the new key, got %v", err)
	}
}

func TestVerifyKind_RejectsWrongType(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, "15m", "7d")

	refresh, err := issuer.Issue(KindRefresh, "u1", time.Now().UTC())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := issuer.VerifyKind(refresh, KindAccess); !errors.Is(err, ErrInvalid) {
		t.Fatalf("refresh token must not verify as access, got %v", err)
	}
	if _, err := issuer.VerifyKind(refresh, KindRefresh); err != nil {
		t.Fatalf("VerifyKind refresh error: %v", err)
	}
}

func TestIssuer_DefaultLifetimes(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, "", "")
	if got := issuer.Lifetime(KindAccess); got != 15*time.Minute {
		t.Fatalf("access default: got %v", got)
	}
	if got := issuer.Lifetime(KindRefresh); got != 7*24*time.Hour {
		t.Fatalf("refresh default: got %v", got)
	}
}
