package token

import (
	"errors"
	"sort"
	"time"
)

// Key is one signing secret with the instant it became valid.
type Key struct {
	Secret    []byte
	ValidFrom time.Time
}

// Keyring holds the ordered signing keys for the process. Tokens are always
// signed with the newest active key and verified against every key, which
// lets a deployment rotate secrets without invalidating tokens signed by the
// previous one.
type Keyring struct {
	keys []Key
}

var errNoKeys = errors.New("keyring has no keys")

// NewKeyring builds a keyring from one or more keys. At least one key with a
// non-empty secret is required.
func NewKeyring(keys ...Key) (*Keyring, error) {
	valid := make([]Key, 0, len(keys))
	for _, key := range keys {
		if len(key.Secret) > 0 {
			valid = append(valid, key)
		}
	}
	if len(valid) == 0 {
		return nil, errNoKeys
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].ValidFrom.Before(valid[j].ValidFrom)
	})

	return &Keyring{keys: valid}, nil
}

// NewKeyringFromSecrets builds a keyring from a current secret plus optional
// previous secrets, all treated as immediately valid. The current secret is
// the signing key.
func NewKeyringFromSecrets(current string, previous ...string) (*Keyring, error) {
	now := time.Now().UTC()
	keys := make([]Key, 0, len(previous)+1)
	for _, secret := range previous {
		if secret != "" {
			keys = append(keys, Key{Secret: []byte(secret), ValidFrom: now.Add(-time.Hour)})
		}
	}
	keys = append(keys, Key{Secret: []byte(current), ValidFrom: now})
	return NewKeyring(keys...)
}

// signingKey returns the newest key already valid at now.
func (k *Keyring) signingKey(now time.Time) []byte {
	for i := len(k.keys) - 1; i >= 0; i-- {
		if !k.keys[i].ValidFrom.After(now) {
			return k.keys[i].Secret
		}
	}
	return k.keys[0].Secret
}

// verificationKeys returns every secret, newest first.
func (k *Keyring) verificationKeys() [][]byte {
	secrets := make([][]byte, 0, len(k.keys))
	for i := len(k.keys) - 1; i >= 0; i-- {
		secrets = append(secrets, k.keys[i].Secret)
	}
	return secrets
}
