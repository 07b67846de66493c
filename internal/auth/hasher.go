package auth

import "golang.org/x/crypto/bcrypt"

// PasswordHasher is the hashing collaborator contract. The lifecycle never
// inspects hashes itself.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) bool
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
