// Package password hashes and verifies user credentials. The user store
// depends on the Hasher interface only, so the scheme can be swapped.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt silently ignores everything past 72 bytes; longer input is rejected.
const maxPasswordLength = 72

// ErrEmptyPassword is returned when hashing an empty credential.
var ErrEmptyPassword = errors.New("password cannot be empty")

// ErrPasswordTooLong is returned when the credential exceeds what bcrypt can hash.
var ErrPasswordTooLong = errors.New("password exceeds maximum length")

// Hasher turns credentials into stored hashes and checks them back.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) bool
}

// BcryptHasher is a Hasher backed by bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt hasher. A cost of zero selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt encoding of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > maxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("in internal/password/password.go/Hash(): error while `bcrypt.GenerateFromPassword()` calling: %w", err)
	}

	return string(hash), nil
}

// Verify reports whether password matches the encoded hash. A malformed hash
// is reported as a mismatch.
func (h *BcryptHasher) Verify(encodedHash, password string) bool {
	if len(password) > maxPasswordLength {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
}
