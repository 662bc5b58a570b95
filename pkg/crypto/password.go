package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Account passwords are stored as bcrypt hashes on the owner's account row.
// bcrypt silently ignores input past 72 bytes, so longer passwords are
// refused instead of being truncated into a weaker secret.
const (
	AccountPasswordCost     = 12
	MaxAccountPasswordBytes = 72
)

var ErrAccountPasswordTooLong = errors.New("account password exceeds 72 bytes")

var bcryptGenerateFromPassword = bcrypt.GenerateFromPassword

// HashPassword hashes an owner account password for storage.
func HashPassword(password string) (string, error) {
	if len(password) > MaxAccountPasswordBytes {
		return "", ErrAccountPasswordTooLong
	}
	hash, err := bcryptGenerateFromPassword([]byte(password), AccountPasswordCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash account password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches a stored account hash.
// Malformed hashes never match.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
