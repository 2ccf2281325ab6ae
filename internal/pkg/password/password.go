package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor. It is fixed, not tunable per call.
const Cost = 10

// Hash returns a salted bcrypt hash of plain.
func Hash(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Verify reports whether plain matches hash. A malformed hash never matches.
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// MustHash is Hash for package-level values. It panics on error.
func MustHash(plain string) string {
	h, err := Hash(plain)
	if err != nil {
		panic(err)
	}
	return h
}
