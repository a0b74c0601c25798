package auth

import (
	"crypto/rand"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced on every password set through the portal.
const MinPasswordLength = 8

// ErrPasswordTooShort is returned by HashPassword.
var ErrPasswordTooShort = errors.New("auth: password too short")

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. An empty hash never
// matches.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Characters that survive being read aloud or copied from a screen: no 0/O,
// 1/l/I.
const tempAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// TempPasswordLength is the length of generated temporary passwords.
const TempPasswordLength = 10

// TempPassword generates a random temporary password.
func TempPassword() (string, error) {
	out := make([]byte, TempPasswordLength)
	max := big.NewInt(int64(len(tempAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = tempAlphabet[n.Int64()]
	}
	return string(out), nil
}
