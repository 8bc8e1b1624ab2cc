package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// dummyPasswordHash is compared against when the email is unknown, so that
// path costs one bcrypt verification just like a wrong password. The result
// is discarded; the caller returns ErrInvalidCredentials regardless.
var dummyPasswordHash = func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("login-cost-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}()

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
