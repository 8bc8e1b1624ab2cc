package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// Callers must never learn which one it was.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountBlocked marks a permanent administrative block.
	ErrAccountBlocked = errors.New("auth: account blocked")

	// ErrTwoFactorRequired signals that the account has 2FA enabled and no
	// code was supplied. This is not a credential failure.
	ErrTwoFactorRequired = errors.New("auth: two-factor code required")

	ErrInvalidTwoFactorCode = errors.New("auth: invalid two-factor code")

	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")

	ErrNotFound = errors.New("auth: not found")

	// ErrConflict indicates an optimistic version check failed.
	ErrConflict = errors.New("auth: update conflict")
)

// TemporaryLockoutError is returned while an account is time-box locked after
// repeated failures. RetryAfter is the remaining lock duration.
type TemporaryLockoutError struct {
	RetryAfter time.Duration
}

func (e *TemporaryLockoutError) Error() string {
	return fmt.Sprintf("auth: account temporarily locked, retry in %s", e.RetryAfter.Round(time.Second))
}

// ConfigurationError marks a fatal misconfiguration (missing or weak secret,
// undecryptable 2FA secret). It aborts startup or the operation; it is never
// downgraded to a per-request auth failure.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "auth: configuration error: " + e.Reason
}
