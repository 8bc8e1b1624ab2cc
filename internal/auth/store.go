package auth

import "context"

// CredentialStore abstracts principal and admin-profile persistence. It is the
// only durable state this subsystem mutates; lockout updates are guarded by an
// optimistic version check so concurrent failed logins never lose writes.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)

	// AdminProfile returns the admin extension for a principal, or ErrNotFound.
	AdminProfile(ctx context.Context, principalID string) (*AdminProfile, error)

	// UpdateLockoutFields persists FailedLoginAttempts, LastFailedLoginAt and
	// TemporaryLockUntil. It matches on p.LockVersion and returns ErrConflict
	// when another request updated the row first; on success it bumps
	// p.LockVersion in place.
	UpdateLockoutFields(ctx context.Context, p *Principal) error

	// SetRefreshJTI unconditionally records the currently valid refresh token id.
	SetRefreshJTI(ctx context.Context, principalID, jti string) error

	// RotateRefreshJTI replaces oldJTI with newJTI only if oldJTI is still the
	// current one. Returns ErrConflict for a superseded (replayed) token.
	RotateRefreshJTI(ctx context.Context, principalID, oldJTI, newJTI string) error
}
