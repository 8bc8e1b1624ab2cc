package auth

import "time"

// Role is the coarse platform role of a principal.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleDriver     Role = "driver"
	RoleRestaurant Role = "restaurant"
	RoleAdmin      Role = "admin"
)

// AdminRole refines Role=admin into the fixed back-office role set.
type AdminRole string

const (
	AdminRoleSuper      AdminRole = "SUPER_ADMIN"
	AdminRoleCompliance AdminRole = "COMPLIANCE_ADMIN"
	AdminRoleSupport    AdminRole = "SUPPORT_ADMIN"
	AdminRoleFinance    AdminRole = "FINANCE_ADMIN"
	AdminRoleReadonly   AdminRole = "READONLY_ADMIN"
)

// Principal is a user identity of any role. The lockout fields are the only
// durable state this subsystem mutates under contention; updates go through
// an optimistic version check keyed on LockVersion.
type Principal struct {
	ID           string
	Email        string
	Role         Role
	CountryCode  string
	PasswordHash string

	IsBlocked           bool
	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	TemporaryLockUntil  *time.Time

	// RefreshJTI is the identifier of the currently valid refresh token.
	// Rotation supersedes it; a refresh presenting a stale jti fails.
	RefreshJTI string

	LockVersion int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AdminProfile extends a Principal with Role=admin. TwoFactorSecret is stored
// encrypted at rest and never appears in logs or API responses.
type AdminProfile struct {
	PrincipalID      string
	AdminRole        AdminRole
	IsActive         bool
	TwoFactorEnabled bool
	TwoFactorSecret  []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LockedUntil reports the active temporary lock deadline, if any.
func (p *Principal) LockedUntil(now time.Time) (time.Time, bool) {
	if p == nil || p.TemporaryLockUntil == nil {
		return time.Time{}, false
	}
	if now.Before(*p.TemporaryLockUntil) {
		return *p.TemporaryLockUntil, true
	}
	return time.Time{}, false
}
