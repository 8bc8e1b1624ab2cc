package permission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"veloeats.org/internal/auth"
)

// ErrNotFound is returned by ownership checks for unknown entities. It is
// distinct from Forbidden: callers map it to 404, not 403.
var ErrNotFound = errors.New("permission: entity not found")

// ForbiddenError carries the missing permissions (or roles) so the failure is
// observable without leaking anything about other users.
type ForbiddenError struct {
	Missing []Permission
	Roles   []auth.AdminRole
}

func (e *ForbiddenError) Error() string {
	if len(e.Roles) > 0 {
		parts := make([]string, len(e.Roles))
		for i, r := range e.Roles {
			parts[i] = string(r)
		}
		return "permission: requires role " + strings.Join(parts, " or ")
	}
	parts := make([]string, len(e.Missing))
	for i, p := range e.Missing {
		parts[i] = string(p)
	}
	return "permission: missing " + strings.Join(parts, ", ")
}

// Can reports whether the principal holds the permission. It is false for a
// nil principal, a principal without an admin profile, or a deactivated one.
func Can(p *auth.Principal, profile *auth.AdminProfile, perm Permission) bool {
	if p == nil || profile == nil || !profile.IsActive {
		return false
	}
	if p.Role != auth.RoleAdmin {
		return false
	}
	perms, ok := rolePermissions[profile.AdminRole]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

// RequireAll returns a ForbiddenError listing every missing permission.
func RequireAll(p *auth.Principal, profile *auth.AdminProfile, perms ...Permission) error {
	var missing []Permission
	for _, perm := range perms {
		if !Can(p, profile, perm) {
			missing = append(missing, perm)
		}
	}
	if len(missing) > 0 {
		return &ForbiddenError{Missing: missing}
	}
	return nil
}

// RequireAny passes when the principal holds at least one of the permissions.
func RequireAny(p *auth.Principal, profile *auth.AdminProfile, perms ...Permission) error {
	for _, perm := range perms {
		if Can(p, profile, perm) {
			return nil
		}
	}
	return &ForbiddenError{Missing: perms}
}

// RequireRole passes when the profile is active and holds one of the roles.
func RequireRole(profile *auth.AdminProfile, roles ...auth.AdminRole) error {
	if profile != nil && profile.IsActive {
		for _, role := range roles {
			if profile.AdminRole == role {
				return nil
			}
		}
	}
	return &ForbiddenError{Roles: roles}
}

// PermissionsFor returns the sorted capability list for a role. Used to build
// the capabilities field of login and /me responses.
func PermissionsFor(role auth.AdminRole) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(perms))
	for p := range perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OwnerResolver resolves the owning principal ids of a business entity.
// Implementations return ErrNotFound for unknown entities.
type OwnerResolver interface {
	Owners(ctx context.Context, entityType, entityID string) ([]string, error)
}

// IsOwnerOf verifies the principal owns the entity. Admins always pass.
// An unknown entity surfaces as ErrNotFound, never as Forbidden.
func IsOwnerOf(ctx context.Context, resolver OwnerResolver, p *auth.Principal, entityType, entityID string) error {
	if p == nil {
		return &ForbiddenError{}
	}
	if p.Role == auth.RoleAdmin {
		return nil
	}
	owners, err := resolver.Owners(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		if owner == p.ID {
			return nil
		}
	}
	return &ForbiddenError{}
}

// UnknownEntityError wraps ErrNotFound with the entity reference for logging.
func UnknownEntityError(entityType, entityID string) error {
	return fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, entityID)
}
