package auth

import "context"

type principalContextKey struct{}
type adminProfileContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	if principal == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ContextWithAdminProfile attaches the resolved admin profile, if any.
func ContextWithAdminProfile(ctx context.Context, profile *AdminProfile) context.Context {
	if profile == nil {
		return ctx
	}
	return context.WithValue(ctx, adminProfileContextKey{}, profile)
}

// AdminProfileFromContext extracts the admin profile from the context.
func AdminProfileFromContext(ctx context.Context) (*AdminProfile, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(adminProfileContextKey{}).(*AdminProfile)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
