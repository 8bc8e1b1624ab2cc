package httpapi

import (
	"context"
	"net/http"
	"strings"

	"veloeats.org/internal/auth"
	"veloeats.org/internal/impersonation"
)

// publicPaths never require a bearer token. Logout is public so that a client
// holding only an expired access token can still clear its refresh cookie.
var publicPaths = map[string]bool{
	"/healthz":         true,
	"/readyz":          true,
	"/metrics":         true,
	"/v1/auth/login":   true,
	"/v1/auth/refresh": true,
	"/v1/auth/logout":  true,
}

// withAuth validates the bearer token, loads the live principal and, for
// admins, the admin profile, and attaches both to the request context. The
// principal is re-read on every request so a block applied after token issue
// takes effect immediately.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "missing bearer token")
			return
		}
		claims, err := a.tokens.ValidateAccessToken(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		principal, err := a.store.FindByID(r.Context(), claims.Subject)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			return
		}
		if principal.IsBlocked {
			writeDomainError(w, auth.ErrAccountBlocked)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		if principal.Role == auth.RoleAdmin {
			profile, err := a.store.AdminProfile(ctx, principal.ID)
			if err == nil {
				ctx = auth.ContextWithAdminProfile(ctx, profile)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ImpersonationHeader carries the active session id on impersonated requests.
const ImpersonationHeader = "X-Impersonation-Session"

type sessionContextKey struct{}

// SessionFromContext returns the enforced impersonation session, if any.
func SessionFromContext(ctx context.Context) (*impersonation.Session, bool) {
	v, ok := ctx.Value(sessionContextKey{}).(*impersonation.Session)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// withImpersonation enforces the impersonation header before any handler
// runs. Requests without the header pass through untouched.
func (a *API) withImpersonation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(ImpersonationHeader)
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}
		session, err := a.broker.Enforce(r.Context(), sessionID, r.Method)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
