package httpapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"veloeats.org/internal/audit"
	"veloeats.org/internal/auth"
	"veloeats.org/internal/impersonation"
	"veloeats.org/internal/obs"
	"veloeats.org/internal/permission"
)

// AuditSearcher is the read side of the audit trail.
type AuditSearcher interface {
	Search(ctx context.Context, q audit.Query) ([]*audit.Entry, error)
}

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	AuthService   *auth.Service
	Tokens        *auth.TokenService
	Store         auth.CredentialStore
	Broker        *impersonation.Broker
	Recorder      *audit.Recorder
	AuditSearch   AuditSearcher
	OwnerResolver permission.OwnerResolver
	Probe         ReadyProbe
	Limiter       *RateLimiter
	MaxBodyBytes  int64
	Version       string
}

// API is the HTTP surface of the auth service.
type API struct {
	mux         *http.ServeMux
	authSvc     *auth.Service
	tokens      *auth.TokenService
	store       auth.CredentialStore
	broker      *impersonation.Broker
	recorder    *audit.Recorder
	auditSearch AuditSearcher
	resolver    permission.OwnerResolver
	probe       ReadyProbe
	limiter     *RateLimiter
	maxBody     int64
	version     string
	validate    *validator.Validate
}

// New builds the API and registers all routes.
func New(deps Deps) *API {
	a := &API{
		mux:         http.NewServeMux(),
		authSvc:     deps.AuthService,
		tokens:      deps.Tokens,
		store:       deps.Store,
		broker:      deps.Broker,
		recorder:    deps.Recorder,
		auditSearch: deps.AuditSearch,
		resolver:    deps.OwnerResolver,
		probe:       deps.Probe,
		limiter:     deps.Limiter,
		maxBody:     deps.MaxBodyBytes,
		version:     deps.Version,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/access", a.handleAccessCheck)

	a.mux.HandleFunc("/v1/admin/impersonation/start", a.handleImpersonationStart)
	a.mux.HandleFunc("/v1/admin/impersonation/end", a.handleImpersonationEnd)
	a.mux.HandleFunc("/v1/admin/impersonation", a.handleImpersonationList)

	a.mux.HandleFunc("/v1/admin/audit", a.handleAuditSearch)
	a.mux.HandleFunc("/v1/admin/audit/export", a.handleAuditExport)

	return a
}

// Handler returns the full middleware chain. Impersonation enforcement runs
// after authentication and before every handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withImpersonation(h)
	h = a.withAuth(h)
	h = MaxBodyBytes(a.maxBody)(h)
	if a.limiter != nil {
		h = a.limiter.Middleware(h)
	}
	h = SecurityHeaders(h)
	h = Logging(h)
	h = obs.Instrument(h)
	return h
}
