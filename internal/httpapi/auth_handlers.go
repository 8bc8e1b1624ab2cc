package httpapi

import (
	"net/http"
	"time"

	"veloeats.org/internal/auth"
	"veloeats.org/internal/permission"
)

type loginRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	Password      string `json:"password" validate:"required,max=512"`
	TwoFactorCode string `json:"twoFactorCode" validate:"omitempty,numeric,len=6"`
	DeviceID      string `json:"deviceId" validate:"omitempty,max=128"`
}

type principalView struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	Role         string   `json:"role"`
	CountryCode  string   `json:"countryCode,omitempty"`
	AdminRole    string   `json:"adminRole,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type tokenResponse struct {
	AccessToken string        `json:"accessToken"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	User        principalView `json:"user"`
}

func viewOf(p *auth.Principal, profile *auth.AdminProfile) principalView {
	v := principalView{
		ID:          p.ID,
		Email:       p.Email,
		Role:        string(p.Role),
		CountryCode: p.CountryCode,
	}
	if profile != nil {
		v.AdminRole = string(profile.AdminRole)
		for _, perm := range permission.PermissionsFor(profile.AdminRole) {
			v.Capabilities = append(v.Capabilities, string(perm))
		}
	}
	return v
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid login payload")
		return
	}

	result, err := a.authSvc.Login(r.Context(), auth.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		IP:            clientIP(r),
		DeviceID:      req.DeviceID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	http.SetCookie(w, a.tokens.RefreshCookie(result.RefreshToken, result.RefreshExpiresAt))
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.AccessExpiresAt,
		User:        viewOf(result.Principal, result.AdminProfile),
	})
}

// handleRefresh rotates the refresh cookie. Any validation failure clears the
// cookie so a stale or replayed token is not retried by the client.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		http.SetCookie(w, a.tokens.ClearRefreshCookie())
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "missing refresh token")
		return
	}
	result, err := a.authSvc.Refresh(r.Context(), cookie.Value)
	if err != nil {
		http.SetCookie(w, a.tokens.ClearRefreshCookie())
		writeDomainError(w, err)
		return
	}
	http.SetCookie(w, a.tokens.RefreshCookie(result.RefreshToken, result.RefreshExpiresAt))
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.AccessExpiresAt,
		User:        viewOf(result.Principal, result.AdminProfile),
	})
}

// handleLogout always succeeds. The bearer token is validated best-effort so
// the audit entry names the actor when possible.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var principal *auth.Principal
	if raw := bearerToken(r); raw != "" {
		if claims, err := a.tokens.ValidateAccessToken(raw); err == nil {
			if p, err := a.store.FindByID(r.Context(), claims.Subject); err == nil {
				principal = p
			}
		}
	}
	a.authSvc.Logout(r.Context(), principal, clientIP(r))
	http.SetCookie(w, a.tokens.ClearRefreshCookie())
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "not authenticated")
		return
	}
	profile, _ := auth.AdminProfileFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(principal, profile)})
}

// handleAccessCheck answers whether the caller may access a business entity,
// for gateways that defer the ownership decision here.
func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "not authenticated")
		return
	}
	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")
	if entityType == "" || entityID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "entity_type and entity_id are required")
		return
	}
	if err := permission.IsOwnerOf(r.Context(), a.resolver, principal, entityType, entityID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": true})
}
