package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"veloeats.org/internal/audit"
	"veloeats.org/internal/auth"
	"veloeats.org/internal/impersonation"
	"veloeats.org/internal/permission"
)

func (a *API) adminIdentity(w http.ResponseWriter, r *http.Request) (*auth.Principal, *auth.AdminProfile, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "not authenticated")
		return nil, nil, false
	}
	profile, _ := auth.AdminProfileFromContext(r.Context())
	return principal, profile, true
}

type startImpersonationRequest struct {
	TargetUserID string `json:"targetUserId" validate:"required,max=64"`
	Reason       string `json:"reason" validate:"required,min=4,max=500"`
	Mode         string `json:"mode" validate:"omitempty,oneof=VIEW_ONLY FULL"`
}

type sessionView struct {
	ID                  string     `json:"id"`
	ImpersonatorAdminID string     `json:"impersonatorAdminId"`
	TargetUserID        string     `json:"targetUserId"`
	Mode                string     `json:"mode"`
	Status              string     `json:"status"`
	IsActive            bool       `json:"isActive"`
	Reason              string     `json:"reason"`
	StartedAt           time.Time  `json:"startedAt"`
	ExpiresAt           time.Time  `json:"expiresAt"`
	EndedAt             *time.Time `json:"endedAt,omitempty"`
	EndedBy             string     `json:"endedBy,omitempty"`
}

func sessionViewOf(s *impersonation.Session) sessionView {
	return sessionView{
		ID:                  s.ID,
		ImpersonatorAdminID: s.ImpersonatorAdminID,
		TargetUserID:        s.TargetUserID,
		Mode:                string(s.Mode),
		Status:              string(s.Status),
		IsActive:            s.IsActive,
		Reason:              s.Reason,
		StartedAt:           s.StartedAt,
		ExpiresAt:           s.ExpiresAt,
		EndedAt:             s.EndedAt,
		EndedBy:             s.EndedBy,
	}
}

func (a *API) handleImpersonationStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	principal, profile, ok := a.adminIdentity(w, r)
	if !ok {
		return
	}
	var req startImpersonationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid impersonation request")
		return
	}
	session, err := a.broker.Start(r.Context(), principal, profile, req.TargetUserID, req.Reason, impersonation.Mode(req.Mode))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionViewOf(session))
}

type endImpersonationRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=64"`
}

func (a *API) handleImpersonationEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	principal, profile, ok := a.adminIdentity(w, r)
	if !ok {
		return
	}
	if err := permission.RequireAll(principal, profile, permission.PermImpersonationStart); err != nil {
		writeDomainError(w, err)
		return
	}
	var req endImpersonationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request")
		return
	}
	if err := a.broker.End(r.Context(), req.SessionID, principal.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ended"})
}

func (a *API) handleImpersonationList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, profile, ok := a.adminIdentity(w, r)
	if !ok {
		return
	}
	if err := permission.RequireAny(principal, profile, permission.PermImpersonationView, permission.PermImpersonationStart); err != nil {
		writeDomainError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := a.broker.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionViewOf(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func auditQueryFrom(r *http.Request) audit.Query {
	q := audit.Query{
		ActorID:    r.URL.Query().Get("actor_id"),
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entity_type"),
	}
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.Since = t
		}
	}
	if v := r.URL.Query().Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.Until = t
		}
	}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return q
}

func (a *API) handleAuditSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, profile, ok := a.adminIdentity(w, r)
	if !ok {
		return
	}
	if err := permission.RequireAll(principal, profile, permission.PermAuditView); err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := a.auditSearch.Search(r.Context(), auditQueryFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleAuditExport mirrors the search endpoint under the export permission,
// and leaves its own audit trail.
func (a *API) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, profile, ok := a.adminIdentity(w, r)
	if !ok {
		return
	}
	if err := permission.RequireAll(principal, profile, permission.PermAuditView, permission.PermAuditExport); err != nil {
		writeDomainError(w, err)
		return
	}
	q := auditQueryFrom(r)
	if q.Limit <= 0 {
		q.Limit = 1000
	}
	entries, err := a.auditSearch.Search(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	a.recorder.LogAudit(r.Context(), audit.Entry{
		ActorID:     principal.ID,
		ActorEmail:  principal.Email,
		ActorRole:   string(principal.Role),
		IP:          clientIP(r),
		Action:      audit.ActionAuditExported,
		EntityType:  "audit_log",
		Description: "audit log exported",
		Metadata:    map[string]any{"rows": len(entries), "query_action": q.Action},
		Success:     true,
	})
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.json"`)
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
