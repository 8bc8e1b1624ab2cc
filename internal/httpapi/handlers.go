package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"veloeats.org/internal/auth"
	"veloeats.org/internal/impersonation"
	"veloeats.org/internal/lockout"
	"veloeats.org/internal/obs"
	"veloeats.org/internal/permission"
)

// ReadyProbe checks dependencies before the service reports ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "veloeats-auth",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code               string   `json:"code"`
	Message            string   `json:"message"`
	RetryAfter         int      `json:"retryAfter,omitempty"`
	RequiresTwoFactor  bool     `json:"requiresTwoFactor,omitempty"`
	MissingPermissions []string `json:"missingPermissions,omitempty"`
	Reason             string   `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeDomainError maps the error taxonomy onto uniform responses. Credential
// and lockout failures all collapse to the same external shapes: no internal
// detail (user exists, wrong password) ever leaks.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		lockoutErr *auth.TemporaryLockoutError
		rateErr    *lockout.RateLimitedError
		forbidden  *permission.ForbiddenError
		rejected   *impersonation.RejectedError
		configErr  *auth.ConfigurationError
	)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidTwoFactorCode):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	case errors.Is(err, auth.ErrTwoFactorRequired):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Code:              "TWO_FACTOR_REQUIRED",
			Message:           "two-factor code required",
			RequiresTwoFactor: true,
		})
	case errors.Is(err, auth.ErrAccountBlocked):
		writeError(w, http.StatusForbidden, "ACCOUNT_BLOCKED", "account is blocked")
	case errors.As(err, &lockoutErr):
		retry := retryAfterSeconds(lockoutErr.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Code:       "TEMPORARY_LOCKOUT",
			Message:    "account temporarily locked",
			RetryAfter: retry,
		})
	case errors.As(err, &rateErr):
		retry := retryAfterSeconds(rateErr.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Code:       "RATE_LIMITED",
			Message:    "too many attempts",
			RetryAfter: retry,
		})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
	case errors.As(err, &forbidden):
		resp := errorResponse{Code: "FORBIDDEN", Message: "insufficient permissions"}
		for _, p := range forbidden.Missing {
			resp.MissingPermissions = append(resp.MissingPermissions, string(p))
		}
		writeJSON(w, http.StatusForbidden, resp)
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Code:    "IMPERSONATION_REJECTED",
			Message: "impersonation session rejected",
			Reason:  rejected.Reason,
		})
	case errors.Is(err, permission.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
	case errors.As(err, &configErr):
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
