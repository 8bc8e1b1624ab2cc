package impersonation

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"veloeats.org/internal/audit"
	"veloeats.org/internal/auth"
	"veloeats.org/internal/obs"
	"veloeats.org/internal/permission"
)

// Store persists impersonation sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	ListRecent(ctx context.Context, limit int) ([]*Session, error)
}

// TargetLookup is the slice of the credential store the broker needs.
type TargetLookup interface {
	FindByID(ctx context.Context, id string) (*auth.Principal, error)
}

// Broker creates, enforces and terminates impersonation sessions. Enforcement
// runs before any business handler; a VIEW_ONLY session never lets a mutating
// request through.
type Broker struct {
	store    Store
	targets  TargetLookup
	recorder *audit.Recorder
	ttl      time.Duration
	now      func() time.Time
}

// Option configures Broker.
type Option func(*Broker)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(b *Broker) {
		if fn != nil {
			b.now = fn
		}
	}
}

// NewBroker constructs the broker. ttl bounds every session it creates.
func NewBroker(store Store, targets TargetLookup, recorder *audit.Recorder, ttl time.Duration, opts ...Option) *Broker {
	b := &Broker{
		store:    store,
		targets:  targets,
		recorder: recorder,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start opens a session. The impersonator must hold the impersonation.start
// permission and the target must exist. Mode defaults to VIEW_ONLY unless
// explicitly escalated.
func (b *Broker) Start(ctx context.Context, impersonator *auth.Principal, profile *auth.AdminProfile, targetUserID, reason string, mode Mode) (*Session, error) {
	if err := permission.RequireAll(impersonator, profile, permission.PermImpersonationStart); err != nil {
		return nil, err
	}
	target, err := b.targets.FindByID(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if mode != ModeFull {
		mode = ModeViewOnly
	}
	now := b.now().UTC()
	session := &Session{
		ID:                  uuid.NewString(),
		ImpersonatorAdminID: impersonator.ID,
		TargetUserID:        target.ID,
		Mode:                mode,
		Status:              StatusActive,
		IsActive:            true,
		Reason:              strings.TrimSpace(reason),
		StartedAt:           now,
		ExpiresAt:           now.Add(b.ttl),
	}
	if err := b.store.Create(ctx, session); err != nil {
		return nil, err
	}
	b.recorder.LogAudit(ctx, audit.Entry{
		ActorID:     impersonator.ID,
		ActorEmail:  impersonator.Email,
		ActorRole:   string(impersonator.Role),
		Action:      audit.ActionImpersonateStart,
		EntityType:  "impersonation_session",
		EntityID:    session.ID,
		Description: "admin started impersonation of user " + target.ID,
		Metadata: map[string]any{
			"target_user_id": target.ID,
			"is_view_only":   mode == ModeViewOnly,
			"reason":         session.Reason,
			"expires_at":     session.ExpiresAt,
		},
		Success: true,
	})
	return session, nil
}

// Enforce validates a request bearing the session id. Expiry is applied
// lazily: an overdue session transitions to ENDED_EXPIRED here and is
// rejected. On success the session is returned for context attachment.
func (b *Broker) Enforce(ctx context.Context, sessionID, httpMethod string) (*Session, error) {
	session, err := b.store.Find(ctx, sessionID)
	if err != nil {
		return nil, b.reject(ctx, sessionID, ReasonInvalidSession)
	}
	if !session.IsActive {
		return nil, b.reject(ctx, sessionID, ReasonEnded)
	}
	now := b.now()
	if now.After(session.ExpiresAt) {
		session.Status = StatusEndedExpired
		session.IsActive = false
		ended := now.UTC()
		session.EndedAt = &ended
		if err := b.store.Update(ctx, session); err != nil {
			obs.LogError("impersonation expiry update failed", map[string]any{
				"session_id": session.ID,
				"error":      err.Error(),
			})
		}
		return nil, b.reject(ctx, sessionID, ReasonExpired)
	}
	if session.Mode == ModeViewOnly && isMutating(httpMethod) {
		return nil, b.reject(ctx, sessionID, ReasonWriteNotAllowed)
	}
	return session, nil
}

// End transitions a session to ENDED_EXPLICIT.
func (b *Broker) End(ctx context.Context, sessionID, endedBy string) error {
	session, err := b.store.Find(ctx, sessionID)
	if err != nil {
		return &RejectedError{Reason: ReasonInvalidSession}
	}
	if !session.IsActive {
		return &RejectedError{Reason: ReasonEnded}
	}
	now := b.now().UTC()
	session.Status = StatusEndedExplicit
	session.IsActive = false
	session.EndedAt = &now
	session.EndedBy = endedBy
	if err := b.store.Update(ctx, session); err != nil {
		return err
	}
	b.recorder.LogAudit(ctx, audit.Entry{
		ActorID:     endedBy,
		Action:      audit.ActionImpersonateEnd,
		EntityType:  "impersonation_session",
		EntityID:    session.ID,
		Description: "impersonation session ended explicitly",
		Metadata: map[string]any{
			"target_user_id": session.TargetUserID,
			"ended_at":       now,
		},
		Success: true,
	})
	return nil
}

// ListRecent returns recent sessions for the admin panel.
func (b *Broker) ListRecent(ctx context.Context, limit int) ([]*Session, error) {
	return b.store.ListRecent(ctx, limit)
}

func (b *Broker) reject(ctx context.Context, sessionID, reason string) error {
	obs.ImpersonationRejections.WithLabelValues(reason).Inc()
	b.recorder.LogAudit(ctx, audit.Entry{
		Action:      audit.ActionImpersonateReject,
		EntityType:  "impersonation_session",
		EntityID:    sessionID,
		Description: "impersonated request rejected: " + reason,
		Success:     false,
	})
	return &RejectedError{Reason: reason}
}

func isMutating(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
