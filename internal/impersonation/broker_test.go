package impersonation

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"veloeats.org/internal/audit"
	"veloeats.org/internal/auth"
	"veloeats.org/internal/permission"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*Session)}
}

func (s *memSessionStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memSessionStore) Find(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memSessionStore) Update(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memSessionStore) ListRecent(_ context.Context, limit int) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Session
	for _, sess := range s.sessions {
		cp := *sess
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type staticTargets struct {
	users map[string]*auth.Principal
}

func (s *staticTargets) FindByID(_ context.Context, id string) (*auth.Principal, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return u, nil
}

type nullSink struct{}

func (nullSink) AppendAudit(context.Context, *audit.Entry) error { return nil }
func (nullSink) AppendFraud(context.Context, *audit.FraudEvent) error {
	return nil
}

type brokerFixture struct {
	broker *Broker
	store  *memSessionStore
	now    *time.Time
}

func newBrokerFixture(t *testing.T) *brokerFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fix := &brokerFixture{now: &now}

	rec := audit.NewRecorder(nullSink{}, nil, 16)
	t.Cleanup(rec.Close)

	fix.store = newMemSessionStore()
	targets := &staticTargets{users: map[string]*auth.Principal{
		"cust-1": {ID: "cust-1", Email: "c@b.kz", Role: auth.RoleCustomer},
	}}
	fix.broker = NewBroker(fix.store, targets, rec, 30*time.Minute,
		WithClock(func() time.Time { return *fix.now }))
	return fix
}

func supportAdmin() (*auth.Principal, *auth.AdminProfile) {
	return &auth.Principal{ID: "adm-1", Email: "ops@b.kz", Role: auth.RoleAdmin},
		&auth.AdminProfile{PrincipalID: "adm-1", AdminRole: auth.AdminRoleSupport, IsActive: true}
}

func TestStartDefaultsToViewOnly(t *testing.T) {
	fix := newBrokerFixture(t)
	p, profile := supportAdmin()

	sess, err := fix.broker.Start(context.Background(), p, profile, "cust-1", "ticket #42", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Mode != ModeViewOnly {
		t.Fatalf("mode must default to VIEW_ONLY, got %s", sess.Mode)
	}
	if sess.Status != StatusActive || !sess.IsActive {
		t.Fatalf("fresh session must be active: %+v", sess)
	}
	if !sess.ExpiresAt.Equal(fix.now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry: %s", sess.ExpiresAt)
	}
}

func TestStartRequiresPermission(t *testing.T) {
	fix := newBrokerFixture(t)
	p := &auth.Principal{ID: "adm-2", Role: auth.RoleAdmin}
	profile := &auth.AdminProfile{PrincipalID: "adm-2", AdminRole: auth.AdminRoleFinance, IsActive: true}

	_, err := fix.broker.Start(context.Background(), p, profile, "cust-1", "reason", ModeFull)
	var forbidden *permission.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("finance admin must be forbidden, got %v", err)
	}
}

func TestStartUnknownTarget(t *testing.T) {
	fix := newBrokerFixture(t)
	p, profile := supportAdmin()

	if _, err := fix.broker.Start(context.Background(), p, profile, "ghost", "reason", ""); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnforceViewOnlyMethodMatrix(t *testing.T) {
	fix := newBrokerFixture(t)
	p, profile := supportAdmin()
	sess, err := fix.broker.Start(context.Background(), p, profile, "cust-1", "reason", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		if _, err := fix.broker.Enforce(context.Background(), sess.ID, method); err != nil {
			t.Fatalf("%s must pass in view-only: %v", method, err)
		}
	}
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, "delete"} {
		_, err := fix.broker.Enforce(context.Background(), sess.ID, method)
		var rejected *RejectedError
		if !errors.As(err, &rejected) || rejected.Reason != ReasonWriteNotAllowed {
			t.Fatalf("%s must be rejected in view-only, got %v", method, err)
		}
	}
}

func TestEnforceFullModeAllowsWrites(t *testing.T) {
	fix := newBrokerFixture(t)
	p, profile := supportAdmin()
	sess, _ := fix.broker.Start(context.Background(), p, profile, "cust-1", "reason", ModeFull)

	if _, err := fix.broker.Enforce(context.Background(), sess.ID, http.MethodPost); err != nil {
		t.Fatalf("FULL session must allow writes: %v", err)
	}
}

func TestEnforceLazyExpiry(t *testing.T) {
	fix := newBrokerFixture(t)
	p, profile := supportAdmin()
	sess, _ := fix.broker.Start(context.Background(), p, profile, "cust-1", "reason", "")

	*fix.now = fix.now.Add(31 * time.Minute)

	_, err := fix.broker.Enforce(context.Background(), sess.ID, http.MethodGet)
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Reason != ReasonExpired {
		t.Fatalf("expected expired rejection, got %v", err)
	}

	// Истечение фиксируется в хранилище при первом же обращении.
	stored, _ := fix.store.Find(context.Background(), sess.ID)
	if stored.Status != StatusEndedExpired || stored.IsActive || stored.EndedAt == nil {
		t.Fatalf("session must transition to ENDED_EXPIRED: %+v", stored)
	}

	// Повторное обращение видит уже завершённую сессию.
	if _, err := fix.broker.Enforce(context.Background(), sess.ID, http.MethodGet); !errors.As(err, &rejected) || rejected.Reason != ReasonEnded {
		t.Fatalf("expected ended rejection on second call, got %v", err)
	}
}

func TestEndExplicit(t *testing.T) {
	fix := newBrokerFixture(t)
	p, profile := supportAdmin()
	sess, _ := fix.broker.Start(context.Background(), p, profile, "cust-1", "reason", "")

	if err := fix.broker.End(context.Background(), sess.ID, p.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	stored, _ := fix.store.Find(context.Background(), sess.ID)
	if stored.Status != StatusEndedExplicit || stored.IsActive || stored.EndedBy != "adm-1" {
		t.Fatalf("unexpected ended session: %+v", stored)
	}

	// Завершённая сессия больше не проходит enforcement.
	_, err := fix.broker.Enforce(context.Background(), sess.ID, http.MethodGet)
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Reason != ReasonEnded {
		t.Fatalf("expected ended rejection, got %v", err)
	}

	// Повторное завершение — тоже отказ.
	if err := fix.broker.End(context.Background(), sess.ID, p.ID); !errors.As(err, &rejected) {
		t.Fatalf("double end must fail, got %v", err)
	}
}

func TestEnforceUnknownSession(t *testing.T) {
	fix := newBrokerFixture(t)
	_, err := fix.broker.Enforce(context.Background(), "no-such-id", http.MethodGet)
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Reason != ReasonInvalidSession {
		t.Fatalf("expected invalid-session rejection, got %v", err)
	}
}
