package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu      sync.Mutex
	entries []*Entry
	frauds  []*FraudEvent
	block   chan struct{}
}

func (s *captureSink) AppendAudit(_ context.Context, e *Entry) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *captureSink) AppendFraud(_ context.Context, e *FraudEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frauds = append(s.frauds, e)
	return nil
}

type captureDevices struct {
	mu       sync.Mutex
	profiles []DeviceProfile
	failures int
}

func (d *captureDevices) Upsert(_ context.Context, p DeviceProfile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return errors.New("transient conflict")
	}
	d.profiles = append(d.profiles, p)
	return nil
}

func TestRecorderFillsDefaultsAndSanitizes(t *testing.T) {
	sink := &captureSink{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecorder(sink, nil, 16, WithRecorderClock(func() time.Time { return now }))

	rec.LogAudit(context.Background(), Entry{
		Action:   ActionLoginFailed,
		Metadata: map[string]any{"password": "x", "device_id": "d1"},
	})
	rec.Close()

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if e.ID == "" {
		t.Fatal("id must be assigned")
	}
	if e.ActorID != "unknown" {
		t.Fatalf("anonymous entries must carry actor 'unknown', got %q", e.ActorID)
	}
	if !e.CreatedAt.Equal(now) {
		t.Fatalf("unexpected created_at: %s", e.CreatedAt)
	}
	if _, ok := e.Metadata["password"]; ok {
		t.Fatal("metadata must be sanitized before enqueue")
	}
	if e.Metadata["device_id"] != "d1" {
		t.Fatalf("benign metadata lost: %v", e.Metadata)
	}
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	sink := &captureSink{block: make(chan struct{})}
	rec := NewRecorder(sink, nil, 2)

	// Первый элемент занимает воркера, остальные заполняют буфер.
	for i := 0; i < 10; i++ {
		rec.LogAudit(context.Background(), Entry{Action: ActionLoginFailed})
	}
	if rec.Dropped() == 0 {
		t.Fatal("expected drops once the buffer filled")
	}

	close(sink.block)
	rec.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if got := uint64(len(sink.entries)) + rec.Dropped(); got != 10 {
		t.Fatalf("entries+drops = %d, want 10", got)
	}
}

func TestRecorderDrainsOnClose(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, nil, 64)

	for i := 0; i < 20; i++ {
		rec.LogAudit(context.Background(), Entry{Action: ActionLogout})
	}
	rec.Close()

	if len(sink.entries) != 20 {
		t.Fatalf("close must drain the buffer: got %d of 20", len(sink.entries))
	}

	// После Close новые события молча игнорируются.
	rec.LogAudit(context.Background(), Entry{Action: ActionLogout})
	if len(sink.entries) != 20 {
		t.Fatal("events after close must not be delivered")
	}
}

func TestRecorderUpsertsDeviceWithRetry(t *testing.T) {
	sink := &captureSink{}
	// Три повтора после первой попытки: три сбоя подряд ещё не фатальны.
	devices := &captureDevices{failures: 3}
	rec := NewRecorder(sink, devices, 16)

	rec.LogFraud(context.Background(), FraudEvent{
		Action:    ActionLoginSuccess,
		ActorType: "principal",
		ActorID:   "u1",
		DeviceID:  "dev-1",
		IP:        "10.0.0.1",
	})
	rec.Close()

	if len(sink.frauds) != 1 {
		t.Fatalf("expected 1 fraud event, got %d", len(sink.frauds))
	}
	devices.mu.Lock()
	defer devices.mu.Unlock()
	if len(devices.profiles) != 1 {
		t.Fatalf("device upsert must succeed after transient failures, got %d", len(devices.profiles))
	}
	if devices.profiles[0].DeviceID != "dev-1" {
		t.Fatalf("unexpected profile: %+v", devices.profiles[0])
	}
}

func TestRecorderSkipsDeviceWithoutID(t *testing.T) {
	sink := &captureSink{}
	devices := &captureDevices{}
	rec := NewRecorder(sink, devices, 16)

	rec.LogFraud(context.Background(), FraudEvent{Action: ActionLoginFailed, ActorID: "u1"})
	rec.Close()

	if len(devices.profiles) != 0 {
		t.Fatal("no device id means no upsert")
	}
}
