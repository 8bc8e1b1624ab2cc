// Package audit is the shared event sink for every security-relevant and
// fraud-relevant action. Logging is best-effort and asynchronous: a write
// failure is reported on the fallback channel and never reaches the caller.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"veloeats.org/internal/ids"
	"veloeats.org/internal/obs"
)

// Entry is an append-only audit record. Metadata passes the sanitizer before
// it is enqueued.
type Entry struct {
	ID          string
	ActorID     string
	ActorEmail  string
	ActorRole   string
	IP          string
	Action      string
	EntityType  string
	EntityID    string
	Description string
	Metadata    map[string]any
	Success     bool
	CreatedAt   time.Time
}

// FraudEvent is an append-only fraud record with risk context.
type FraudEvent struct {
	ID          string
	ActorType   string
	ActorID     string
	DeviceID    string
	IP          string
	Action      string
	Description string
	RiskScore   float64
	RiskLevel   string
	CountryCode string
	City        string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// DeviceProfile tracks the devices an actor has been seen on.
type DeviceProfile struct {
	ActorType  string
	ActorID    string
	DeviceID   string
	LastIP     string
	LastSeenAt time.Time
}

// Sink persists audit and fraud records.
type Sink interface {
	AppendAudit(ctx context.Context, entry *Entry) error
	AppendFraud(ctx context.Context, event *FraudEvent) error
}

// DeviceStore upserts device profiles keyed by (actorType, actorId, deviceId).
type DeviceStore interface {
	Upsert(ctx context.Context, profile DeviceProfile) error
}

type job struct {
	entry *Entry
	fraud *FraudEvent
}

// Recorder fans sanitized events into the sink from a single worker goroutine.
// Emit never blocks the request path: when the buffer is full the event is
// dropped and counted.
type Recorder struct {
	sink    Sink
	devices DeviceStore
	ch      chan job
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
	now     func() time.Time
}

// RecorderOption configures Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the time source (useful for tests).
func WithRecorderClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder starts the dispatch worker. devices may be nil when device
// tracking is not wired (tests).
func NewRecorder(sink Sink, devices DeviceStore, buffer int, opts ...RecorderOption) *Recorder {
	if buffer <= 0 {
		buffer = 1
	}
	r := &Recorder{
		sink:    sink,
		devices: devices,
		ch:      make(chan job, buffer),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// LogAudit sanitizes and enqueues an audit entry. Actor identity is always
// present, "unknown" when the request never authenticated.
func (r *Recorder) LogAudit(ctx context.Context, entry Entry) {
	if r == nil || r.closed.Load() {
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.ActorID == "" {
		entry.ActorID = "unknown"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	entry.Metadata = Sanitize(entry.Metadata)
	r.enqueue(job{entry: &entry})
}

// LogFraud sanitizes and enqueues a fraud event. The worker additionally
// upserts the device profile, best effort.
func (r *Recorder) LogFraud(ctx context.Context, event FraudEvent) {
	if r == nil || r.closed.Load() {
		return
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.ActorID == "" {
		event.ActorID = "unknown"
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}
	event.Metadata = Sanitize(event.Metadata)
	r.enqueue(job{fraud: &event})
}

func (r *Recorder) enqueue(j job) {
	select {
	case r.ch <- j:
	case <-r.done:
	default:
		r.dropped.Add(1)
		obs.AuditEventsDropped.Inc()
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops the worker after draining buffered events.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case j := <-r.ch:
			r.handle(j)
		case <-r.done:
			for {
				select {
				case j := <-r.ch:
					r.handle(j)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) handle(j job) {
	ctx := context.Background()
	switch {
	case j.entry != nil:
		if err := r.sink.AppendAudit(ctx, j.entry); err != nil {
			obs.LogError("audit write failed", map[string]any{
				"action": j.entry.Action,
				"error":  err.Error(),
			})
		}
	case j.fraud != nil:
		if err := r.sink.AppendFraud(ctx, j.fraud); err != nil {
			obs.LogError("fraud write failed", map[string]any{
				"action": j.fraud.Action,
				"error":  err.Error(),
			})
		}
		r.upsertDevice(ctx, j.fraud)
	}
}

// upsertDevice absorbs unique-constraint races under concurrent logins from
// the same device with a short bounded retry; exhaustion logs and drops.
func (r *Recorder) upsertDevice(ctx context.Context, event *FraudEvent) {
	if r.devices == nil || event.DeviceID == "" {
		return
	}
	profile := DeviceProfile{
		ActorType:  event.ActorType,
		ActorID:    event.ActorID,
		DeviceID:   event.DeviceID,
		LastIP:     event.IP,
		LastSeenAt: event.CreatedAt,
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 40 * time.Millisecond

	op := func() error {
		return r.devices.Upsert(ctx, profile)
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, 3)); err != nil {
		obs.LogError("device profile upsert failed", map[string]any{
			"device_id": event.DeviceID,
			"error":     err.Error(),
		})
	}
}
