package lockout

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type entry struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// MemoryStore is a sharded in-process KeyedStore. Shard mutexes are held only
// around map mutation, never across I/O. Stale entries are removed by the
// sweeper, bounding memory.
type MemoryStore struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return s
}

// SetClock overrides the time source (useful for tests).
func (s *MemoryStore) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int, error) {
	now := s.now()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		e = &entry{}
		sh.entries[key] = e
	}
	if e.count == 0 || now.Sub(e.windowStart) > window {
		e.count = 0
		e.windowStart = now
	}
	e.count++
	return e.count, nil
}

func (s *MemoryStore) Block(_ context.Context, key string, until time.Time) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		e = &entry{windowStart: s.now()}
		sh.entries[key] = e
	}
	if until.After(e.blockedUntil) {
		e.blockedUntil = until
	}
	return nil
}

func (s *MemoryStore) BlockedUntil(_ context.Context, key string) (time.Time, bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if s.now().Before(e.blockedUntil) {
		return e.blockedUntil, true, nil
	}
	return time.Time{}, false, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.entries, key)
	return nil
}

// StartSweeper removes entries whose block has passed and whose window started
// more than 2x window ago. It runs until ctx is cancelled; the caller owns the
// lifecycle (process shutdown cancels it).
func (s *MemoryStore) StartSweeper(ctx context.Context, interval, window time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(window)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *MemoryStore) sweep(window time.Duration) {
	now := s.now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if now.Before(e.blockedUntil) {
				continue
			}
			if now.Sub(e.windowStart) > 2*window {
				delete(sh.entries, key)
			}
		}
		sh.mu.Unlock()
	}
}

// Len reports the number of tracked keys. Tests and metrics only.
func (s *MemoryStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}
