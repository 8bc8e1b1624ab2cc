package lockout

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreConcurrentIncr(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := store.Incr(ctx, "k", time.Minute); err != nil {
				t.Errorf("incr: %v", err)
			}
		}()
	}
	wg.Wait()

	count, err := store.Incr(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if count != workers+1 {
		t.Fatalf("lost increments: got %d, want %d", count, workers+1)
	}
}

func TestMemoryStoreWindowReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, _ := store.Incr(ctx, "k", 15*time.Minute)
		if count != i {
			t.Fatalf("count = %d, want %d", count, i)
		}
	}

	now = now.Add(16 * time.Minute)
	count, _ := store.Incr(ctx, "k", 15*time.Minute)
	if count != 1 {
		t.Fatalf("window should reset the counter, got %d", count)
	}
}

func TestMemoryStoreSweepKeepsBlocked(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return now })
	ctx := context.Background()

	_, _ = store.Incr(ctx, "stale", time.Minute)
	_, _ = store.Incr(ctx, "blocked", time.Minute)
	if err := store.Block(ctx, "blocked", now.Add(time.Hour)); err != nil {
		t.Fatalf("block: %v", err)
	}

	now = now.Add(10 * time.Minute)
	store.sweep(time.Minute)

	if store.Len() != 1 {
		t.Fatalf("expected only the blocked entry to survive, got %d", store.Len())
	}
	if _, blocked, _ := store.BlockedUntil(ctx, "blocked"); !blocked {
		t.Fatal("blocked entry must survive the sweep")
	}
}
