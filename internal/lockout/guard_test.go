package lockout

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuardBlocksAfterThreshold(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	store := NewMemoryStore()
	store.SetClock(clock)
	guard := NewGuard(store, 3, 15*time.Minute, 10*time.Minute, WithClock(clock))

	ctx := context.Background()
	if err := guard.Allow(ctx, "1.2.3.4", "a@b.kz"); err != nil {
		t.Fatalf("unexpected error before any failure: %v", err)
	}

	// Попытки в пределах порога проходят, включая саму пороговую.
	for i := 0; i < 3; i++ {
		if err := guard.RegisterFailure(ctx, "1.2.3.4", "a@b.kz"); err != nil {
			t.Fatalf("failure %d should not block: %v", i+1, err)
		}
	}

	err := guard.RegisterFailure(ctx, "1.2.3.4", "a@b.kz")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError past the threshold, got %v", err)
	}
	if rl.RetryAfter != 10*time.Minute {
		t.Fatalf("unexpected retry after: %s", rl.RetryAfter)
	}

	if err := guard.Allow(ctx, "1.2.3.4", "a@b.kz"); !errors.As(err, &rl) {
		t.Fatalf("expected blocked pair, got %v", err)
	}

	// Другая пара (ip, email) не должна быть затронута.
	if err := guard.Allow(ctx, "5.6.7.8", "a@b.kz"); err != nil {
		t.Fatalf("different ip must not be blocked: %v", err)
	}
	if err := guard.Allow(ctx, "1.2.3.4", "other@b.kz"); err != nil {
		t.Fatalf("different email must not be blocked: %v", err)
	}

	now = now.Add(10*time.Minute + time.Second)
	if err := guard.Allow(ctx, "1.2.3.4", "a@b.kz"); err != nil {
		t.Fatalf("block should have expired: %v", err)
	}
}

func TestGuardSuccessResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := NewMemoryStore()
	store.SetClock(clock)
	guard := NewGuard(store, 3, 15*time.Minute, 10*time.Minute, WithClock(clock))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = guard.RegisterFailure(ctx, "1.2.3.4", "a@b.kz")
	}
	if err := guard.RegisterSuccess(ctx, "1.2.3.4", "a@b.kz"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	// Счётчик начат заново: две новых неудачи порога не достигают.
	for i := 0; i < 2; i++ {
		if err := guard.RegisterFailure(ctx, "1.2.3.4", "a@b.kz"); err != nil {
			t.Fatalf("failure after reset should not block: %v", err)
		}
	}
}

func TestGuardPairKeyNormalizesEmail(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := NewMemoryStore()
	store.SetClock(clock)
	guard := NewGuard(store, 1, 15*time.Minute, 10*time.Minute, WithClock(clock))

	ctx := context.Background()
	_ = guard.RegisterFailure(ctx, "1.2.3.4", "User@B.KZ")
	err := guard.RegisterFailure(ctx, "1.2.3.4", " user@b.kz ")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("case variants must share a counter, got %v", err)
	}
}
