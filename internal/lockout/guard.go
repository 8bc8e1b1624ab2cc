// Package lockout implements the pre-auth tier of login throttling: a
// per-(ip,email) sliding-window counter with a time-boxed block, backed by a
// pluggable keyed store so the same guard works single-process (memory) or
// clustered (redis).
package lockout

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// KeyedStore is the concurrency-safe counter table behind the guard.
// Implementations must make Incr atomic per key: two concurrent failures must
// observe distinct counts.
type KeyedStore interface {
	// Incr increments the counter for key, resetting it first when the window
	// has elapsed, and returns the new count.
	Incr(ctx context.Context, key string, window time.Duration) (int, error)

	// Block marks the key blocked until the given deadline. Once set, the
	// block holds regardless of the counter.
	Block(ctx context.Context, key string, until time.Time) error

	// BlockedUntil reports an active block deadline for the key, if any.
	BlockedUntil(ctx context.Context, key string) (time.Time, bool, error)

	// Reset clears both the counter and any block for the key.
	Reset(ctx context.Context, key string) error
}

// RateLimitedError is returned while a (ip,email) pair is blocked.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("lockout: rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

// Guard throttles login attempts before any credential check runs, so a
// blocked origin never receives a password-verification signal.
type Guard struct {
	store       KeyedStore
	maxAttempts int
	window      time.Duration
	blockFor    time.Duration
	now         func() time.Time
}

// Option configures Guard.
type Option func(*Guard)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(g *Guard) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGuard builds a guard over the given store.
func NewGuard(store KeyedStore, maxAttempts int, window, blockFor time.Duration, opts ...Option) *Guard {
	g := &Guard{
		store:       store,
		maxAttempts: maxAttempts,
		window:      window,
		blockFor:    blockFor,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow returns a RateLimitedError while the pair is blocked. It is evaluated
// strictly before any password comparison.
func (g *Guard) Allow(ctx context.Context, ip, email string) error {
	until, blocked, err := g.store.BlockedUntil(ctx, pairKey(ip, email))
	if err != nil {
		return err
	}
	if blocked {
		return &RateLimitedError{RetryAfter: until.Sub(g.now())}
	}
	return nil
}

// RegisterFailure counts a failed attempt. Exceeding the threshold sets the
// block and returns a RateLimitedError carrying the full block duration. The
// attempt that reaches the threshold still passes: when both tiers share one
// limit, the account lock decides that attempt and reports its remaining time.
func (g *Guard) RegisterFailure(ctx context.Context, ip, email string) error {
	key := pairKey(ip, email)
	count, err := g.store.Incr(ctx, key, g.window)
	if err != nil {
		return err
	}
	if count <= g.maxAttempts {
		return nil
	}
	until := g.now().Add(g.blockFor)
	if err := g.store.Block(ctx, key, until); err != nil {
		return err
	}
	return &RateLimitedError{RetryAfter: g.blockFor}
}

// RegisterSuccess clears the pair's state after a successful password check.
func (g *Guard) RegisterSuccess(ctx context.Context, ip, email string) error {
	return g.store.Reset(ctx, pairKey(ip, email))
}

func pairKey(ip, email string) string {
	return ip + ":" + strings.ToLower(strings.TrimSpace(email))
}
