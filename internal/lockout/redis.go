package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errRedisUnavailable = errors.New("lockout: redis unavailable")

// RedisStore is a KeyedStore for clustered deployments. INCR gives the atomic
// increment-and-check; the window is enforced by an expiry set on first
// increment, and blocks live as separate keys whose TTL doubles as the
// deadline, so no sweeper is needed.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func counterKey(key string) string { return "lo:c:" + key }
func blockKey(key string) string   { return "lo:b:" + key }

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, error) {
	count, err := s.client.Incr(ctx, counterKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, counterKey(key), window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", errRedisUnavailable, err)
		}
	}
	return int(count), nil
}

func (s *RedisStore) Block(ctx context.Context, key string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, blockKey(key), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) BlockedUntil(ctx context.Context, key string) (time.Time, bool, error) {
	ttl, err := s.client.PTTL(ctx, blockKey(key)).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	if ttl <= 0 {
		return time.Time{}, false, nil
	}
	return s.now().Add(ttl), true, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, counterKey(key), blockKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return nil
}
