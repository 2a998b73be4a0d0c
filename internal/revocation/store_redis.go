package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// revokedTokenKeyPrefix namespaces revocation keys in a shared Redis.
const revokedTokenKeyPrefix = "revoked:fp:"

// RedisCache keeps revocations as Redis keys with an absolute expiry, so
// every gateway instance sees the same set and Redis evicts expired entries
// itself.
type RedisCache struct {
	client redis.UniversalClient
	clock  Clock
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithRedisClock sets the clock used to reject already-expired revocations.
func WithRedisClock(clock Clock) RedisOption {
	return func(c *RedisCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewRedisCache(client redis.UniversalClient, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client: client,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Revoke uses SET NX PXAT: the first revocation wins and its expiry is
// never extended.
func (c *RedisCache) Revoke(ctx context.Context, fingerprint string, expiresAt time.Time) error {
	expiresAt = normalizeExpiry(expiresAt)
	if !expiresAt.After(c.clock()) {
		return nil
	}
	// SetArgs.ExpireAt is sent as EXAT (seconds); PXAT keeps milliseconds.
	err := c.client.Do(ctx, "SET", revokedTokenKeyPrefix+fingerprint, "1", "NX", "PXAT", expiresAt.UnixMilli()).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	revocationsTotal.WithLabelValues(backendRedis).Inc()
	return nil
}

func (c *RedisCache) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {
	start := time.Now()
	defer observeCheck(backendRedis, start)

	n, err := c.client.Exists(ctx, revokedTokenKeyPrefix+fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return n > 0, nil
}

// Sweep is a no-op; Redis expires keys natively.
func (c *RedisCache) Sweep(context.Context) (int, error) {
	return 0, nil
}
