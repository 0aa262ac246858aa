// Package cache implements a Redis-backed, TTL'd key-value store with
// per-concern key namespaces and a degraded no-op mode when Redis is
// unreachable.
package cache

import (
	"context"
	"time"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisCache implements domain.CacheLayer over a single Redis client. A
// nil or disconnected client degrades every operation to its neutral
// "miss"/"no-op" value rather than propagating an error to callers.
type RedisCache struct {
	client    *redis.Client
	log       *logrus.Logger
	connected bool
}

// New connects to redisURL. A connection failure is not fatal: the
// returned RedisCache runs in degraded mode (IsConnected()==false) and
// every operation becomes a neutral no-op, so callers degrade
// gracefully instead of checking for a nil cache.
func New(redisURL string, log *logrus.Logger) *RedisCache {
	c := &RedisCache{log: log}
	if redisURL == "" {
		log.Warn("cache layer: no URL configured, running in degraded no-op mode")
		return c
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.WithError(err).Warn("cache layer: invalid redis URL, running in degraded no-op mode")
		return c
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("cache layer: redis unreachable, running in degraded no-op mode")
		return c
	}

	c.client = client
	c.connected = true
	return c
}

// IsConnected reports whether the backing Redis connection is live.
func (c *RedisCache) IsConnected() bool {
	return c.connected
}

// Get returns the value at key, or (nil, false, nil) on a miss or
// degraded cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !c.connected {
		return nil, false, nil
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set writes value at key with a ttl in seconds. ttl<=0 means no expiry.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	if !c.connected {
		return nil
	}
	var expiry time.Duration
	if ttl > 0 {
		expiry = time.Duration(ttl) * time.Second
	}
	return c.client.Set(ctx, key, value, expiry).Err()
}

// Delete removes key. A miss is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if !c.connected {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// Exists reports whether key is present.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	if !c.connected {
		return false, nil
	}
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys returns a best-effort snapshot of keys matching pattern. Callers
// must not rely on this for correctness-critical iteration.
func (c *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	if !c.connected {
		return nil, nil
	}
	return c.client.Keys(ctx, pattern).Result()
}

// Clear deletes every key matching pattern.
func (c *RedisCache) Clear(ctx context.Context, pattern string) error {
	if !c.connected {
		return nil
	}
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks connectivity. A degraded cache always succeeds as a no-op.
func (c *RedisCache) Ping(ctx context.Context) error {
	if !c.connected {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Incr atomically increments key by amount, returning the new value. A
// degraded cache returns 0.
func (c *RedisCache) Incr(ctx context.Context, key string, amount int64) (int64, error) {
	if !c.connected {
		return 0, nil
	}
	return c.client.IncrBy(ctx, key, amount).Result()
}

// Close releases the underlying Redis connection, if any.
func (c *RedisCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

var _ domain.CacheLayer = (*RedisCache)(nil)

// Namespacing helpers. Prefixes are chosen so patterns do not collide
// across the search, token-revocation, and rate-limit concerns.
func DrugKey(drugID string) string             { return "drug:" + drugID }
func DrugPredictionsKey(drugID string) string  { return "drug:" + drugID + ":predictions" }
func CancerKey(cancerID string) string         { return "cancer:" + cancerID }
func SearchKey(fingerprint string) string      { return "search:" + fingerprint }
func PaperSummaryKey(pmid string) string       { return "paper:" + pmid + ":summary" }
func MarketAnalysisKey(drugID, cancerID string) string {
	return "analysis:market:" + drugID + ":" + cancerID
}
func RefreshTokenKey(jti string) string { return "refresh:" + jti }
func RateLimitKey(tier, identity string) string { return "ratelimit:" + tier + ":" + identity }
