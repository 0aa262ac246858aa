// Package ratelimit implements sliding-window admission control keyed
// by (identity, tier), atomic via a single Lua script so two concurrent
// admissions can never both consume the last slot.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// slidingWindowScript evicts timestamps outside the window, counts what
// remains, and either denies or admits-and-records the current request,
// all atomically. The member recording this admission is supplied by the
// caller (ARGV[4]); Redis seeds Lua's math.random deterministically per
// invocation, so a script-generated member would collide across calls
// and undercount the window.
const slidingWindowScript = `
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if limit > 0 and count >= limit then
	return {0, count}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('EXPIRE', key, window)

return {1, count + 1}
`

// Limiter implements domain.RateLimiter with a sliding window counted in
// a Redis sorted set per identity/tier.
type Limiter struct {
	client     *redis.Client
	log        *logrus.Logger
	windowSize int64
	limits     map[domain.RateTier]int
}

// New constructs a Limiter. redisURL=="" or an unreachable Redis leaves
// the limiter in fail-open mode: Admit always allows and logs a
// warning, preferring availability over throttling when degraded.
func New(redisURL string, windowSize int64, basicLimit, professionalLimit int, log *logrus.Logger) *Limiter {
	l := &Limiter{
		log:        log,
		windowSize: windowSize,
		limits: map[domain.RateTier]int{
			domain.TierBasic:        basicLimit,
			domain.TierProfessional: professionalLimit,
			domain.TierEnterprise:   0, // unlimited
		},
	}
	if redisURL == "" {
		log.Warn("rate limiter: no redis URL configured, running fail-open")
		return l
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.WithError(err).Warn("rate limiter: invalid redis URL, running fail-open")
		return l
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("rate limiter: redis unreachable, running fail-open")
		return l
	}

	l.client = client
	return l
}

// Admit checks and records admission for identity under tier.
func (l *Limiter) Admit(ctx context.Context, identity string, tier domain.RateTier) (domain.RateLimitDecision, error) {
	limit, ok := l.limits[tier]
	if !ok {
		limit = l.limits[domain.TierBasic]
	}

	if tier == domain.TierEnterprise || limit == 0 {
		return domain.RateLimitDecision{Allowed: true, Remaining: -1}, nil
	}

	if l.client == nil {
		return domain.RateLimitDecision{Allowed: true, Remaining: limit}, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", tier, identity)
	now := time.Now().Unix()
	member := fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString())

	result, err := l.client.Eval(ctx, slidingWindowScript, []string{key}, l.windowSize, limit, now, member).Result()
	if err != nil {
		l.log.WithError(err).Warn("rate limiter: redis eval failed, admitting fail-open")
		return domain.RateLimitDecision{Allowed: true, Remaining: limit}, nil
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		l.log.Warn("rate limiter: unexpected script response, admitting fail-open")
		return domain.RateLimitDecision{Allowed: true, Remaining: limit}, nil
	}

	allowed := toInt64(values[0]) == 1
	count := toInt64(values[1])
	resetAt := now + l.windowSize

	if !allowed {
		return domain.RateLimitDecision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: l.windowSize,
		}, nil
	}

	remaining := int(int64(limit) - count)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   true,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// Close releases the underlying Redis connection, if any.
func (l *Limiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

var _ domain.RateLimiter = (*Limiter)(nil)
