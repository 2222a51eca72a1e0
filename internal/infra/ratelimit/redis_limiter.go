package ratelimit

import (
	"context"
	"time"

	"readzone/internal/domain/service"
	"readzone/internal/errors"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "readzone:ratelimit:"

// redisLimiter keeps fixed windows as Redis counters so that every instance
// behind a load balancer shares the same budget.
type redisLimiter struct {
	client redis.UniversalClient
	prefix string
	clock  service.Clock
}

// NewRedisLimiter creates a RateLimiter backed by Redis INCR counters.
func NewRedisLimiter(client redis.UniversalClient, clock service.Clock) service.RateLimiter {
	return &redisLimiter{
		client: client,
		prefix: defaultKeyPrefix,
		clock:  clock,
	}
}

// Check increments the counter for key; the first hit of a window sets its expiry.
func (l *redisLimiter) Check(ctx context.Context, key string, window time.Duration, maxCount int) (*service.RateDecision, error) {
	if err := validateRule(window, maxCount); err != nil {
		return nil, err
	}

	redisKey := l.prefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "rate limit increment failed")
	}

	if count == 1 {
		if err := l.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return nil, errors.Wrap(err, "rate limit expire failed")
		}
	}

	ttl, err := l.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "rate limit ttl lookup failed")
	}

	// A counter without expiry would never reset; repair it.
	if ttl < 0 {
		if err := l.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return nil, errors.Wrap(err, "rate limit expire failed")
		}
		ttl = window
	}

	return &service.RateDecision{
		Allowed: count <= int64(maxCount),
		Count:   int(count),
		ResetAt: l.clock.Now().Add(ttl),
	}, nil
}
