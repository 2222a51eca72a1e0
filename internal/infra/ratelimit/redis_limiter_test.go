package ratelimit

import (
	"context"
	"testing"
	"time"

	"readzone/internal/infra/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLimiter(t *testing.T) (*miniredis.Miniredis, *redisLimiter) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisLimiter(client, clock.NewFixedClock(testNow)).(*redisLimiter)
}

func TestRedisLimiter_DeniesAfterMax(t *testing.T) {
	mr, limiter := newTestRedisLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		decision, err := limiter.Check(ctx, "ip:10.0.0.1", time.Minute, 5)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, i, decision.Count)
	}

	decision, err := limiter.Check(ctx, "ip:10.0.0.1", time.Minute, 5)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 6, decision.Count)
	assert.True(t, decision.ResetAt.After(testNow))
	assert.False(t, decision.ResetAt.After(testNow.Add(time.Minute)))

	ttl := mr.TTL(defaultKeyPrefix + "ip:10.0.0.1")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisLimiter_WindowResetsAfterExpiry(t *testing.T) {
	mr, limiter := newTestRedisLimiter(t)
	ctx := context.Background()

	_, err := limiter.Check(ctx, "email:a@x.com", time.Minute, 1)
	require.NoError(t, err)

	denied, err := limiter.Check(ctx, "email:a@x.com", time.Minute, 1)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	mr.FastForward(time.Minute + time.Second)

	decision, err := limiter.Check(ctx, "email:a@x.com", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Count)
}

func TestRedisLimiter_RepairsCounterWithoutExpiry(t *testing.T) {
	mr, limiter := newTestRedisLimiter(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(defaultKeyPrefix+"stuck", "3"))

	decision, err := limiter.Check(ctx, "stuck", time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, decision.Count)
	assert.True(t, decision.ResetAt.Equal(testNow.Add(time.Minute)))
	assert.Greater(t, mr.TTL(defaultKeyPrefix+"stuck"), time.Duration(0))
}

func TestRedisLimiter_ReturnsErrorWhenRedisUnavailable(t *testing.T) {
	mr, limiter := newTestRedisLimiter(t)
	mr.Close()

	_, err := limiter.Check(context.Background(), "k", time.Minute, 1)
	assert.Error(t, err)
}
