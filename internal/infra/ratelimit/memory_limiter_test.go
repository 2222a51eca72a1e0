package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"readzone/internal/infra/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryLimiter_DeniesAfterMaxWithinWindow(t *testing.T) {
	clk := clock.NewFixedClock(testNow)
	limiter := NewMemoryLimiter(clk)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		decision, err := limiter.Check(ctx, "ip:1.2.3.4", time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, i, decision.Count)
		assert.True(t, decision.ResetAt.Equal(testNow.Add(time.Minute)))
	}

	clk.Advance(30 * time.Second)
	decision, err := limiter.Check(ctx, "ip:1.2.3.4", time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 4, decision.Count)
	assert.True(t, decision.ResetAt.Equal(testNow.Add(time.Minute)))
	assert.Equal(t, 30*time.Second, decision.RetryAfter(clk.Now()))
}

func TestMemoryLimiter_WindowRestartsAfterReset(t *testing.T) {
	clk := clock.NewFixedClock(testNow)
	limiter := NewMemoryLimiter(clk)
	ctx := context.Background()

	_, err := limiter.Check(ctx, "email:a@x.com", time.Minute, 1)
	require.NoError(t, err)

	denied, err := limiter.Check(ctx, "email:a@x.com", time.Minute, 1)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	clk.Advance(time.Minute)
	decision, err := limiter.Check(ctx, "email:a@x.com", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Count)
	assert.True(t, decision.ResetAt.Equal(testNow.Add(2*time.Minute)))
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(clock.NewFixedClock(testNow))
	ctx := context.Background()

	first, err := limiter.Check(ctx, "a", time.Minute, 1)
	require.NoError(t, err)
	second, err := limiter.Check(ctx, "b", time.Minute, 1)
	require.NoError(t, err)

	assert.True(t, first.Allowed)
	assert.True(t, second.Allowed)
}

func TestMemoryLimiter_SweepsExpiredEntries(t *testing.T) {
	clk := clock.NewFixedClock(testNow)
	limiter := NewMemoryLimiter(clk).(*memoryLimiter)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := limiter.Check(ctx, key, time.Minute, 5)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, limiter.size())

	clk.Advance(2 * time.Minute)
	_, err := limiter.Check(ctx, "d", time.Minute, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.size())
}

func TestMemoryLimiter_ConcurrentChecksDoNotLoseUpdates(t *testing.T) {
	limiter := NewMemoryLimiter(clock.NewFixedClock(testNow))
	ctx := context.Background()

	const workers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			decision, err := limiter.Check(ctx, "shared", time.Minute, 10)
			if err != nil || !decision.Allowed {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)

	last, err := limiter.Check(ctx, "shared", time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, workers+1, last.Count)
}

func TestMemoryLimiter_RejectsInvalidRule(t *testing.T) {
	limiter := NewMemoryLimiter(clock.NewFixedClock(testNow))

	_, err := limiter.Check(context.Background(), "k", 0, 1)
	assert.Error(t, err)

	_, err = limiter.Check(context.Background(), "k", time.Minute, 0)
	assert.Error(t, err)
}
