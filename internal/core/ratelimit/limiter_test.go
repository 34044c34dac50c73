package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevedore/stevedore/internal/core"
)

type memoryJournal struct {
	mu    sync.Mutex
	state map[string]*core.RateLimitState
}

func (m *memoryJournal) UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]*core.RateLimitState)
	}
	m.state[key] = state
	return nil
}

func (m *memoryJournal) DeleteRateLimit(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, key)
	return nil
}

func TestFixedWindowCounts(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLimiter(Config{Strategy: StrategyFixedWindow, MaxRequests: 3, Window: time.Minute})
	limiter.Clock = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		decision := limiter.Check("tenant-a")
		require.True(t, decision.Allowed)
		require.Equal(t, 3-i, decision.Remaining)
		limiter.Record(ctx, "tenant-a")
	}

	decision := limiter.Check("tenant-a")
	require.False(t, decision.Allowed)
	require.Equal(t, 0, decision.Remaining)

	// A fresh key is fully available.
	require.True(t, limiter.Check("tenant-b").Allowed)

	// Window expiry drops the entry and admits again.
	now = now.Add(2 * time.Minute)
	decision = limiter.Check("tenant-a")
	require.True(t, decision.Allowed)
	require.Equal(t, 3, decision.Remaining)
}

func TestSlidingWindowEvictsOldTimestamps(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLimiter(Config{Strategy: StrategySlidingWindow, MaxRequests: 2, Window: time.Minute})
	limiter.Clock = func() time.Time { return now }

	ctx := context.Background()
	limiter.Record(ctx, "k")
	now = now.Add(30 * time.Second)
	limiter.Record(ctx, "k")

	require.False(t, limiter.Check("k").Allowed)

	// 40s later the first timestamp has left the window, the second has not.
	now = now.Add(40 * time.Second)
	decision := limiter.Check("k")
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.Remaining)
}

func TestTokenBucketRefill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLimiter(Config{Strategy: StrategyTokenBucket, MaxRequests: 5, Window: time.Minute})
	limiter.Clock = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.True(t, limiter.Check("k").Allowed)
		limiter.Record(ctx, "k")
	}
	require.False(t, limiter.Check("k").Allowed)

	// Advancing by exactly one window refills exactly MaxRequests, capped.
	now = now.Add(time.Minute)
	decision := limiter.Check("k")
	require.True(t, decision.Allowed)
	require.Equal(t, 5, decision.Remaining)

	// Many idle windows never exceed the cap.
	now = now.Add(10 * time.Minute)
	require.Equal(t, 5, limiter.Check("k").Remaining)
}

func TestLeakyBucketBurst(t *testing.T) {
	limiter := NewLimiter(Config{Strategy: StrategyLeakyBucket, MaxRequests: 10, BurstSize: 2, Window: time.Minute})
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.Clock = func() time.Time { return clock }

	ctx := context.Background()
	limiter.Record(ctx, "k")
	decision := limiter.Check("k")
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.Remaining)

	limiter.Record(ctx, "k")
	require.False(t, limiter.Check("k").Allowed)
}

func TestBackoffGrowsAndResets(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLimiter(Config{
		Strategy:          StrategyFixedWindow,
		MaxRequests:       1,
		Window:            time.Minute,
		RetryAfter:        time.Second,
		EnableBackoff:     true,
		BackoffMultiplier: 2,
		MaxBackoffDelay:   10 * time.Second,
	})
	limiter.Clock = func() time.Time { return now }

	limiter.Record(context.Background(), "k")

	var last time.Duration
	for i := 0; i < 6; i++ {
		decision := limiter.Check("k")
		require.False(t, decision.Allowed)
		require.GreaterOrEqual(t, decision.BackoffDelay, last)
		require.LessOrEqual(t, decision.BackoffDelay, 10*time.Second)
		last = decision.BackoffDelay
	}
	require.Equal(t, 10*time.Second, last)

	// One allowed check resets the backoff sequence.
	now = now.Add(2 * time.Minute)
	require.True(t, limiter.Check("k").Allowed)
	limiter.Record(context.Background(), "k")
	decision := limiter.Check("k")
	require.False(t, decision.Allowed)
	require.Equal(t, 2*time.Second, decision.BackoffDelay)
}

func TestUpdateConfigClearsState(t *testing.T) {
	journal := &memoryJournal{}
	limiter := NewLimiter(Config{Strategy: StrategyFixedWindow, MaxRequests: 1, Window: time.Minute})
	limiter.Journal = journal

	ctx := context.Background()
	limiter.Record(ctx, "k")
	require.False(t, limiter.Check("k").Allowed)
	require.Contains(t, journal.state, "k")

	maxRequests := 2
	limiter.UpdateConfig(ctx, Patch{MaxRequests: &maxRequests})

	require.True(t, limiter.Check("k").Allowed)
	require.Equal(t, 2, limiter.Config().MaxRequests)
	require.NotContains(t, journal.state, "k")
}

func TestResetSingleKey(t *testing.T) {
	limiter := NewLimiter(Config{Strategy: StrategyFixedWindow, MaxRequests: 1, Window: time.Minute})

	ctx := context.Background()
	limiter.Record(ctx, "a")
	limiter.Record(ctx, "b")

	limiter.Reset(ctx, "a")
	require.True(t, limiter.Check("a").Allowed)
	require.False(t, limiter.Check("b").Allowed)
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	limiter := NewLimiter(Config{Strategy: StrategyFixedWindow, MaxRequests: 1, Window: time.Hour, RetryAfter: 50 * time.Millisecond})
	limiter.Record(context.Background(), "k")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitAdmitsAfterWindow(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLimiter(Config{Strategy: StrategyFixedWindow, MaxRequests: 1, Window: time.Minute, RetryAfter: 5 * time.Millisecond})
	limiter.Clock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	limiter.Record(context.Background(), "k")
	require.False(t, limiter.Check("k").Allowed)

	go func() {
		time.Sleep(15 * time.Millisecond)
		mu.Lock()
		now = now.Add(2 * time.Minute)
		mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, limiter.Wait(ctx, "k"))
}

func TestOnDecisionObservesCheckOutcomes(t *testing.T) {
	limiter := NewLimiter(Config{Strategy: StrategyFixedWindow, MaxRequests: 1, Window: time.Minute})

	type decision struct {
		key     string
		allowed bool
	}
	var seen []decision
	limiter.OnDecision = func(key string, allowed bool) {
		seen = append(seen, decision{key: key, allowed: allowed})
	}

	require.True(t, limiter.Check("k").Allowed)
	limiter.Record(context.Background(), "k")
	require.False(t, limiter.Check("k").Allowed)

	require.Equal(t, []decision{{key: "k", allowed: true}, {key: "k", allowed: false}}, seen)
}
