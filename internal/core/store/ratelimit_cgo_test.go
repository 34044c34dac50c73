//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevedore/stevedore/internal/core"
)

func TestRateLimitRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	missing, err := store.GetRateLimit(ctx, "backend:primary")
	require.NoError(t, err)
	require.Nil(t, missing)

	last := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	state := &core.RateLimitState{
		RequestCount:  7,
		WindowStart:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		BackoffCount:  2,
		LastRequestAt: &last,
	}
	require.NoError(t, store.UpdateRateLimit(ctx, "backend:primary", state))

	fetched, err := store.GetRateLimit(ctx, "backend:primary")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Equal(t, 7, fetched.RequestCount)
	require.Equal(t, 2, fetched.BackoffCount)
	require.True(t, state.WindowStart.Equal(fetched.WindowStart))
	require.NotNil(t, fetched.LastRequestAt)
	require.True(t, last.Equal(*fetched.LastRequestAt))

	// Upsert replaces the previous row.
	state.RequestCount = 8
	require.NoError(t, store.UpdateRateLimit(ctx, "backend:primary", state))
	fetched, err = store.GetRateLimit(ctx, "backend:primary")
	require.NoError(t, err)
	require.Equal(t, 8, fetched.RequestCount)

	require.NoError(t, store.DeleteRateLimit(ctx, "backend:primary"))
	fetched, err = store.GetRateLimit(ctx, "backend:primary")
	require.NoError(t, err)
	require.Nil(t, fetched)

	require.NoError(t, store.DeleteRateLimit(ctx, "backend:primary"))
}

func TestRateLimitQueries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seed := map[string]int{
		"backend:primary": 3,
		"backend:archive": 5,
		"api:upload":      1,
	}
	for key, count := range seed {
		require.NoError(t, store.UpdateRateLimit(ctx, key, &core.RateLimitState{
			RequestCount: count,
			WindowStart:  time.Now().UTC(),
		}))
	}

	entries, err := store.ListRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Ordered by key.
	require.Equal(t, "api:upload", entries[0].Key)

	entries, err = store.ListRateLimits(ctx, RateLimitQuery{Prefix: "backend:"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = store.ListRateLimits(ctx, RateLimitQuery{Key: "api:upload"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 1, entries[0].State.RequestCount)

	count, err := store.CountRateLimits(ctx, RateLimitQuery{Prefix: "backend:"})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	affected, err := store.ResetRateLimits(ctx, RateLimitQuery{Prefix: "backend:"})
	require.NoError(t, err)
	require.Equal(t, int64(2), affected)

	count, err = store.CountRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = store.ListRateLimits(ctx, RateLimitQuery{})
	require.Error(t, err)
}
