package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryAcquireRespectsLimit(t *testing.T) {
	g := New(2)

	r1, ok := g.TryAcquire()
	require.True(t, ok)
	r2, ok := g.TryAcquire()
	require.True(t, ok)

	_, ok = g.TryAcquire()
	require.False(t, ok)
	require.Equal(t, 2, g.InFlight())

	r1()
	r3, ok := g.TryAcquire()
	require.True(t, ok)

	r2()
	r3()
	require.Equal(t, 0, g.InFlight())
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	g := New(1)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := g.Acquire(context.Background())
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the slot is held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never admitted after release")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	g := New(1)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = g.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSetLimitWakesWaiters(t *testing.T) {
	g := New(1)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	acquired := make(chan struct{})
	go func() {
		r, err := g.Acquire(context.Background())
		if err == nil {
			close(acquired)
			r()
		}
	}()

	time.Sleep(10 * time.Millisecond)
	g.SetLimit(2)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("raising the limit should admit the waiter")
	}
	require.Equal(t, 2, g.Limit())
}

func TestShrinkKeepsHolders(t *testing.T) {
	g := New(3)

	var releases []func()
	for i := 0; i < 3; i++ {
		r, ok := g.TryAcquire()
		require.True(t, ok)
		releases = append(releases, r)
	}

	g.SetLimit(1)
	require.Equal(t, 3, g.InFlight())
	_, ok := g.TryAcquire()
	require.False(t, ok)

	// Draining below the new limit re-opens admission.
	releases[0]()
	releases[1]()
	_, ok = g.TryAcquire()
	require.False(t, ok)
	releases[2]()
	r, ok := g.TryAcquire()
	require.True(t, ok)
	r()
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := New(1)

	release, ok := g.TryAcquire()
	require.True(t, ok)
	release()
	release()
	require.Equal(t, 0, g.InFlight())
}
