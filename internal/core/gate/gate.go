// Package gate provides a resizable counting semaphore used to bound
// concurrent uploads. Unlike a fixed channel semaphore, the limit can be
// changed while holders are in flight; a shrink never evicts current
// holders, it only delays new admissions.
package gate

import (
	"context"
	"sync"
)

// Gate bounds the number of concurrent holders. The zero value is not
// usable; construct with New.
type Gate struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	wake     chan struct{}
}

// New creates a gate admitting at most limit concurrent holders. A limit
// below one is treated as one.
func New(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{
		limit: limit,
		wake:  make(chan struct{}),
	}
}

// Acquire blocks until a slot is available or the context ends. On success
// it returns a release function that must be called exactly once; calling
// it more than once is a no-op.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g.mu.Lock()
		if g.inFlight < g.limit {
			g.inFlight++
			g.mu.Unlock()
			return g.releaseFunc(), nil
		}
		wake := g.wake
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// TryAcquire takes a slot without blocking. It returns a release function
// and true on success, nil and false when the gate is full.
func (g *Gate) TryAcquire() (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight >= g.limit {
		return nil, false
	}
	g.inFlight++
	return g.releaseFunc(), true
}

// SetLimit changes the admission limit. Raising it wakes blocked callers;
// shrinking only affects future admissions. A limit below one is treated
// as one.
func (g *Gate) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	g.mu.Lock()
	prev := g.limit
	g.limit = limit
	if limit > prev {
		g.broadcastLocked()
	}
	g.mu.Unlock()
}

// Limit returns the current admission limit.
func (g *Gate) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

// InFlight returns the number of current holders.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

func (g *Gate) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.inFlight--
			g.broadcastLocked()
			g.mu.Unlock()
		})
	}
}

// broadcastLocked wakes every waiter by rotating the wake channel.
func (g *Gate) broadcastLocked() {
	close(g.wake)
	g.wake = make(chan struct{})
}
