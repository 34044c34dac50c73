package core

import "time"

// RateLimitState is the persisted shadow of one limiter entry.
//
// The limiter owns its state in memory; this shape only exists so entries can
// be journaled to the store for the rate-limit admin commands.
type RateLimitState struct {
	RequestCount  int
	WindowStart   time.Time
	BackoffCount  int
	LastRequestAt *time.Time
}
