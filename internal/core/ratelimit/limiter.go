package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/stevedore/stevedore/internal/core"
)

// Strategy selects the admission-control algorithm.
type Strategy string

const (
	StrategyFixedWindow   Strategy = "fixed-window"
	StrategySlidingWindow Strategy = "sliding-window"
	StrategyTokenBucket   Strategy = "token-bucket"
	StrategyLeakyBucket   Strategy = "leaky-bucket"
)

// Config is an immutable snapshot of limiter settings. Replacing it via
// UpdateConfig clears all tracked state.
type Config struct {
	Strategy          Strategy
	MaxRequests       int
	Window            time.Duration
	BurstSize         int
	RetryAfter        time.Duration
	EnableBackoff     bool
	BackoffMultiplier float64
	MaxBackoffDelay   time.Duration
}

// DefaultConfig provides conservative limiter defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyFixedWindow,
		MaxRequests:       100,
		Window:            time.Minute,
		RetryAfter:        time.Second,
		BackoffMultiplier: 2,
		MaxBackoffDelay:   5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = def.MaxRequests
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = def.RetryAfter
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.MaxBackoffDelay <= 0 {
		c.MaxBackoffDelay = def.MaxBackoffDelay
	}
	return c
}

// Patch carries partial config updates; nil fields keep the current value.
type Patch struct {
	Strategy          *Strategy
	MaxRequests       *int
	Window            *time.Duration
	BurstSize         *int
	RetryAfter        *time.Duration
	EnableBackoff     *bool
	BackoffMultiplier *float64
	MaxBackoffDelay   *time.Duration
}

// Decision reports the outcome of an admission check.
type Decision struct {
	Allowed      bool          `json:"allowed"`
	Remaining    int           `json:"remaining"`
	ResetAt      time.Time     `json:"reset_at"`
	RetryAfter   time.Duration `json:"retry_after,omitempty"`
	BackoffDelay time.Duration `json:"backoff_delay,omitempty"`
}

// entry tracks windowed admission state for one key.
type entry struct {
	count        int
	resetAt      time.Time
	lastRequest  time.Time
	backoffCount int
	timestamps   []time.Time
}

// bucketState tracks token-bucket state for one key. Refill happens lazily
// on read, never via a background timer.
type bucketState struct {
	tokens     int
	lastRefill time.Time
}

// Journal receives best-effort write-throughs of limiter entries so admin
// tooling can inspect them. Journal failures never affect admission.
type Journal interface {
	UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error
	DeleteRateLimit(ctx context.Context, key string) error
}

// Limiter performs per-key admission control. All state is owned by the
// instance and guarded by an internal mutex; checks never fail, an unknown
// key is fully available.
type Limiter struct {
	Journal Journal
	Clock   func() time.Time

	// OnDecision, when set, observes every Check outcome. Must not block.
	OnDecision func(key string, allowed bool)

	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	buckets map[string]*bucketState
}

// NewLimiter creates a limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
		buckets: make(map[string]*bucketState),
	}
}

// Config returns the active configuration snapshot.
func (l *Limiter) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Check reports whether a request under the key may proceed right now. It
// does not consume capacity; call Record after an allowed check to do that.
func (l *Limiter) Check(key string) Decision {
	l.mu.Lock()
	decision := l.checkLocked(key)
	observe := l.OnDecision
	l.mu.Unlock()

	if observe != nil {
		observe(key, decision.Allowed)
	}
	return decision
}

func (l *Limiter) checkLocked(key string) Decision {
	now := l.now()

	e, ok := l.entries[key]
	if ok && l.cfg.Strategy != StrategySlidingWindow && l.cfg.Strategy != StrategyTokenBucket && now.After(e.resetAt) {
		// Window expired: drop the entry and evaluate fresh.
		delete(l.entries, key)
		e, ok = nil, false
	}
	if !ok {
		e = &entry{resetAt: now.Add(l.cfg.Window)}
		l.entries[key] = e
	}

	var decision Decision
	switch l.cfg.Strategy {
	case StrategySlidingWindow:
		decision = l.checkSliding(e, now)
	case StrategyTokenBucket:
		decision = l.checkTokenBucket(key, now)
	case StrategyLeakyBucket:
		decision = l.checkCounter(e, l.burstLimit())
	default:
		decision = l.checkCounter(e, l.cfg.MaxRequests)
	}

	if decision.Allowed {
		e.backoffCount = 0
		return decision
	}

	decision.RetryAfter = l.cfg.RetryAfter
	if l.cfg.EnableBackoff {
		e.backoffCount++
		decision.BackoffDelay = l.backoffDelay(e.backoffCount)
		decision.RetryAfter = decision.BackoffDelay
	}
	return decision
}

func (l *Limiter) checkCounter(e *entry, limit int) Decision {
	remaining := limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   e.count < limit,
		Remaining: remaining,
		ResetAt:   e.resetAt,
	}
}

func (l *Limiter) checkSliding(e *entry, now time.Time) Decision {
	cutoff := now.Add(-l.cfg.Window)
	kept := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.timestamps = kept
	e.count = len(kept)

	resetAt := now.Add(l.cfg.Window)
	if len(kept) > 0 {
		resetAt = kept[0].Add(l.cfg.Window)
	}
	e.resetAt = resetAt

	remaining := l.cfg.MaxRequests - len(kept)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   len(kept) < l.cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func (l *Limiter) checkTokenBucket(key string, now time.Time) Decision {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucketState{tokens: l.cfg.MaxRequests, lastRefill: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed >= l.cfg.Window {
		refills := int(elapsed / l.cfg.Window)
		b.tokens += refills * l.cfg.MaxRequests
		if b.tokens > l.cfg.MaxRequests {
			b.tokens = l.cfg.MaxRequests
		}
		b.lastRefill = b.lastRefill.Add(time.Duration(refills) * l.cfg.Window)
	}

	return Decision{
		Allowed:   b.tokens > 0,
		Remaining: b.tokens,
		ResetAt:   b.lastRefill.Add(l.cfg.Window),
	}
}

// Record consumes capacity for the key. Call it after an allowed Check.
func (l *Limiter) Record(ctx context.Context, key string) {
	l.mu.Lock()
	now := l.now()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{resetAt: now.Add(l.cfg.Window)}
		l.entries[key] = e
	}
	e.count++
	e.lastRequest = now

	switch l.cfg.Strategy {
	case StrategySlidingWindow:
		e.timestamps = append(e.timestamps, now)
	case StrategyTokenBucket:
		if b, ok := l.buckets[key]; ok && b.tokens > 0 {
			b.tokens--
		}
	}

	state := journalState(e, l.cfg.Window)
	l.mu.Unlock()

	l.journalUpdate(ctx, key, state)
}

// Wait blocks until a check for the key is allowed or the context ends. The
// delay between attempts follows the limiter's own retry hint.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		decision := l.Check(key)
		if decision.Allowed {
			return nil
		}

		delay := decision.RetryAfter
		if delay <= 0 {
			delay = l.Config().RetryAfter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset clears tracked state for one key.
func (l *Limiter) Reset(ctx context.Context, key string) {
	l.mu.Lock()
	delete(l.entries, key)
	delete(l.buckets, key)
	l.mu.Unlock()

	if l.Journal != nil {
		_ = l.Journal.DeleteRateLimit(ctx, key)
	}
}

// ResetAll clears all tracked state.
func (l *Limiter) ResetAll(ctx context.Context) {
	l.mu.Lock()
	keys := make([]string, 0, len(l.entries))
	for key := range l.entries {
		keys = append(keys, key)
	}
	for key := range l.buckets {
		if _, tracked := l.entries[key]; !tracked {
			keys = append(keys, key)
		}
	}
	l.entries = make(map[string]*entry)
	l.buckets = make(map[string]*bucketState)
	l.mu.Unlock()

	if l.Journal != nil {
		for _, key := range keys {
			_ = l.Journal.DeleteRateLimit(ctx, key)
		}
	}
}

// UpdateConfig applies a partial config update. All tracked state is cleared;
// callers must not assume continuity across a config change.
func (l *Limiter) UpdateConfig(ctx context.Context, patch Patch) {
	l.mu.Lock()
	cfg := l.cfg
	if patch.Strategy != nil {
		cfg.Strategy = *patch.Strategy
	}
	if patch.MaxRequests != nil {
		cfg.MaxRequests = *patch.MaxRequests
	}
	if patch.Window != nil {
		cfg.Window = *patch.Window
	}
	if patch.BurstSize != nil {
		cfg.BurstSize = *patch.BurstSize
	}
	if patch.RetryAfter != nil {
		cfg.RetryAfter = *patch.RetryAfter
	}
	if patch.EnableBackoff != nil {
		cfg.EnableBackoff = *patch.EnableBackoff
	}
	if patch.BackoffMultiplier != nil {
		cfg.BackoffMultiplier = *patch.BackoffMultiplier
	}
	if patch.MaxBackoffDelay != nil {
		cfg.MaxBackoffDelay = *patch.MaxBackoffDelay
	}
	l.cfg = cfg.withDefaults()

	keys := make([]string, 0, len(l.entries))
	for key := range l.entries {
		keys = append(keys, key)
	}
	l.entries = make(map[string]*entry)
	l.buckets = make(map[string]*bucketState)
	l.mu.Unlock()

	if l.Journal != nil {
		for _, key := range keys {
			_ = l.Journal.DeleteRateLimit(ctx, key)
		}
	}
}

func (l *Limiter) burstLimit() int {
	if l.cfg.BurstSize > 0 {
		return l.cfg.BurstSize
	}
	return l.cfg.MaxRequests
}

func (l *Limiter) backoffDelay(backoffCount int) time.Duration {
	delay := time.Duration(float64(l.cfg.RetryAfter) * math.Pow(l.cfg.BackoffMultiplier, float64(backoffCount)))
	if delay > l.cfg.MaxBackoffDelay || delay <= 0 {
		delay = l.cfg.MaxBackoffDelay
	}
	return delay
}

func (l *Limiter) journalUpdate(ctx context.Context, key string, state *core.RateLimitState) {
	if l.Journal == nil || state == nil {
		return
	}
	_ = l.Journal.UpdateRateLimit(ctx, key, state)
}

func journalState(e *entry, window time.Duration) *core.RateLimitState {
	state := &core.RateLimitState{
		RequestCount: e.count,
		WindowStart:  e.resetAt.Add(-window),
		BackoffCount: e.backoffCount,
	}
	if !e.lastRequest.IsZero() {
		last := e.lastRequest
		state.LastRequestAt = &last
	}
	return state
}

func (l *Limiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}
