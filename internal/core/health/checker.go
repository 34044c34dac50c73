// Package health probes storage backends, retains rolling per-backend
// metrics, and derives trend and aggregate statistics from them. The
// in-memory metric map is authoritative; a HistoryStore, when present,
// receives best-effort write-throughs for offline inspection.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stevedore/stevedore/internal/core"
	"github.com/stevedore/stevedore/internal/core/backend"
)

// historyLimit bounds the retained per-backend snapshot ring.
const historyLimit = 100

// DefaultInterval is the monitoring cadence when none is configured.
const DefaultInterval = 30 * time.Second

// HistoryStore receives probe outcomes as they are recorded. Failures are
// ignored; the journal never affects probing.
type HistoryStore interface {
	AppendHealthCheck(ctx context.Context, result core.HealthCheckResult) error
}

// Checker probes registered backends and accumulates their health metrics.
// All state is owned by the instance and guarded by an internal mutex.
type Checker struct {
	History HistoryStore
	Clock   func() time.Time

	mu       sync.Mutex
	interval time.Duration
	backends map[string]backend.Backend
	metrics  map[string]*core.HealthMetric

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChecker creates a checker probing at the given interval when
// monitoring is started. A non-positive interval uses DefaultInterval.
func NewChecker(interval time.Duration) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{
		interval: interval,
		backends: make(map[string]backend.Backend),
		metrics:  make(map[string]*core.HealthMetric),
	}
}

// Register adds a backend to the probe set. Registering the same ID again
// replaces the previous backend but keeps its accumulated metrics.
func (c *Checker) Register(b backend.Backend) {
	if b == nil {
		return
	}
	c.mu.Lock()
	c.backends[b.Info().ID] = b
	c.mu.Unlock()
}

// Seed pre-populates one backend's history ring, oldest first, without
// counting toward check totals. Used to rebuild trend state from the
// journal after a restart. Seeding an already-probed backend prepends
// within the ring cap.
func (c *Checker) Seed(info core.BackendInfo, history []core.StorageHealth) {
	if len(history) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.metrics[info.ID]
	if !ok {
		m = &core.HealthMetric{Backend: info}
		c.metrics[info.ID] = m
	}

	merged := append(append([]core.StorageHealth{}, history...), m.History...)
	if len(merged) > historyLimit {
		merged = merged[len(merged)-historyLimit:]
	}
	m.History = merged
	m.Latest = merged[len(merged)-1]

	var responseSum time.Duration
	var rateSum float64
	for _, h := range m.History {
		responseSum += h.ResponseTime
		rateSum += h.SuccessRate
	}
	m.AvgResponseTime = responseSum / time.Duration(len(m.History))
	m.AvgSuccessRate = rateSum / float64(len(m.History))
}

// CheckBackend probes one backend and records the outcome. It never returns
// an error: a failed probe becomes an unhealthy snapshot with the error
// captured as data.
func (c *Checker) CheckBackend(ctx context.Context, b backend.Backend) core.HealthCheckResult {
	start := c.now()
	snapshot, err := b.HealthCheck(ctx)
	duration := c.now().Sub(start)

	if err != nil {
		snapshot = core.StorageHealth{
			Status:       core.HealthStatusUnhealthy,
			ResponseTime: duration,
			LastChecked:  c.now(),
			Error:        err.Error(),
		}
	}
	if snapshot.LastChecked.IsZero() {
		snapshot.LastChecked = c.now()
	}

	result := core.HealthCheckResult{
		Backend:   b.Info(),
		Health:    snapshot,
		Duration:  duration,
		Timestamp: c.now(),
	}
	c.record(result)

	if c.History != nil {
		_ = c.History.AppendHealthCheck(ctx, result)
	}
	return result
}

// CheckAll probes every registered backend concurrently and returns all
// outcomes. One backend's failure never affects another's probe.
func (c *Checker) CheckAll(ctx context.Context) []core.HealthCheckResult {
	c.mu.Lock()
	backends := make([]backend.Backend, 0, len(c.backends))
	for _, b := range c.backends {
		backends = append(backends, b)
	}
	c.mu.Unlock()

	results := make([]core.HealthCheckResult, len(backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			results[i] = c.CheckBackend(gctx, b)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// StartMonitoring arms the recurring probe loop. Calling it while the loop
// is already running is a no-op. The loop stops when the context ends or
// StopMonitoring is called.
func (c *Checker) StartMonitoring(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	interval := c.interval
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.CheckAll(runCtx)
			}
		}
	}()
}

// StopMonitoring stops the probe loop and waits for it to exit. Safe to
// call multiple times and without a prior start.
func (c *Checker) StopMonitoring() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Monitoring reports whether the probe loop is running.
func (c *Checker) Monitoring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Dispose stops monitoring and clears all retained state. Terminal call.
func (c *Checker) Dispose() {
	c.StopMonitoring()
	c.mu.Lock()
	c.backends = make(map[string]backend.Backend)
	c.metrics = make(map[string]*core.HealthMetric)
	c.mu.Unlock()
}

// Metric returns a copy of one backend's accumulated metric.
func (c *Checker) Metric(backendID string) (core.HealthMetric, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metrics[backendID]
	if !ok {
		return core.HealthMetric{}, false
	}
	return copyMetric(m), true
}

// Metrics returns copies of all accumulated metrics keyed by backend ID.
func (c *Checker) Metrics() map[string]core.HealthMetric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]core.HealthMetric, len(c.metrics))
	for id, m := range c.metrics {
		out[id] = copyMetric(m)
	}
	return out
}

// Aggregated rolls the latest snapshots across all tracked backends into
// one summary. Zero values when nothing is tracked.
func (c *Checker) Aggregated() core.AggregatedHealthStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := core.AggregatedHealthStats{TotalBackends: len(c.metrics)}
	if len(c.metrics) == 0 {
		return stats
	}

	var responseSum time.Duration
	var rateSum float64
	for _, m := range c.metrics {
		switch m.Latest.Status {
		case core.HealthStatusHealthy:
			stats.HealthyCount++
		case core.HealthStatusDegraded:
			stats.DegradedCount++
		default:
			stats.UnhealthyCount++
		}
		responseSum += m.Latest.ResponseTime
		rateSum += m.Latest.SuccessRate
		stats.AvailableCapacity += m.Latest.AvailableCapacity
		stats.TotalCapacity += m.Latest.TotalCapacity
	}
	stats.AvgResponseTime = responseSum / time.Duration(len(c.metrics))
	stats.AvgSuccessRate = rateSum / float64(len(c.metrics))
	return stats
}

func (c *Checker) record(result core.HealthCheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.metrics[result.Backend.ID]
	if !ok {
		m = &core.HealthMetric{Backend: result.Backend}
		c.metrics[result.Backend.ID] = m
	}

	m.Latest = result.Health
	if len(m.History) >= historyLimit {
		m.History = m.History[1:]
	}
	m.History = append(m.History, result.Health)

	m.TotalChecks++
	if result.Health.Status != core.HealthStatusUnhealthy {
		m.SuccessfulChecks++
	}

	var responseSum time.Duration
	var rateSum float64
	for _, h := range m.History {
		responseSum += h.ResponseTime
		rateSum += h.SuccessRate
	}
	m.AvgResponseTime = responseSum / time.Duration(len(m.History))
	m.AvgSuccessRate = rateSum / float64(len(m.History))
}

func copyMetric(m *core.HealthMetric) core.HealthMetric {
	out := *m
	out.History = make([]core.StorageHealth, len(m.History))
	copy(out.History, m.History)
	return out
}

func (c *Checker) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
