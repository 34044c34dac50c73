package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevedore/stevedore/internal/core"
	"github.com/stevedore/stevedore/internal/core/backend"
)

// stubBackend scripts health probe outcomes for checker tests.
type stubBackend struct {
	info core.BackendInfo

	mu        sync.Mutex
	snapshots []core.StorageHealth
	errs      []error
	calls     atomic.Int64
}

func newStubBackend(id string) *stubBackend {
	return &stubBackend{info: core.BackendInfo{ID: id, Name: id, Type: core.BackendTypeLocalFS}}
}

func (s *stubBackend) Info() core.BackendInfo { return s.info }

func (s *stubBackend) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	return nil
}

func (s *stubBackend) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	return nil, backend.ErrObjectNotFound
}

func (s *stubBackend) Delete(ctx context.Context, name string) error { return nil }

func (s *stubBackend) Exists(ctx context.Context, name string) (bool, error) { return false, nil }

func (s *stubBackend) HealthCheck(ctx context.Context) (core.StorageHealth, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return core.StorageHealth{}, err
		}
	}
	if len(s.snapshots) == 0 {
		return core.StorageHealth{Status: core.HealthStatusHealthy, SuccessRate: 100}, nil
	}
	snapshot := s.snapshots[0]
	if len(s.snapshots) > 1 {
		s.snapshots = s.snapshots[1:]
	}
	return snapshot, nil
}

func (s *stubBackend) script(snapshots ...core.StorageHealth) {
	s.mu.Lock()
	s.snapshots = snapshots
	s.mu.Unlock()
}

func (s *stubBackend) fail(errs ...error) {
	s.mu.Lock()
	s.errs = errs
	s.mu.Unlock()
}

func TestCheckBackendRecordsOutcome(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	checker := NewChecker(time.Minute)
	checker.Clock = func() time.Time { return now }

	b := newStubBackend("primary")
	b.script(core.StorageHealth{
		Status:       core.HealthStatusHealthy,
		ResponseTime: 20 * time.Millisecond,
		SuccessRate:  100,
		LastChecked:  now,
	})

	result := checker.CheckBackend(context.Background(), b)
	require.Equal(t, "primary", result.Backend.ID)
	require.Equal(t, core.HealthStatusHealthy, result.Health.Status)

	metric, ok := checker.Metric("primary")
	require.True(t, ok)
	require.Equal(t, int64(1), metric.TotalChecks)
	require.Equal(t, int64(1), metric.SuccessfulChecks)
	require.Len(t, metric.History, 1)
}

func TestFailingProbesBecomeUnhealthyData(t *testing.T) {
	checker := NewChecker(time.Minute)
	b := newStubBackend("flaky")
	b.fail(errors.New("connect refused"), errors.New("connect refused"), errors.New("connect refused"))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		result := checker.CheckBackend(ctx, b)
		require.Equal(t, core.HealthStatusUnhealthy, result.Health.Status)
		require.Equal(t, "connect refused", result.Health.Error)
	}

	metric, ok := checker.Metric("flaky")
	require.True(t, ok)
	require.Equal(t, int64(3), metric.TotalChecks)
	require.Equal(t, int64(0), metric.SuccessfulChecks)
}

func TestHistoryRingEvictsOldest(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	checker := NewChecker(time.Minute)
	checker.Clock = func() time.Time { return now }

	b := newStubBackend("ring")
	ctx := context.Background()
	for i := 0; i < 101; i++ {
		b.script(core.StorageHealth{
			Status:       core.HealthStatusHealthy,
			ResponseTime: time.Duration(i) * time.Millisecond,
			SuccessRate:  100,
			LastChecked:  now,
		})
		checker.CheckBackend(ctx, b)
	}

	metric, ok := checker.Metric("ring")
	require.True(t, ok)
	require.Len(t, metric.History, 100)
	// The first entry (0ms) was evicted on the 101st check.
	require.Equal(t, 1*time.Millisecond, metric.History[0].ResponseTime)
	require.Equal(t, 100*time.Millisecond, metric.History[99].ResponseTime)
	require.Equal(t, int64(101), metric.TotalChecks)
}

func TestCheckAllSettlesEveryBackend(t *testing.T) {
	checker := NewChecker(time.Minute)
	good := newStubBackend("good")
	bad := newStubBackend("bad")
	bad.fail(errors.New("bucket missing"))
	checker.Register(good)
	checker.Register(bad)

	results := checker.CheckAll(context.Background())
	require.Len(t, results, 2)

	byID := make(map[string]core.HealthCheckResult, len(results))
	for _, r := range results {
		byID[r.Backend.ID] = r
	}
	require.Equal(t, core.HealthStatusHealthy, byID["good"].Health.Status)
	require.Equal(t, core.HealthStatusUnhealthy, byID["bad"].Health.Status)
}

func TestAggregatedStats(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	checker := NewChecker(time.Minute)
	checker.Clock = func() time.Time { return now }

	require.Equal(t, core.AggregatedHealthStats{}, checker.Aggregated())

	ctx := context.Background()
	healthy := newStubBackend("a")
	healthy.script(core.StorageHealth{
		Status: core.HealthStatusHealthy, ResponseTime: 10 * time.Millisecond,
		SuccessRate: 100, AvailableCapacity: 500, TotalCapacity: 1000, LastChecked: now,
	})
	degraded := newStubBackend("b")
	degraded.script(core.StorageHealth{
		Status: core.HealthStatusDegraded, ResponseTime: 30 * time.Millisecond,
		SuccessRate: 80, AvailableCapacity: 40, TotalCapacity: 1000, LastChecked: now,
	})
	checker.CheckBackend(ctx, healthy)
	checker.CheckBackend(ctx, degraded)

	stats := checker.Aggregated()
	require.Equal(t, 2, stats.TotalBackends)
	require.Equal(t, 1, stats.HealthyCount)
	require.Equal(t, 1, stats.DegradedCount)
	require.Equal(t, 0, stats.UnhealthyCount)
	require.Equal(t, 20*time.Millisecond, stats.AvgResponseTime)
	require.InDelta(t, 90, stats.AvgSuccessRate, 0.001)
	require.Equal(t, int64(540), stats.AvailableCapacity)
	require.Equal(t, int64(2000), stats.TotalCapacity)
}

func TestTrendImproving(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	checker := NewChecker(time.Minute)
	checker.Clock = func() time.Time { return now }

	b := newStubBackend("t")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.script(core.StorageHealth{
			Status:       core.HealthStatusHealthy,
			ResponseTime: time.Duration(100-i*10) * time.Millisecond,
			SuccessRate:  80 + float64(i)*5,
			LastChecked:  now,
		})
		checker.CheckBackend(ctx, b)
	}

	trend := checker.Trend("t", time.Hour)
	require.Equal(t, core.TrendImproving, trend.Direction)
	require.Equal(t, 5, trend.DataPoints)
	// Response slope -10, rate slope +5, mean -2.5.
	require.InDelta(t, -2.5, trend.ChangeRate, 0.001)
}

func TestTrendDegrading(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	checker := NewChecker(time.Minute)
	checker.Clock = func() time.Time { return now }

	b := newStubBackend("t")
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.script(core.StorageHealth{
			Status:       core.HealthStatusHealthy,
			ResponseTime: time.Duration(50+i*20) * time.Millisecond,
			SuccessRate:  100,
			LastChecked:  now,
		})
		checker.CheckBackend(ctx, b)
	}

	require.Equal(t, core.TrendDegrading, checker.Trend("t", time.Hour).Direction)
}

func TestTrendInsufficientData(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	checker := NewChecker(time.Minute)
	checker.Clock = func() time.Time { return now }

	b := newStubBackend("t")
	b.script(core.StorageHealth{Status: core.HealthStatusHealthy, SuccessRate: 100, LastChecked: now})
	checker.CheckBackend(context.Background(), b)

	trend := checker.Trend("t", time.Hour)
	require.Equal(t, core.TrendInsufficientData, trend.Direction)
	require.Equal(t, 1, trend.DataPoints)

	require.Equal(t, core.TrendUnknown, checker.Trend("missing", time.Hour).Direction)
}

func TestTrendWindowFiltersOldEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	checker := NewChecker(time.Minute)
	checker.Clock = func() time.Time { return now }

	b := newStubBackend("t")
	ctx := context.Background()

	// Two old snapshots, then the clock moves two hours ahead.
	for i := 0; i < 2; i++ {
		b.script(core.StorageHealth{Status: core.HealthStatusHealthy, SuccessRate: 100, LastChecked: now})
		checker.CheckBackend(ctx, b)
	}
	now = now.Add(2 * time.Hour)
	b.script(core.StorageHealth{Status: core.HealthStatusHealthy, SuccessRate: 100, LastChecked: now})
	checker.CheckBackend(ctx, b)

	trend := checker.Trend("t", time.Hour)
	require.Equal(t, core.TrendInsufficientData, trend.Direction)
	require.Equal(t, 1, trend.DataPoints)
}

func TestSeedRebuildsTrendState(t *testing.T) {
	now := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)
	checker := NewChecker(time.Minute)
	checker.Clock = func() time.Time { return now }

	info := core.BackendInfo{ID: "t", Name: "t", Type: core.BackendTypeLocalFS}
	history := make([]core.StorageHealth, 0, 3)
	for i := 0; i < 3; i++ {
		history = append(history, core.StorageHealth{
			Status:       core.HealthStatusHealthy,
			ResponseTime: time.Duration(10+i*10) * time.Millisecond,
			SuccessRate:  100,
			LastChecked:  now.Add(time.Duration(i-3) * time.Minute),
		})
	}
	checker.Seed(info, history)

	m, ok := checker.Metric("t")
	require.True(t, ok)
	require.Len(t, m.History, 3)
	require.Zero(t, m.TotalChecks)

	trend := checker.Trend("t", time.Hour)
	require.Equal(t, 3, trend.DataPoints)
	require.Equal(t, core.TrendDegrading, trend.Direction)

	// A live probe lands after the seeded entries.
	b := newStubBackend("t")
	b.script(core.StorageHealth{Status: core.HealthStatusHealthy, ResponseTime: 40 * time.Millisecond, SuccessRate: 100, LastChecked: now})
	checker.CheckBackend(context.Background(), b)

	m, ok = checker.Metric("t")
	require.True(t, ok)
	require.Len(t, m.History, 4)
	require.Equal(t, 40*time.Millisecond, m.Latest.ResponseTime)
	require.Equal(t, int64(1), m.TotalChecks)
}

func TestSeedRespectsRingCap(t *testing.T) {
	checker := NewChecker(time.Minute)
	info := core.BackendInfo{ID: "t"}

	history := make([]core.StorageHealth, historyLimit+20)
	for i := range history {
		history[i] = core.StorageHealth{Status: core.HealthStatusHealthy, SuccessRate: float64(i)}
	}
	checker.Seed(info, history)

	m, ok := checker.Metric("t")
	require.True(t, ok)
	require.Len(t, m.History, historyLimit)
	require.Equal(t, float64(historyLimit+19), m.Latest.SuccessRate)
}

func TestMonitoringLoopIsIdempotent(t *testing.T) {
	checker := NewChecker(10 * time.Millisecond)
	b := newStubBackend("mon")
	checker.Register(b)

	ctx := context.Background()
	checker.StartMonitoring(ctx)
	checker.StartMonitoring(ctx)
	require.True(t, checker.Monitoring())

	require.Eventually(t, func() bool {
		return b.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	checker.StopMonitoring()
	checker.StopMonitoring()
	require.False(t, checker.Monitoring())

	settled := b.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, settled, b.calls.Load())
}

func TestDisposeClearsMetrics(t *testing.T) {
	checker := NewChecker(time.Minute)
	b := newStubBackend("d")
	checker.Register(b)
	checker.CheckBackend(context.Background(), b)

	checker.Dispose()
	_, ok := checker.Metric("d")
	require.False(t, ok)
	require.Empty(t, checker.Metrics())
	require.False(t, checker.Monitoring())
}

type recordingHistory struct {
	mu      sync.Mutex
	results []core.HealthCheckResult
}

func (r *recordingHistory) AppendHealthCheck(ctx context.Context, result core.HealthCheckResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return fmt.Errorf("journal offline")
}

func TestHistoryJournalIsBestEffort(t *testing.T) {
	journal := &recordingHistory{}
	checker := NewChecker(time.Minute)
	checker.History = journal

	b := newStubBackend("j")
	result := checker.CheckBackend(context.Background(), b)
	require.Equal(t, core.HealthStatusHealthy, result.Health.Status)

	journal.mu.Lock()
	defer journal.mu.Unlock()
	require.Len(t, journal.results, 1)
}
