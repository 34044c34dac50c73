package health

import (
	"time"

	"github.com/stevedore/stevedore/internal/core"
)

// DefaultTrendWindow is the lookback used when callers pass no window.
const DefaultTrendWindow = time.Hour

// Slope thresholds separating stable from directional movement. Tuning
// constants carried over from the deployed system.
const (
	improvingResponseSlope = -0.1
	improvingRateSlope     = 0.1
	degradingResponseSlope = 0.1
	degradingRateSlope     = -0.1
)

// Trend classifies one backend's health direction over the window from
// least-squares slopes of its response-time (milliseconds) and
// success-rate series. Unknown backends report unknown; fewer than two
// snapshots in the window report insufficient_data.
func (c *Checker) Trend(backendID string, window time.Duration) core.HealthTrend {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	trend := core.HealthTrend{
		BackendID: backendID,
		Direction: core.TrendUnknown,
		Window:    window,
	}

	c.mu.Lock()
	m, ok := c.metrics[backendID]
	if !ok {
		c.mu.Unlock()
		return trend
	}

	cutoff := c.now().Add(-window)
	var responseTimes, successRates []float64
	for _, h := range m.History {
		if h.LastChecked.Before(cutoff) {
			continue
		}
		responseTimes = append(responseTimes, float64(h.ResponseTime.Milliseconds()))
		successRates = append(successRates, h.SuccessRate)
	}
	c.mu.Unlock()

	trend.DataPoints = len(responseTimes)
	if trend.DataPoints < 2 {
		trend.Direction = core.TrendInsufficientData
		return trend
	}

	responseSlope := leastSquaresSlope(responseTimes)
	rateSlope := leastSquaresSlope(successRates)
	trend.ChangeRate = (responseSlope + rateSlope) / 2

	switch {
	case responseSlope < improvingResponseSlope && rateSlope > improvingRateSlope:
		trend.Direction = core.TrendImproving
	case responseSlope > degradingResponseSlope || rateSlope < degradingRateSlope:
		trend.Direction = core.TrendDegrading
	default:
		trend.Direction = core.TrendStable
	}
	return trend
}

// Trends computes the trend for every tracked backend.
func (c *Checker) Trends(window time.Duration) []core.HealthTrend {
	c.mu.Lock()
	ids := make([]string, 0, len(c.metrics))
	for id := range c.metrics {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	trends := make([]core.HealthTrend, 0, len(ids))
	for _, id := range ids {
		trends = append(trends, c.Trend(id, window))
	}
	return trends
}

// leastSquaresSlope fits y = a + b*x with x as the sequence index and
// returns b.
func leastSquaresSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
