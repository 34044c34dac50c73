package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevedore/stevedore/internal/core"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func sampleHealthResults() []core.HealthCheckResult {
	return []core.HealthCheckResult{
		{
			Backend: core.BackendInfo{ID: "archive", Name: "Archive", Type: core.BackendTypeS3},
			Health: core.StorageHealth{
				Status:            core.HealthStatusHealthy,
				ResponseTime:      42 * time.Millisecond,
				SuccessRate:       99.5,
				AvailableCapacity: 1 << 30,
				TotalCapacity:     10 << 30,
			},
		},
		{
			Backend: core.BackendInfo{ID: "scratch", Name: "Scratch", Type: core.BackendTypeLocalFS},
			Health: core.StorageHealth{
				Status:       core.HealthStatusUnhealthy,
				ResponseTime: 5 * time.Second,
				Error:        "connection refused",
			},
		},
	}
}

func TestJSONFormatterHealth(t *testing.T) {
	rendered, err := (&JSONFormatter{Indent: true}).FormatHealth(sampleHealthResults())
	require.NoError(t, err)
	require.Contains(t, rendered, "\"id\": \"archive\"")
	require.Contains(t, rendered, "\"status\": \"unhealthy\"")

	var decoded []core.HealthCheckResult
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 2)
}

func TestTableFormatterHealth(t *testing.T) {
	rendered, err := (&TableFormatter{}).FormatHealth(sampleHealthResults())
	require.NoError(t, err)
	require.Contains(t, rendered, "archive")
	require.Contains(t, rendered, "healthy")
	require.Contains(t, rendered, "connection refused")
	require.Contains(t, rendered, "42ms")
}

func TestMarkdownFormatterHealth(t *testing.T) {
	rendered, err := (&MarkdownFormatter{}).FormatHealth(sampleHealthResults())
	require.NoError(t, err)
	require.Contains(t, rendered, "## Backend health")
	require.Contains(t, rendered, "| archive |")
	require.Contains(t, rendered, "99.5%")
}

func TestFormatTrends(t *testing.T) {
	trends := []core.HealthTrend{
		{BackendID: "archive", Direction: core.TrendImproving, ChangeRate: -2.5, Window: time.Hour, DataPoints: 12},
		{BackendID: "scratch", Direction: core.TrendInsufficientData, Window: time.Hour, DataPoints: 1},
	}

	rendered, err := (&TableFormatter{}).FormatTrends(trends)
	require.NoError(t, err)
	require.Contains(t, rendered, "improving")
	require.Contains(t, rendered, "-2.500")

	rendered, err = (&MarkdownFormatter{}).FormatTrends(trends)
	require.NoError(t, err)
	require.Contains(t, rendered, "insufficient_data")
}

func TestFormatRun(t *testing.T) {
	run := &core.IngestionRun{
		ID:          "run-1",
		Root:        "/data",
		BackendID:   "archive",
		Total:       3,
		Uploaded:    2,
		Skipped:     1,
		SuccessRate: 66.7,
		DryRun:      false,
		Files: []core.FileResult{
			{Name: "a.txt", Size: 512, Outcome: core.FileUploaded},
			{Name: "b.txt", Size: 2048, Outcome: core.FileUploaded},
			{Name: "c.txt", Size: 100, Outcome: core.FileSkipped, Message: "object already exists"},
		},
	}

	rendered, err := (&TableFormatter{}).FormatRun(run)
	require.NoError(t, err)
	require.Contains(t, rendered, "a.txt")
	require.Contains(t, rendered, "66.7% success")
	require.Contains(t, rendered, "2 uploaded, 1 skipped, 0 failed")

	rendered, err = (&MarkdownFormatter{}).FormatRun(run)
	require.NoError(t, err)
	require.Contains(t, rendered, "## Ingestion run run-1")
	require.Contains(t, rendered, "object already exists")

	rendered, err = (&JSONFormatter{}).FormatRun(nil)
	require.NoError(t, err)
	require.Empty(t, rendered)
}

func TestFormatRuns(t *testing.T) {
	started := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	runs := []*core.IngestionRun{
		{
			ID:          "run-1",
			BackendID:   "archive",
			Total:       10,
			Uploaded:    9,
			Failed:      1,
			SuccessRate: 90.0,
			Duration:    3 * time.Second,
			StartedAt:   started,
		},
		{
			ID:        "run-2",
			BackendID: "archive",
			Total:     4,
			DryRun:    true,
			StartedAt: started.Add(time.Hour),
		},
		nil,
	}

	rendered, err := (&TableFormatter{}).FormatRuns(runs)
	require.NoError(t, err)
	require.Contains(t, rendered, "run-1")
	require.Contains(t, rendered, "run-2 (dry-run)")
	require.Contains(t, rendered, "90.0%")
	require.Contains(t, rendered, "2026-04-02T09:30:00Z")

	rendered, err = (&MarkdownFormatter{}).FormatRuns(runs)
	require.NoError(t, err)
	require.Contains(t, rendered, "## Ingestion runs")
	require.Contains(t, rendered, "9 uploaded, 0 skipped, 1 failed")

	rendered, err = (&JSONFormatter{}).FormatRuns(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", rendered)
}

func TestFormatRateLimits(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []RateLimitRow{
		{
			Key: "backend:archive",
			State: core.RateLimitState{
				RequestCount:  7,
				WindowStart:   last.Add(-time.Minute),
				BackoffCount:  2,
				LastRequestAt: &last,
			},
		},
		{
			Key:   "backend:scratch",
			State: core.RateLimitState{},
		},
	}

	rendered, err := (&TableFormatter{}).FormatRateLimits(rows)
	require.NoError(t, err)
	require.Contains(t, rendered, "backend:archive")
	require.Contains(t, rendered, "2026-03-01T12:00:00Z")

	rendered, err = (&JSONFormatter{Indent: true}).FormatRateLimits(rows)
	require.NoError(t, err)
	require.Contains(t, rendered, "\"key\": \"backend:scratch\"")
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "512 B", formatBytes(512))
	require.Equal(t, "1.0 KiB", formatBytes(1024))
	require.Equal(t, "10.0 GiB", formatBytes(10<<30))
	require.True(t, strings.HasSuffix(formatBytes(5<<40), "TiB"))
}
