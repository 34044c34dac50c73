package output

import (
	"fmt"
	"strings"

	"github.com/stevedore/stevedore/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// RateLimitRow is a formatter-friendly view of one journaled limiter entry.
type RateLimitRow struct {
	Key   string              `json:"key"`
	State core.RateLimitState `json:"state"`
}

// Formatter renders command results.
type Formatter interface {
	FormatHealth(results []core.HealthCheckResult) (string, error)
	FormatTrends(trends []core.HealthTrend) (string, error)
	FormatRun(run *core.IngestionRun) (string, error)
	FormatRuns(runs []*core.IngestionRun) (string, error)
	FormatRateLimits(rows []RateLimitRow) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func statusLabel(status core.HealthStatus) string {
	switch status {
	case core.HealthStatusHealthy:
		return "healthy"
	case core.HealthStatusDegraded:
		return "degraded"
	case core.HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return string(status)
	}
}

func healthNotes(result core.HealthCheckResult) string {
	if strings.TrimSpace(result.Health.Error) != "" {
		return result.Health.Error
	}
	if result.Health.TotalCapacity > 0 {
		return fmt.Sprintf("%s free of %s",
			formatBytes(result.Health.AvailableCapacity),
			formatBytes(result.Health.TotalCapacity))
	}
	return ""
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatOutcomeCounts(run *core.IngestionRun) string {
	return fmt.Sprintf("%d uploaded, %d skipped, %d failed", run.Uploaded, run.Skipped, run.Failed)
}
