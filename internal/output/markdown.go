package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/stevedore/stevedore/internal/core"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatHealth renders probe results as Markdown.
func (f *MarkdownFormatter) FormatHealth(results []core.HealthCheckResult) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Backend health\n\n")
	sb.WriteString("| Backend | Type | Status | Response | Success | Notes |\n")
	sb.WriteString("|---------|------|--------|----------|---------|-------|\n")

	for _, r := range results {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %.1f%% | %s |\n",
			escapeMarkdownCell(r.Backend.ID),
			escapeMarkdownCell(string(r.Backend.Type)),
			escapeMarkdownCell(statusLabel(r.Health.Status)),
			escapeMarkdownCell(r.Health.ResponseTime.Round(time.Millisecond).String()),
			r.Health.SuccessRate,
			escapeMarkdownCell(healthNotes(r)),
		))
	}

	return sb.String(), nil
}

// FormatTrends renders trend reports as Markdown.
func (f *MarkdownFormatter) FormatTrends(trends []core.HealthTrend) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Health trends\n\n")
	sb.WriteString("| Backend | Direction | Change Rate | Window | Data Points |\n")
	sb.WriteString("|---------|-----------|-------------|--------|-------------|\n")

	for _, trend := range trends {
		sb.WriteString(fmt.Sprintf("| %s | %s | %.3f | %s | %d |\n",
			escapeMarkdownCell(trend.BackendID),
			escapeMarkdownCell(string(trend.Direction)),
			trend.ChangeRate,
			escapeMarkdownCell(trend.Window.String()),
			trend.DataPoints,
		))
	}

	return sb.String(), nil
}

// FormatRun renders an ingestion run as Markdown.
func (f *MarkdownFormatter) FormatRun(run *core.IngestionRun) (string, error) {
	if run == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Ingestion run %s\n\n", escapeMarkdownCell(run.ID)))
	sb.WriteString("| File | Size | Outcome | Message |\n")
	sb.WriteString("|------|------|---------|--------|\n")

	for _, file := range run.Files {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(file.Name),
			escapeMarkdownCell(formatBytes(file.Size)),
			escapeMarkdownCell(string(file.Outcome)),
			escapeMarkdownCell(file.Message),
		))
	}

	if run.Total > 0 {
		sb.WriteString(fmt.Sprintf("\n**Summary**: %s (%.1f%% success)\n",
			formatOutcomeCounts(run), run.SuccessRate))
	}

	return sb.String(), nil
}

// FormatRuns renders run summaries as Markdown.
func (f *MarkdownFormatter) FormatRuns(runs []*core.IngestionRun) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Ingestion runs\n\n")
	sb.WriteString("| Run | Backend | Started | Total | Outcome | Success | Duration |\n")
	sb.WriteString("|-----|---------|---------|-------|---------|---------|----------|\n")

	for _, run := range runs {
		if run == nil {
			continue
		}
		id := run.ID
		if run.DryRun {
			id += " (dry-run)"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s | %.1f%% | %s |\n",
			escapeMarkdownCell(id),
			escapeMarkdownCell(run.BackendID),
			escapeMarkdownCell(run.StartedAt.Format(time.RFC3339)),
			run.Total,
			escapeMarkdownCell(formatOutcomeCounts(run)),
			run.SuccessRate,
			escapeMarkdownCell(run.Duration.Round(time.Millisecond).String()),
		))
	}

	return sb.String(), nil
}

// FormatRateLimits renders journaled limiter entries as Markdown.
func (f *MarkdownFormatter) FormatRateLimits(rows []RateLimitRow) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Rate limit entries\n\n")
	sb.WriteString("| Key | Requests | Window Start | Backoff Count | Last Request |\n")
	sb.WriteString("|-----|----------|--------------|---------------|--------------|\n")

	for _, row := range rows {
		lastRequest := ""
		if row.State.LastRequestAt != nil {
			lastRequest = row.State.LastRequestAt.Format(time.RFC3339)
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %d | %s |\n",
			escapeMarkdownCell(row.Key),
			row.State.RequestCount,
			escapeMarkdownCell(row.State.WindowStart.Format(time.RFC3339)),
			row.State.BackoffCount,
			escapeMarkdownCell(lastRequest),
		))
	}

	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
