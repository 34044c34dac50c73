package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/stevedore/stevedore/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatHealth renders probe results as a table.
func (f *TableFormatter) FormatHealth(results []core.HealthCheckResult) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Backend", "Type", "Status", "Response", "Success", "Notes"})

	for _, r := range results {
		t.AppendRow(table.Row{
			r.Backend.ID,
			string(r.Backend.Type),
			statusLabel(r.Health.Status),
			r.Health.ResponseTime.Round(time.Millisecond).String(),
			fmt.Sprintf("%.1f%%", r.Health.SuccessRate),
			healthNotes(r),
		})
	}

	return t.Render(), nil
}

// FormatTrends renders trend reports as a table.
func (f *TableFormatter) FormatTrends(trends []core.HealthTrend) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Backend", "Direction", "Change Rate", "Window", "Data Points"})

	for _, trend := range trends {
		t.AppendRow(table.Row{
			trend.BackendID,
			string(trend.Direction),
			fmt.Sprintf("%.3f", trend.ChangeRate),
			trend.Window.String(),
			trend.DataPoints,
		})
	}

	return t.Render(), nil
}

// FormatRun renders an ingestion run as a per-file table with a summary footer.
func (f *TableFormatter) FormatRun(run *core.IngestionRun) (string, error) {
	if run == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"File", "Size", "Outcome", "Message"})

	for _, file := range run.Files {
		t.AppendRow(table.Row{
			file.Name,
			formatBytes(file.Size),
			string(file.Outcome),
			file.Message,
		})
	}

	if run.Total > 0 {
		t.AppendFooter(table.Row{
			"",
			"",
			fmt.Sprintf("%.1f%% success", run.SuccessRate),
			formatOutcomeCounts(run),
		})
	}

	return t.Render(), nil
}

// FormatRuns renders run summaries as a table, one row per run.
func (f *TableFormatter) FormatRuns(runs []*core.IngestionRun) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Run", "Backend", "Started", "Total", "Outcome", "Success", "Duration"})

	for _, run := range runs {
		if run == nil {
			continue
		}
		id := run.ID
		if run.DryRun {
			id += " (dry-run)"
		}
		t.AppendRow(table.Row{
			id,
			run.BackendID,
			run.StartedAt.Format(time.RFC3339),
			run.Total,
			formatOutcomeCounts(run),
			fmt.Sprintf("%.1f%%", run.SuccessRate),
			run.Duration.Round(time.Millisecond).String(),
		})
	}

	return t.Render(), nil
}

// FormatRateLimits renders journaled limiter entries as a table.
func (f *TableFormatter) FormatRateLimits(rows []RateLimitRow) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Requests", "Window Start", "Backoff Count", "Last Request"})

	for _, row := range rows {
		lastRequest := ""
		if row.State.LastRequestAt != nil {
			lastRequest = row.State.LastRequestAt.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			row.Key,
			row.State.RequestCount,
			row.State.WindowStart.Format(time.RFC3339),
			row.State.BackoffCount,
			lastRequest,
		})
	}

	return t.Render(), nil
}
