package output

import (
	"encoding/json"

	"github.com/stevedore/stevedore/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// FormatHealth renders probe results as JSON.
func (f *JSONFormatter) FormatHealth(results []core.HealthCheckResult) (string, error) {
	return f.marshal(results)
}

// FormatTrends renders trend reports as JSON.
func (f *JSONFormatter) FormatTrends(trends []core.HealthTrend) (string, error) {
	return f.marshal(trends)
}

// FormatRun renders an ingestion run as JSON.
func (f *JSONFormatter) FormatRun(run *core.IngestionRun) (string, error) {
	if run == nil {
		return "", nil
	}
	return f.marshal(run)
}

// FormatRuns renders run summaries as JSON.
func (f *JSONFormatter) FormatRuns(runs []*core.IngestionRun) (string, error) {
	if runs == nil {
		runs = []*core.IngestionRun{}
	}
	return f.marshal(runs)
}

// FormatRateLimits renders journaled limiter entries as JSON.
func (f *JSONFormatter) FormatRateLimits(rows []RateLimitRow) (string, error) {
	return f.marshal(rows)
}
