package core

import "time"

// BackendType identifies the kind of storage backend.
type BackendType string

const (
	BackendTypeLocalFS BackendType = "localfs"
	BackendTypeS3      BackendType = "s3"
)

// HealthStatus represents the operability bucket for a backend.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// BackendInfo identifies a configured storage backend.
type BackendInfo struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Type BackendType `json:"type"`
}

// StorageHealth is a point-in-time health snapshot reported by a backend probe.
type StorageHealth struct {
	Status            HealthStatus  `json:"status"`
	ResponseTime      time.Duration `json:"response_time"`
	SuccessRate       float64       `json:"success_rate"`
	AvailableCapacity int64         `json:"available_capacity"`
	TotalCapacity     int64         `json:"total_capacity"`
	LastChecked       time.Time     `json:"last_checked"`
	Error             string        `json:"error,omitempty"`
}

// HealthCheckResult couples a backend identity with one probe outcome.
type HealthCheckResult struct {
	Backend   BackendInfo   `json:"backend"`
	Health    StorageHealth `json:"health"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthMetric accumulates probe outcomes for one backend.
//
// History is bounded: once it reaches the retention cap the oldest entry is
// evicted before the next append. Averages are recomputed from the retained
// window, totals keep counting forever.
type HealthMetric struct {
	Backend          BackendInfo     `json:"backend"`
	Latest           StorageHealth   `json:"latest"`
	History          []StorageHealth `json:"history"`
	TotalChecks      int64           `json:"total_checks"`
	SuccessfulChecks int64           `json:"successful_checks"`
	AvgResponseTime  time.Duration   `json:"avg_response_time"`
	AvgSuccessRate   float64         `json:"avg_success_rate"`
}

// AggregatedHealthStats is a cross-backend rollup of the latest snapshots.
type AggregatedHealthStats struct {
	TotalBackends     int           `json:"total_backends"`
	HealthyCount      int           `json:"healthy_count"`
	DegradedCount     int           `json:"degraded_count"`
	UnhealthyCount    int           `json:"unhealthy_count"`
	AvgResponseTime   time.Duration `json:"avg_response_time"`
	AvgSuccessRate    float64       `json:"avg_success_rate"`
	AvailableCapacity int64         `json:"available_capacity"`
	TotalCapacity     int64         `json:"total_capacity"`
}

// TrendDirection classifies the direction of a backend's health series.
type TrendDirection string

const (
	TrendImproving        TrendDirection = "improving"
	TrendStable           TrendDirection = "stable"
	TrendDegrading        TrendDirection = "degrading"
	TrendInsufficientData TrendDirection = "insufficient_data"
	TrendUnknown          TrendDirection = "unknown"
)

// HealthTrend reports direction and rate of change for one backend over a
// time window, derived from least-squares slopes of the response-time and
// success-rate series.
type HealthTrend struct {
	BackendID  string         `json:"backend_id"`
	Direction  TrendDirection `json:"direction"`
	ChangeRate float64        `json:"change_rate"`
	Window     time.Duration  `json:"window"`
	DataPoints int            `json:"data_points"`
}

// FileOutcome classifies the result of one file in a bulk ingestion run.
type FileOutcome string

const (
	FileUploaded FileOutcome = "uploaded"
	FileSkipped  FileOutcome = "skipped"
	FileFailed   FileOutcome = "failed"
)

// FileResult reports the outcome for a single enumerated file.
type FileResult struct {
	Path     string        `json:"path"`
	Name     string        `json:"name"`
	Size     int64         `json:"size"`
	Outcome  FileOutcome   `json:"outcome"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// IngestionRun aggregates the outcome of one bulk upload orchestration.
type IngestionRun struct {
	ID          string        `json:"id"`
	Root        string        `json:"root"`
	BackendID   string        `json:"backend_id"`
	Total       int           `json:"total"`
	Uploaded    int           `json:"uploaded"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	SuccessRate float64       `json:"success_rate"`
	Duration    time.Duration `json:"duration"`
	DryRun      bool          `json:"dry_run"`
	StartedAt   time.Time     `json:"started_at"`
	Files       []FileResult  `json:"files,omitempty"`
}

// Document is the downstream record created after a successful upload.
type Document struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	BackendID   string            `json:"backend_id"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UploadedAt  time.Time         `json:"uploaded_at"`
}
