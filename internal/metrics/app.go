package metrics

import (
	"time"

	"github.com/stevedore/stevedore/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Ingestion metrics
	UploadsTotal       = "app_uploads_total"
	UploadDuration     = "app_upload_duration_ms"
	IngestionRunsTotal = "app_ingestion_runs_total"

	// Backend health metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Rate limiting metrics
	RateLimitDecisionsTotal = "app_rate_limit_decisions_total"

	// Concurrency gate metrics
	GateInFlight = "app_gate_in_flight"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordUpload records a single file upload outcome against a backend
func RecordUpload(backendID string, outcome string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			UploadsTotal,
			1,
			map[string]string{
				"backend": backendID,
				"outcome": outcome,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			UploadDuration,
			duration,
			map[string]string{
				"backend": backendID,
			},
		)
	}
}

// RecordIngestionRun records a completed bulk ingestion run
func RecordIngestionRun(backendID string, dryRun bool) {
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			IngestionRunsTotal,
			1,
			map[string]string{
				"backend": backendID,
				"mode":    mode,
			},
		)
	}
}

// RecordHealthCheck records a backend health probe execution
func RecordHealthCheck(backendID string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"backend": backendID,
				"status":  status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"backend": backendID,
			},
		)
	}
}

// RecordRateLimitDecision records an allow/deny decision for a key
func RecordRateLimitDecision(key string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitDecisionsTotal,
			1,
			map[string]string{
				"key":      key,
				"decision": decision,
			},
		)
	}
}

// SetGateInFlight sets the current number of in-flight gate holders
func SetGateInFlight(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			GateInFlight,
			float64(count),
			nil,
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
