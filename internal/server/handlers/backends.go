package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"

	"github.com/stevedore/stevedore/internal/core"
	"github.com/stevedore/stevedore/internal/core/health"
)

// healthChecker is injected by the serve command before the server starts.
var healthChecker *health.Checker

// SetHealthChecker injects the backend health checker used by the storage API.
func SetHealthChecker(checker *health.Checker) {
	healthChecker = checker
}

// BackendsHealthResponse is the aggregate backend health payload.
type BackendsHealthResponse struct {
	Results []core.HealthCheckResult   `json:"results"`
	Stats   core.AggregatedHealthStats `json:"stats"`
}

// BackendsHealthHandler probes every registered backend and returns the
// settled results alongside a cross-backend rollup.
func BackendsHealthHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		respondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health checker not initialized"))
		return
	}

	results := healthChecker.CheckAll(r.Context())

	response := BackendsHealthResponse{
		Results: results,
		Stats:   healthChecker.Aggregated(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// BackendTrendsHandler reports the health trend for one backend. The analysis
// window defaults to one hour and can be overridden with ?window=30m.
func BackendTrendsHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		respondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health checker not initialized"))
		return
	}

	backendID := chi.URLParam(r, "id")

	window := health.DefaultTrendWindow
	if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, r, errors.NewErrorEnvelope("INVALID_INPUT", "window must be a positive duration"))
			return
		}
		window = parsed
	}

	trend := healthChecker.Trend(backendID, window)
	if trend.Direction == core.TrendUnknown {
		respondWithError(w, r, errors.NewErrorEnvelope("NOT_FOUND", "unknown backend: "+backendID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(trend)
}
