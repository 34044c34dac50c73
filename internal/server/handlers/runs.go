package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"

	"github.com/stevedore/stevedore/internal/core"
)

const defaultRunListLimit = 50

// RunReader provides read access to journaled ingestion runs.
type RunReader interface {
	GetIngestionRun(ctx context.Context, id string) (*core.IngestionRun, error)
	ListIngestionRuns(ctx context.Context, limit int) ([]*core.IngestionRun, error)
}

var runReader RunReader

// SetRunReader injects the run journal used by the storage API.
func SetRunReader(reader RunReader) {
	runReader = reader
}

// RunsHandler lists recent ingestion runs, newest first. The page size
// defaults to 50 and can be overridden with ?limit=.
func RunsHandler(w http.ResponseWriter, r *http.Request) {
	if runReader == nil {
		respondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "run journal not initialized"))
		return
	}

	limit := defaultRunListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, r, errors.NewErrorEnvelope("INVALID_INPUT", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	runs, err := runReader.ListIngestionRuns(r.Context(), limit)
	if err != nil {
		respondWithError(w, r, errors.NewErrorEnvelope("DATABASE_ERROR", "failed to list ingestion runs"))
		return
	}
	if runs == nil {
		runs = []*core.IngestionRun{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(runs)
}

// RunHandler returns one ingestion run with its per-file detail.
func RunHandler(w http.ResponseWriter, r *http.Request) {
	if runReader == nil {
		respondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "run journal not initialized"))
		return
	}

	id := chi.URLParam(r, "id")
	run, err := runReader.GetIngestionRun(r.Context(), id)
	if err != nil {
		respondWithError(w, r, errors.NewErrorEnvelope("DATABASE_ERROR", "failed to load ingestion run"))
		return
	}
	if run == nil {
		respondWithError(w, r, errors.NewErrorEnvelope("NOT_FOUND", "unknown run: "+id))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(run)
}
