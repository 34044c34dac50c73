package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stevedore/stevedore/internal/core"
)

// SaveIngestionRun records one completed run summary, including per-file
// outcomes as JSON. Implements the orchestrator's RunStore.
func (s *Store) SaveIngestionRun(ctx context.Context, run *core.IngestionRun) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if run == nil || strings.TrimSpace(run.ID) == "" {
		return errors.New("run with id is required")
	}

	var files sql.NullString
	if len(run.Files) > 0 {
		raw, err := json.Marshal(run.Files)
		if err != nil {
			return fmt.Errorf("encode run files: %w", err)
		}
		files = sql.NullString{String: string(raw), Valid: true}
	}

	dryRun := 0
	if run.DryRun {
		dryRun = 1
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO ingest_runs (id, root, backend_id, total, uploaded, failed, skipped, success_rate, duration_ms, dry_run, started_at, files)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total = excluded.total,
			uploaded = excluded.uploaded,
			failed = excluded.failed,
			skipped = excluded.skipped,
			success_rate = excluded.success_rate,
			duration_ms = excluded.duration_ms,
			files = excluded.files
	`, run.ID, run.Root, run.BackendID, run.Total, run.Uploaded, run.Failed, run.Skipped,
		run.SuccessRate, run.Duration.Milliseconds(), dryRun, run.StartedAt.UTC().Unix(), files)
	if err != nil {
		return fmt.Errorf("store ingestion run: %w", err)
	}
	return nil
}

// GetIngestionRun fetches one run by ID. Returns nil when not found.
func (s *Store) GetIngestionRun(ctx context.Context, id string) (*core.IngestionRun, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, root, backend_id, total, uploaded, failed, skipped, success_rate, duration_ms, dry_run, started_at, files
		FROM ingest_runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch ingestion run: %w", err)
	}
	return run, nil
}

// ListIngestionRuns returns run summaries, newest first, without per-file
// detail. A non-positive limit returns all.
func (s *Store) ListIngestionRuns(ctx context.Context, limit int) ([]*core.IngestionRun, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `
		SELECT id, root, backend_id, total, uploaded, failed, skipped, success_rate, duration_ms, dry_run, started_at, NULL
		FROM ingest_runs
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ingestion runs: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	runs := []*core.IngestionRun{}
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan ingestion runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ingestion runs: %w", err)
	}
	return runs, nil
}

func scanRun(scan func(...any) error) (*core.IngestionRun, error) {
	var (
		run        core.IngestionRun
		durationMs int64
		dryRun     int
		startedAt  int64
		files      sql.NullString
	)
	if err := scan(&run.ID, &run.Root, &run.BackendID, &run.Total, &run.Uploaded, &run.Failed,
		&run.Skipped, &run.SuccessRate, &durationMs, &dryRun, &startedAt, &files); err != nil {
		return nil, err
	}

	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.DryRun = dryRun != 0
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	if files.Valid && files.String != "" {
		if err := json.Unmarshal([]byte(files.String), &run.Files); err != nil {
			return nil, fmt.Errorf("decode run files: %w", err)
		}
	}
	return &run, nil
}
