package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stevedore/stevedore/internal/core"
)

// AppendHealthCheck journals one probe outcome. Implements the health
// checker's HistoryStore.
func (s *Store) AppendHealthCheck(ctx context.Context, result core.HealthCheckResult) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errText sql.NullString
	if result.Health.Error != "" {
		errText = sql.NullString{String: result.Health.Error, Valid: true}
	}

	checkedAt := result.Health.LastChecked
	if checkedAt.IsZero() {
		checkedAt = result.Timestamp
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO health_history (backend_id, status, response_time_ms, success_rate, available_capacity, total_capacity, error, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, result.Backend.ID, string(result.Health.Status), result.Health.ResponseTime.Milliseconds(),
		result.Health.SuccessRate, result.Health.AvailableCapacity, result.Health.TotalCapacity,
		errText, checkedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	return nil
}

// ListHealthHistory returns journaled snapshots for a backend since the
// given time, oldest first. A non-positive limit returns all.
func (s *Store) ListHealthHistory(ctx context.Context, backendID string, since time.Time, limit int) ([]core.StorageHealth, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `
		SELECT status, response_time_ms, success_rate, available_capacity, total_capacity, error, checked_at
		FROM health_history
		WHERE backend_id = ? AND checked_at >= ?
		ORDER BY checked_at ASC
	`
	args := []any{backendID, since.UTC().Unix()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list health history: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	history := []core.StorageHealth{}
	for rows.Next() {
		var (
			status     string
			responseMs int64
			health     core.StorageHealth
			available  sql.NullInt64
			total      sql.NullInt64
			errText    sql.NullString
			checkedAt  int64
		)
		if err := rows.Scan(&status, &responseMs, &health.SuccessRate, &available, &total, &errText, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan health history: %w", err)
		}
		health.Status = core.HealthStatus(status)
		health.ResponseTime = time.Duration(responseMs) * time.Millisecond
		health.AvailableCapacity = available.Int64
		health.TotalCapacity = total.Int64
		health.Error = errText.String
		health.LastChecked = time.Unix(checkedAt, 0).UTC()
		history = append(history, health)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list health history: %w", err)
	}
	return history, nil
}

// PruneHealthHistory deletes journal rows older than the cutoff and
// returns the number removed.
func (s *Store) PruneHealthHistory(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM health_history WHERE checked_at < ?`, before.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune health history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune health history: %w", err)
	}
	return affected, nil
}
