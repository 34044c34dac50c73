package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stevedore/stevedore/internal/core"
)

// GetRateLimit returns stored rate limit state for a key.
func (s *Store) GetRateLimit(ctx context.Context, key string) (*core.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("key is required")
	}

	var (
		requestCount  int
		windowStart   int64
		backoffCount  int
		lastRequestAt sql.NullInt64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT request_count, window_start, backoff_count, last_request_at
		FROM rate_limits
		WHERE key = ?
	`, key)

	if err := row.Scan(&requestCount, &windowStart, &backoffCount, &lastRequestAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	state := &core.RateLimitState{
		RequestCount: requestCount,
		WindowStart:  time.Unix(windowStart, 0).UTC(),
		BackoffCount: backoffCount,
	}

	if lastRequestAt.Valid {
		value := time.Unix(lastRequestAt.Int64, 0).UTC()
		state.LastRequestAt = &value
	}

	return state, nil
}

// UpdateRateLimit persists rate limit state for a key.
func (s *Store) UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	var lastRequestAt sql.NullInt64
	if state.LastRequestAt != nil {
		lastRequestAt = sql.NullInt64{Int64: state.LastRequestAt.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (key, request_count, window_start, backoff_count, last_request_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			backoff_count = excluded.backoff_count,
			last_request_at = excluded.last_request_at
	`, key, state.RequestCount, state.WindowStart.UTC().Unix(), state.BackoffCount, lastRequestAt)
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}

// DeleteRateLimit removes stored state for a key. Missing keys are not an
// error.
func (s *Store) DeleteRateLimit(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key is required")
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM rate_limits WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete rate limit: %w", err)
	}
	return nil
}
