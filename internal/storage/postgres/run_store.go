package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/cse-daily-fetcher/internal/store"
)

// StartRun inserts the running row for runID.
func (l *Ledger) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;
	`, l.runs)
	if _, err := l.pool.Exec(ctx, query, runID, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with its terminal status.
func (l *Ledger) CompleteRun(ctx context.Context, runID string, c store.Completion) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, status = $2, error_kind = $3, error_message = $4, filename = $5
		WHERE id = $6;
	`, l.runs)
	res, err := l.pool.Exec(ctx, query, c.FinishedAt, string(c.Status), c.ErrorKind, c.ErrorMessage, c.Filename, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (l *Ledger) GetRun(ctx context.Context, runID string) (store.Run, error) {
	query := fmt.Sprintf(`
		SELECT id, started_at, finished_at, status, error_kind, error_message, filename
		FROM %s
		WHERE id = $1;
	`, l.runs)
	run, err := scanRun(l.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
		SELECT id, started_at, finished_at, status, error_kind, error_message, filename
		FROM %s
		ORDER BY started_at DESC
		LIMIT $1;
	`, l.runs)
	rows, err := l.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ErrorKind,
		&run.ErrorMessage,
		&run.Filename,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}

var _ store.RunRepository = (*Ledger)(nil)
