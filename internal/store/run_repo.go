// Package store declares interfaces for persisting run history.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one row of the runs table.
type Run struct {
	// ID is the run identifier shared by every event of the run.
	ID        string
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	Status     RunStatus
	// ErrorKind is the failure taxonomy label, nil on success.
	ErrorKind    *string
	ErrorMessage *string
	// Filename is the stored artifact name on success.
	Filename *string
}

// Completion carries the terminal state of a run.
type Completion struct {
	FinishedAt   time.Time
	Status       RunStatus
	ErrorKind    *string
	ErrorMessage *string
	Filename     *string
}

// RunRepository persists run lifecycle rows.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) the running row.
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	// CompleteRun marks the run finished.
	CompleteRun(ctx context.Context, runID string, c Completion) error
	// GetRun returns ErrNotFound when runID is unknown.
	GetRun(ctx context.Context, runID string) (Run, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
