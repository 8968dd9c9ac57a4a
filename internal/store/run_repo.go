package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the runs.status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunStopped RunStatus = "stopped"
	RunError   RunStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunDone, RunStopped, RunError:
		return true
	default:
		return false
	}
}

// RunProgress is the counter state written on every update.
type RunProgress struct {
	Completed int64
	Failed    int64
	Pass      int
	At        time.Time
}

// RunRecord models one row of the runs table.
type RunRecord struct {
	ID        uuid.UUID
	Region    string
	Status    RunStatus
	Total     int64
	Completed int64
	Failed    int64
	Pass      int
	StartedAt time.Time
	UpdatedAt time.Time
	// FinishedAt is nil while the run is still running.
	FinishedAt *time.Time
	// ErrorMessage is set only for RunError.
	ErrorMessage *string
}

// RunRepository persists aggregate counters for scheduling runs. Individual
// cells are never stored.
type RunRepository interface {
	// StartRun inserts a running row. Starting an existing run is a no-op.
	StartRun(ctx context.Context, id uuid.UUID, region string, total int64, startedAt time.Time) error
	// UpdateProgress overwrites the counters of a running run.
	UpdateProgress(ctx context.Context, id uuid.UUID, p RunProgress) error
	// FinishRun records the final counters and terminal status.
	FinishRun(ctx context.Context, id uuid.UUID, status RunStatus, p RunProgress, errMsg *string) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (RunRecord, error)
	// ListRuns returns runs newest first, optionally filtered by status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]RunRecord, error)
}
