// Package state records evaluation history in SQLite.
// It tracks runs and the outcome of every project evaluated within a run.
package state

import (
	"context"
	"time"
)

// RunStatus is the status of an evaluation run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ProjectRunStatus is the outcome of a single project evaluation.
type ProjectRunStatus string

// Project run statuses.
const (
	ProjectRunStatusDone   ProjectRunStatus = "done"
	ProjectRunStatusFailed ProjectRunStatus = "failed"
)

// Run is one invocation of the evaluation scheduler.
type Run struct {
	ID          string
	Environment string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// ProjectRun is the recorded outcome of one project within a run.
type ProjectRun struct {
	RunID      string
	Project    string
	OutputDir  string
	Status     ProjectRunStatus
	StartedAt  time.Time
	DurationMS int64
	Error      string
}

// Store persists evaluation history.
type Store interface {
	CreateRun(ctx context.Context, env string) (*Run, error)
	CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	PruneRuns(ctx context.Context, keep int) error

	RecordProjectRun(ctx context.Context, pr *ProjectRun) error
	GetProjectRuns(ctx context.Context, runID string) ([]*ProjectRun, error)

	Close() error
}
