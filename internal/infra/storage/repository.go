package storage

import (
	"context"
	"errors"

	"github.com/vietddude/notefetch/internal/core/domain"
)

var (
	// ErrRunNotFound is returned when a run doesn't exist
	ErrRunNotFound = errors.New("run not found")
)

// RunRepository persists the run ledger: one record per batch run.
type RunRepository interface {
	// Create records the start of a run
	Create(ctx context.Context, run *domain.RunSummary) error

	// Finish records the terminal counters of a run
	Finish(ctx context.Context, run *domain.RunSummary) error

	// Get retrieves a run by ID
	Get(ctx context.Context, runID string) (*domain.RunSummary, error)

	// ListRecent retrieves the most recent runs, newest first
	ListRecent(ctx context.Context, limit int) ([]*domain.RunSummary, error)
}

// TaskRepository persists per-image download tasks.
type TaskRepository interface {
	// Save saves a task
	Save(ctx context.Context, task *domain.DownloadTask) error

	// SaveBatch saves multiple tasks
	SaveBatch(ctx context.Context, tasks []*domain.DownloadTask) error

	// UpdateStatus updates a task's status and error message
	UpdateStatus(ctx context.Context, taskID string, status domain.TaskStatus, errorMsg string) error

	// GetByRun retrieves all tasks belonging to a run
	GetByRun(ctx context.Context, runID string) ([]*domain.DownloadTask, error)

	// CountByStatus returns task counts per status for a run
	CountByStatus(ctx context.Context, runID string) (map[domain.TaskStatus]int, error)
}
