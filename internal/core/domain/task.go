package domain

import "time"

// TaskStatus is the lifecycle state of a download task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

// DownloadTask is one image download. Created when an image reference is
// discovered, mutated only by the orchestrator, terminal once Succeeded or
// Failed. Retries happen within a task; a Failed task is never re-created.
type DownloadTask struct {
	ID         string
	RunID      string
	PageID     string
	PageTitle  string
	SourceURL  string
	TargetPath string
	Status     TaskStatus
	Error      string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// Terminal reports whether the task has reached a final status.
func (t *DownloadTask) Terminal() bool {
	return t.Status == TaskStatusSucceeded || t.Status == TaskStatusFailed
}

// RunSummary aggregates per-task outcomes for one batch run.
type RunSummary struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Succeeded   int
	Failed      int
	Skipped     int
	FatalCauses []string
}

// RecordFatal appends a fatal cause to the summary.
func (s *RunSummary) RecordFatal(cause string) {
	s.FatalCauses = append(s.FatalCauses, cause)
}

// Total returns the number of tasks accounted for.
func (s *RunSummary) Total() int {
	return s.Succeeded + s.Failed + s.Skipped
}
