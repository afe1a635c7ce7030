package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// TaskRepo implements storage.TaskRepository using PostgreSQL.
type TaskRepo struct {
	db *DB
}

// NewTaskRepo creates a new PostgreSQL task repository.
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

type taskRow struct {
	ID         string       `db:"id"`
	RunID      string       `db:"run_id"`
	PageID     string       `db:"page_id"`
	PageTitle  string       `db:"page_title"`
	SourceURL  string       `db:"source_url"`
	TargetPath string       `db:"target_path"`
	Status     string       `db:"status"`
	Error      string       `db:"error"`
	CreatedAt  time.Time    `db:"created_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
}

func (r taskRow) toDomain() *domain.DownloadTask {
	task := &domain.DownloadTask{
		ID:         r.ID,
		RunID:      r.RunID,
		PageID:     r.PageID,
		PageTitle:  r.PageTitle,
		SourceURL:  r.SourceURL,
		TargetPath: r.TargetPath,
		Status:     domain.TaskStatus(r.Status),
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
	}
	if r.FinishedAt.Valid {
		task.FinishedAt = r.FinishedAt.Time
	}
	return task
}

// Save saves a task.
func (r *TaskRepo) Save(ctx context.Context, task *domain.DownloadTask) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO download_tasks
			(id, run_id, page_id, page_title, source_url, target_path, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, error = EXCLUDED.error`,
		task.ID, task.RunID, task.PageID, task.PageTitle, task.SourceURL,
		task.TargetPath, string(task.Status), task.Error, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// SaveBatch saves multiple tasks in one transaction.
func (r *TaskRepo) SaveBatch(ctx context.Context, tasks []*domain.DownloadTask) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, task := range tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO download_tasks
				(id, run_id, page_id, page_title, source_url, target_path, status, error, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
			task.ID, task.RunID, task.PageID, task.PageTitle, task.SourceURL,
			task.TargetPath, string(task.Status), task.Error, task.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save task batch: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateStatus updates a task's status and error message.
func (r *TaskRepo) UpdateStatus(ctx context.Context, taskID string, status domain.TaskStatus, errorMsg string) error {
	var finishedAt sql.NullTime
	if status == domain.TaskStatusSucceeded || status == domain.TaskStatusFailed {
		finishedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE download_tasks
		SET status = $2, error = $3, finished_at = $4
		WHERE id = $1`,
		taskID, string(status), errorMsg, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// GetByRun retrieves all tasks belonging to a run.
func (r *TaskRepo) GetByRun(ctx context.Context, runID string) ([]*domain.DownloadTask, error) {
	var rows []taskRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, run_id, page_id, page_title, source_url, target_path,
		       status, error, created_at, finished_at
		FROM download_tasks WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	tasks := make([]*domain.DownloadTask, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toDomain())
	}
	return tasks, nil
}

// CountByStatus returns task counts per status for a run.
func (r *TaskRepo) CountByStatus(ctx context.Context, runID string) (map[domain.TaskStatus]int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT status, COUNT(*) FROM download_tasks
		WHERE run_id = $1 GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[domain.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}
