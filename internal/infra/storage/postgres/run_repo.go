package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/infra/storage"
)

// RunRepo implements storage.RunRepository using PostgreSQL.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new PostgreSQL run repository.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

type runRow struct {
	RunID       string         `db:"run_id"`
	StartedAt   time.Time      `db:"started_at"`
	FinishedAt  sql.NullTime   `db:"finished_at"`
	Succeeded   int            `db:"succeeded"`
	Failed      int            `db:"failed"`
	Skipped     int            `db:"skipped"`
	FatalCauses pq.StringArray `db:"fatal_causes"`
}

func (r runRow) toDomain() *domain.RunSummary {
	run := &domain.RunSummary{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		Skipped:     r.Skipped,
		FatalCauses: []string(r.FatalCauses),
	}
	if r.FinishedAt.Valid {
		run.FinishedAt = r.FinishedAt.Time
	}
	return run
}

// Create records the start of a run.
func (r *RunRepo) Create(ctx context.Context, run *domain.RunSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, succeeded, failed, skipped, fatal_causes)
		VALUES ($1, $2, 0, 0, 0, '{}')`,
		run.RunID, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Finish records the terminal counters of a run.
func (r *RunRepo) Finish(ctx context.Context, run *domain.RunSummary) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = $2, succeeded = $3, failed = $4, skipped = $5, fatal_causes = $6
		WHERE run_id = $1`,
		run.RunID, run.FinishedAt, run.Succeeded, run.Failed, run.Skipped,
		pq.StringArray(run.FatalCauses))
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return storage.ErrRunNotFound
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepo) Get(ctx context.Context, runID string) (*domain.RunSummary, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, started_at, finished_at, succeeded, failed, skipped, fatal_causes
		FROM runs WHERE run_id = $1`, runID)
	if err == sql.ErrNoRows {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return row.toDomain(), nil
}

// ListRecent retrieves the most recent runs, newest first.
func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT run_id, started_at, finished_at, succeeded, failed, skipped, fatal_causes
		FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs := make([]*domain.RunSummary, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toDomain())
	}
	return runs, nil
}
