package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/infra/storage"
)

func TestRunRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(NewMemoryStorage())

	run := &domain.RunSummary{RunID: "run-1", StartedAt: time.Now()}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	run.Succeeded = 4
	run.Failed = 1
	run.FinishedAt = time.Now()
	if err := repo.Finish(ctx, run); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	got, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Succeeded != 4 || got.Failed != 1 {
		t.Errorf("counters = %d/%d, want 4/1", got.Succeeded, got.Failed)
	}
}

func TestRunRepo_NotFound(t *testing.T) {
	repo := NewRunRepo(NewMemoryStorage())

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrRunNotFound) {
		t.Errorf("Get = %v, want ErrRunNotFound", err)
	}
	if err := repo.Finish(context.Background(), &domain.RunSummary{RunID: "missing"}); !errors.Is(err, storage.ErrRunNotFound) {
		t.Errorf("Finish = %v, want ErrRunNotFound", err)
	}
}

func TestRunRepo_ListRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(NewMemoryStorage())

	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		run := &domain.RunSummary{RunID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	runs, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "new" || runs[1].RunID != "mid" {
		t.Errorf("runs = %v, want [new mid]", runs)
	}
}

func TestTaskRepo_StatusCounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewTaskRepo(store)

	tasks := []*domain.DownloadTask{
		{ID: "t1", RunID: "run-1", Status: domain.TaskStatusPending, CreatedAt: time.Now()},
		{ID: "t2", RunID: "run-1", Status: domain.TaskStatusPending, CreatedAt: time.Now()},
		{ID: "t3", RunID: "run-2", Status: domain.TaskStatusPending, CreatedAt: time.Now()},
	}
	if err := repo.SaveBatch(ctx, tasks); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}

	if err := repo.UpdateStatus(ctx, "t1", domain.TaskStatusSucceeded, ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := repo.UpdateStatus(ctx, "t2", domain.TaskStatusFailed, "http 404"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	counts, err := repo.CountByStatus(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[domain.TaskStatusSucceeded] != 1 || counts[domain.TaskStatusFailed] != 1 {
		t.Errorf("counts = %v, want 1 succeeded, 1 failed", counts)
	}

	byRun, err := repo.GetByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(byRun) != 2 {
		t.Errorf("tasks in run-1 = %d, want 2", len(byRun))
	}
}
