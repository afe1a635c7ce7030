package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/infra/storage"
)

// MemoryStorage is the in-memory run ledger, used when no database is
// configured and in tests.
type MemoryStorage struct {
	runs  map[string]*domain.RunSummary
	tasks map[string]*domain.DownloadTask
	mu    sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		runs:  make(map[string]*domain.RunSummary),
		tasks: make(map[string]*domain.DownloadTask),
	}
}

// -----------------------------------------------------------------------------
// Run Repository
// -----------------------------------------------------------------------------

type RunRepo struct {
	store *MemoryStorage
}

func NewRunRepo(store *MemoryStorage) *RunRepo {
	return &RunRepo{store: store}
}

func (r *RunRepo) Create(_ context.Context, run *domain.RunSummary) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *run
	r.store.runs[run.RunID] = &cp
	return nil
}

func (r *RunRepo) Finish(_ context.Context, run *domain.RunSummary) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.runs[run.RunID]; !ok {
		return storage.ErrRunNotFound
	}
	cp := *run
	r.store.runs[run.RunID] = &cp
	return nil
}

func (r *RunRepo) Get(_ context.Context, runID string) (*domain.RunSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	run, ok := r.store.runs[runID]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *RunRepo) ListRecent(_ context.Context, limit int) ([]*domain.RunSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	runs := make([]*domain.RunSummary, 0, len(r.store.runs))
	for _, run := range r.store.runs {
		cp := *run
		runs = append(runs, &cp)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// -----------------------------------------------------------------------------
// Task Repository
// -----------------------------------------------------------------------------

type TaskRepo struct {
	store *MemoryStorage
}

func NewTaskRepo(store *MemoryStorage) *TaskRepo {
	return &TaskRepo{store: store}
}

func (r *TaskRepo) Save(_ context.Context, task *domain.DownloadTask) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *task
	r.store.tasks[task.ID] = &cp
	return nil
}

func (r *TaskRepo) SaveBatch(_ context.Context, tasks []*domain.DownloadTask) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, task := range tasks {
		if _, ok := r.store.tasks[task.ID]; ok {
			continue
		}
		cp := *task
		r.store.tasks[task.ID] = &cp
	}
	return nil
}

func (r *TaskRepo) UpdateStatus(_ context.Context, taskID string, status domain.TaskStatus, errorMsg string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	task, ok := r.store.tasks[taskID]
	if !ok {
		return nil
	}
	task.Status = status
	task.Error = errorMsg
	return nil
}

func (r *TaskRepo) GetByRun(_ context.Context, runID string) ([]*domain.DownloadTask, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var tasks []*domain.DownloadTask
	for _, task := range r.store.tasks {
		if task.RunID != runID {
			continue
		}
		cp := *task
		tasks = append(tasks, &cp)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (r *TaskRepo) CountByStatus(_ context.Context, runID string) (map[domain.TaskStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.TaskStatus]int)
	for _, task := range r.store.tasks {
		if task.RunID == runID {
			counts[task.Status]++
		}
	}
	return counts, nil
}
