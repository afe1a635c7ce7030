package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/graph"
	"github.com/vietddude/notefetch/internal/infra/storage"
	"github.com/vietddude/notefetch/internal/metrics"
	"github.com/vietddude/notefetch/internal/retry"
)

// Downloader executes download tasks on a bounded worker pool. Task failures
// are isolated; an auth expiry aborts the whole pool since no further
// request can succeed.
type Downloader struct {
	client      *graph.Client
	policy      *retry.Policy
	tasks       storage.TaskRepository
	concurrency int
	log         *slog.Logger
}

// NewDownloader creates a downloader running at most concurrency tasks at
// once.
func NewDownloader(client *graph.Client, policy *retry.Policy, tasks storage.TaskRepository, concurrency int) *Downloader {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Downloader{
		client:      client,
		policy:      policy,
		tasks:       tasks,
		concurrency: concurrency,
		log:         slog.Default().With("component", "downloader"),
	}
}

// Run drains the task list and folds outcomes into run. It returns an error
// only when the pool was aborted; per-task failures are reported through the
// summary counters.
func (d *Downloader) Run(ctx context.Context, tasks []*domain.DownloadTask, run *domain.RunSummary) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	var mu sync.Mutex
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if gctx.Err() != nil {
				// Pool already aborted; leave the task pending.
				return nil
			}

			err := d.download(gctx, task)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				run.Succeeded++
				d.setStatus(task, domain.TaskStatusSucceeded, "")
				metrics.DownloadsTotal.WithLabelValues(string(domain.TaskStatusSucceeded)).Inc()

			case errors.Is(err, retry.ErrSkipped):
				run.Skipped++
				d.setStatus(task, domain.TaskStatusFailed, err.Error())
				metrics.DownloadsTotal.WithLabelValues("skipped").Inc()

			case errors.Is(err, domain.ErrAuthExpired):
				// Every remaining task would fail the same way.
				run.Failed++
				d.setStatus(task, domain.TaskStatusFailed, err.Error())
				metrics.DownloadsTotal.WithLabelValues(string(domain.TaskStatusFailed)).Inc()
				return err

			case errors.Is(err, context.Canceled):
				return nil

			default:
				run.Failed++
				d.setStatus(task, domain.TaskStatusFailed, err.Error())
				metrics.DownloadsTotal.WithLabelValues(string(domain.TaskStatusFailed)).Inc()
				d.log.Warn("Download failed",
					"task", task.ID,
					"page", task.PageTitle,
					"error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Downloader) download(ctx context.Context, task *domain.DownloadTask) error {
	d.setStatus(task, domain.TaskStatusInProgress, "")
	return d.policy.Do(ctx, "download_image", task.SourceURL, func(ctx context.Context) error {
		return d.writeFile(ctx, task)
	})
}

// writeFile streams the image to a temp file and renames it into place, so
// a crashed or retried download never leaves a truncated image behind.
func (d *Downloader) writeFile(ctx context.Context, task *domain.DownloadTask) error {
	dir := filepath.Dir(task.TargetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := d.client.DownloadResource(ctx, task.SourceURL, tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), task.TargetPath); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

func (d *Downloader) setStatus(task *domain.DownloadTask, status domain.TaskStatus, errMsg string) {
	task.Status = status
	task.Error = errMsg
	if d.tasks == nil {
		return
	}
	if err := d.tasks.UpdateStatus(context.Background(), task.ID, status, errMsg); err != nil {
		d.log.Warn("Failed to persist task status", "task", task.ID, "error", err)
	}
}
