// Package fetch drives a batch run: enumerate notebooks, sections, and
// pages, extract image references, and download them through the retry
// policy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/extract"
	"github.com/vietddude/notefetch/internal/graph"
	"github.com/vietddude/notefetch/internal/infra/storage"
	"github.com/vietddude/notefetch/internal/retry"
)

// Config holds batch run settings.
type Config struct {
	OutputDir   string
	Notebook    string // empty = all notebooks
	Concurrency int
}

// Orchestrator coordinates one batch run end to end. Enumeration is
// sequential; downloads fan out on the downloader's worker pool.
type Orchestrator struct {
	client     *graph.Client
	pages      *retry.Policy
	downloader *Downloader
	runs       storage.RunRepository
	tasks      storage.TaskRepository
	cfg        Config
	log        *slog.Logger
}

// NewOrchestrator wires a run pipeline.
func NewOrchestrator(
	client *graph.Client,
	pagePolicy *retry.Policy,
	downloader *Downloader,
	runs storage.RunRepository,
	tasks storage.TaskRepository,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		client:     client,
		pages:      pagePolicy,
		downloader: downloader,
		runs:       runs,
		tasks:      tasks,
		cfg:        cfg,
		log:        slog.Default().With("component", "orchestrator"),
	}
}

// Run executes one batch run and returns its summary. The summary is always
// returned, even when the run aborted partway.
func (o *Orchestrator) Run(ctx context.Context) (*domain.RunSummary, error) {
	run := &domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	if err := o.runs.Create(ctx, run); err != nil {
		o.log.Warn("Failed to record run start", "run", run.RunID, "error", err)
	}
	o.log.Info("Run started", "run", run.RunID)

	tasks, err := o.plan(ctx, run)
	if err != nil {
		// A failed enumeration means the run cannot proceed.
		run.RecordFatal(err.Error())
		o.finish(ctx, run)
		return run, err
	}
	o.log.Info("Enumeration complete", "run", run.RunID, "tasks", len(tasks))

	if o.tasks != nil {
		if serr := o.tasks.SaveBatch(ctx, tasks); serr != nil {
			o.log.Warn("Failed to persist task batch", "run", run.RunID, "error", serr)
		}
	}

	err = o.downloader.Run(ctx, tasks, run)
	if err != nil {
		run.RecordFatal(err.Error())
	}
	o.finish(ctx, run)
	return run, err
}

// plan walks notebooks, sections, and pages strictly in order and builds the
// download task list. Any unrecovered error here aborts the run.
func (o *Orchestrator) plan(ctx context.Context, run *domain.RunSummary) ([]*domain.DownloadTask, error) {
	var notebooks []domain.Notebook
	err := o.pages.Do(ctx, "list_notebooks", "me/onenote/notebooks", func(ctx context.Context) error {
		var err error
		notebooks, err = o.client.ListNotebooks(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}

	var tasks []*domain.DownloadTask
	for _, nb := range notebooks {
		if o.cfg.Notebook != "" && nb.DisplayName != o.cfg.Notebook {
			continue
		}

		var sections []domain.Section
		err := o.pages.Do(ctx, "list_sections", nb.ID, func(ctx context.Context) error {
			var err error
			sections, err = o.client.ListSections(ctx, nb.ID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list sections of %q: %w", nb.DisplayName, err)
		}

		for _, sec := range sections {
			var pages []domain.Page
			err := o.pages.Do(ctx, "list_pages", sec.ID, func(ctx context.Context) error {
				var err error
				pages, err = o.client.ListPages(ctx, sec.ID)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("list pages of %q: %w", sec.DisplayName, err)
			}

			for _, page := range pages {
				pageTasks, err := o.planPage(ctx, run, nb, sec, page)
				if err != nil {
					return nil, err
				}
				tasks = append(tasks, pageTasks...)
			}
		}
	}
	return tasks, nil
}

// planPage fetches one page's HTML and turns its image references into
// tasks. A page the advisor says to skip is dropped without failing the run.
func (o *Orchestrator) planPage(ctx context.Context, run *domain.RunSummary, nb domain.Notebook, sec domain.Section, page domain.Page) ([]*domain.DownloadTask, error) {
	var content []byte
	err := o.pages.Do(ctx, "page_content", page.ID, func(ctx context.Context) error {
		var err error
		content, err = o.client.PageContent(ctx, page.ID)
		return err
	})
	if errors.Is(err, retry.ErrSkipped) {
		o.log.Info("Page skipped", "page", page.Title)
		run.Skipped++
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("content of page %q: %w", page.Title, err)
	}

	refs, err := extract.Images(content)
	if err != nil {
		return nil, fmt.Errorf("images of page %q: %w", page.Title, err)
	}

	tasks := make([]*domain.DownloadTask, 0, len(refs))
	for i, ref := range refs {
		tasks = append(tasks, &domain.DownloadTask{
			ID:         uuid.NewString(),
			RunID:      run.RunID,
			PageID:     page.ID,
			PageTitle:  page.Title,
			SourceURL:  ref.URL(),
			TargetPath: o.targetPath(nb, sec, page, i, ref),
			Status:     domain.TaskStatusPending,
			CreatedAt:  time.Now(),
		})
	}
	return tasks, nil
}

func (o *Orchestrator) targetPath(nb domain.Notebook, sec domain.Section, page domain.Page, idx int, ref domain.ImageRef) string {
	name := sanitize(page.Title)
	if name == "" {
		name = sanitize(page.ID)
	}
	filename := fmt.Sprintf("%s_%d%s", name, idx+1, extension(ref.ContentType))
	return filepath.Join(o.cfg.OutputDir, sanitize(nb.DisplayName), sanitize(sec.DisplayName), filename)
}

func (o *Orchestrator) finish(ctx context.Context, run *domain.RunSummary) {
	run.FinishedAt = time.Now()
	if err := o.runs.Finish(ctx, run); err != nil {
		o.log.Warn("Failed to record run finish", "run", run.RunID, "error", err)
	}
	o.log.Info("Run finished",
		"run", run.RunID,
		"succeeded", run.Succeeded,
		"failed", run.Failed,
		"skipped", run.Skipped,
		"duration", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
}

// sanitize makes a display name safe to use as a directory or file name.
func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == '-' || r == '_' || r == '.':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		default:
			out = append(out, '_')
		}
	}
	s := string(out)
	if s == "" {
		return "untitled"
	}
	return s
}

// extension maps a content type to a file extension, defaulting to .png
// which is what OneNote serves for ink and screen clippings.
func extension(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ".png"
	}
}
