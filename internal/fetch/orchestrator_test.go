package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/graph"
	"github.com/vietddude/notefetch/internal/infra/storage/memory"
	"github.com/vietddude/notefetch/internal/retry"
)

// fakeTokens is a TokenSource whose refresh can be made to fail, simulating
// a revoked refresh token mid-run.
type fakeTokens struct {
	mu      sync.Mutex
	gen     int
	revoked bool
}

func (f *fakeTokens) Token(_ context.Context) (*domain.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked && f.gen > 0 {
		return nil, domain.ErrAuthExpired
	}
	return &domain.TokenSet{
		AccessToken: fmt.Sprintf("token-%d", f.gen),
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
}

// fakeGraph serves a one-notebook, one-section, one-page OneNote tree with
// three images. Image behavior is scripted per test.
type fakeGraph struct {
	srv      *httptest.Server
	imgFunc  func(id string, calls int, w http.ResponseWriter)
	mu       sync.Mutex
	imgCalls map[string]int
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()
	f := &fakeGraph{imgCalls: make(map[string]int)}
	mux := http.NewServeMux()

	mux.HandleFunc("/me/onenote/notebooks", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"nb1","displayName":"Class Notes"}]}`)
	})
	mux.HandleFunc("/me/onenote/notebooks/nb1/sections", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"s1","displayName":"Week 1"}]}`)
	})
	mux.HandleFunc("/me/onenote/sections/s1/pages", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"p1","title":"Lecture"}]}`)
	})
	mux.HandleFunc("/me/onenote/pages/p1/content", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<img src="%[1]s/img/1" data-fullres-src="%[1]s/img/1" data-fullres-src-type="image/png">
			<img src="%[1]s/img/2">
			<img src="%[1]s/img/3">
		</body></html>`, f.srv.URL)
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		id := filepath.Base(r.URL.Path)
		f.mu.Lock()
		f.imgCalls[id]++
		calls := f.imgCalls[id]
		f.mu.Unlock()
		f.imgFunc(id, calls, w)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGraph) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imgCalls[id]
}

func serveImage(w http.ResponseWriter, id string) {
	w.Header().Set("Content-Type", "image/png")
	fmt.Fprintf(w, "image-bytes-%s", id)
}

func newTestOrchestrator(t *testing.T, fg *fakeGraph, tokens graph.TokenSource) (*Orchestrator, string) {
	t.Helper()
	outDir := t.TempDir()

	client := graph.NewClient(fg.srv.URL, 5*time.Second, tokens)
	budget := retry.Budget{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	pagePolicy := retry.New(budget, nil, nil)
	imgPolicy := retry.New(budget, nil, nil)

	store := memory.NewMemoryStorage()
	tasks := memory.NewTaskRepo(store)
	dl := NewDownloader(client, imgPolicy, tasks, 2)

	o := NewOrchestrator(client, pagePolicy, dl, memory.NewRunRepo(store), tasks, Config{
		OutputDir:   outDir,
		Concurrency: 2,
	})
	return o, outDir
}

func TestRun_DownloadsAllImages(t *testing.T) {
	fg := newFakeGraph(t)
	fg.imgFunc = func(id string, _ int, w http.ResponseWriter) {
		serveImage(w, id)
	}

	o, outDir := newTestOrchestrator(t, fg, &fakeTokens{})
	run, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Succeeded != 3 || run.Failed != 0 || run.Skipped != 0 {
		t.Errorf("summary = %d/%d/%d, want 3/0/0", run.Succeeded, run.Failed, run.Skipped)
	}

	// Files land under sanitized notebook/section directories.
	dir := filepath.Join(outDir, "Class_Notes", "Week_1")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	if len(entries) != 3 {
		t.Fatalf("files = %d, want 3", len(entries))
	}
	// First image had a full-res content type; it keeps the .png extension.
	data, err := os.ReadFile(filepath.Join(dir, "Lecture_1.png"))
	if err != nil {
		t.Fatalf("reading image: %v", err)
	}
	if string(data) != "image-bytes-1" {
		t.Errorf("image content = %q", data)
	}
}

func TestRun_RateLimitedImageEventuallySucceeds(t *testing.T) {
	fg := newFakeGraph(t)
	fg.imgFunc = func(id string, calls int, w http.ResponseWriter) {
		if id == "2" && calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		serveImage(w, id)
	}

	o, _ := newTestOrchestrator(t, fg, &fakeTokens{})
	run, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Succeeded != 3 || run.Failed != 0 {
		t.Errorf("summary = %d/%d, want 3 succeeded", run.Succeeded, run.Failed)
	}
	if got := fg.calls("2"); got != 2 {
		t.Errorf("image 2 requests = %d, want 2 (one rate-limited, one retry)", got)
	}
}

func TestRun_FatalImageFailsAloneSiblingsSucceed(t *testing.T) {
	fg := newFakeGraph(t)
	fg.imgFunc = func(id string, _ int, w http.ResponseWriter) {
		if id == "2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		serveImage(w, id)
	}

	o, outDir := newTestOrchestrator(t, fg, &fakeTokens{})
	run, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Succeeded != 2 || run.Failed != 1 {
		t.Errorf("summary = %d/%d, want 2 succeeded, 1 failed", run.Succeeded, run.Failed)
	}
	// A fatal status is never retried.
	if got := fg.calls("2"); got != 1 {
		t.Errorf("image 2 requests = %d, want 1", got)
	}

	dir := filepath.Join(outDir, "Class_Notes", "Week_1")
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("files = %d, want 2 (the failed image leaves no partial file)", len(entries))
	}
}

func TestRun_RevokedRefreshAbortsRun(t *testing.T) {
	fg := newFakeGraph(t)
	fg.imgFunc = func(_ string, _ int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
	}

	o, _ := newTestOrchestrator(t, fg, &fakeTokens{revoked: true})
	run, err := o.Run(context.Background())
	if !errors.Is(err, domain.ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
	if len(run.FatalCauses) == 0 {
		t.Error("run should record a fatal cause")
	}
	if run.Succeeded != 0 {
		t.Errorf("succeeded = %d, want 0", run.Succeeded)
	}
}

func TestRun_EnumerationFailureAbortsBeforeDownloads(t *testing.T) {
	fg := newFakeGraph(t)
	var imgRequests int
	fg.imgFunc = func(id string, _ int, w http.ResponseWriter) {
		imgRequests++
		serveImage(w, id)
	}

	tokens := &fakeTokens{}
	client := graph.NewClient(fg.srv.URL+"/missing-prefix", 5*time.Second, tokens)
	budget := retry.Budget{MaxAttempts: 2, BaseBackoff: time.Millisecond}
	store := memory.NewMemoryStorage()
	dl := NewDownloader(client, retry.New(budget, nil, nil), memory.NewTaskRepo(store), 2)
	o := NewOrchestrator(client, retry.New(budget, nil, nil), dl,
		memory.NewRunRepo(store), memory.NewTaskRepo(store), Config{OutputDir: t.TempDir()})

	run, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("Run should fail when notebooks cannot be listed")
	}
	if len(run.FatalCauses) == 0 {
		t.Error("run should record a fatal cause")
	}
	if imgRequests != 0 {
		t.Errorf("image requests = %d, want 0 (no downloads after failed enumeration)", imgRequests)
	}
}

func TestRun_NotebookFilter(t *testing.T) {
	fg := newFakeGraph(t)
	fg.imgFunc = func(id string, _ int, w http.ResponseWriter) {
		serveImage(w, id)
	}

	o, _ := newTestOrchestrator(t, fg, &fakeTokens{})
	o.cfg.Notebook = "Some Other Notebook"

	run, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Total() != 0 {
		t.Errorf("total = %d, want 0 when no notebook matches the filter", run.Total())
	}
}

func TestRun_SummaryPersisted(t *testing.T) {
	fg := newFakeGraph(t)
	fg.imgFunc = func(id string, _ int, w http.ResponseWriter) {
		serveImage(w, id)
	}

	store := memory.NewMemoryStorage()
	runs := memory.NewRunRepo(store)
	tasks := memory.NewTaskRepo(store)
	client := graph.NewClient(fg.srv.URL, 5*time.Second, &fakeTokens{})
	budget := retry.Budget{MaxAttempts: 2, BaseBackoff: time.Millisecond}
	dl := NewDownloader(client, retry.New(budget, nil, nil), tasks, 2)
	o := NewOrchestrator(client, retry.New(budget, nil, nil), dl, runs, tasks,
		Config{OutputDir: t.TempDir()})

	run, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stored, err := runs.Get(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if stored.Succeeded != 3 || stored.FinishedAt.IsZero() {
		t.Errorf("stored run = %+v, want 3 succeeded with finish time", stored)
	}

	counts, err := tasks.CountByStatus(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[domain.TaskStatusSucceeded] != 3 {
		t.Errorf("task counts = %v, want 3 succeeded", counts)
	}
}
