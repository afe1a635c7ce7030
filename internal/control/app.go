// Package control wires the application together and manages its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/notefetch/internal/advisor"
	"github.com/vietddude/notefetch/internal/auth"
	"github.com/vietddude/notefetch/internal/auth/store"
	"github.com/vietddude/notefetch/internal/callback"
	"github.com/vietddude/notefetch/internal/core/config"
	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/fetch"
	"github.com/vietddude/notefetch/internal/graph"
	"github.com/vietddude/notefetch/internal/infra/storage"
	"github.com/vietddude/notefetch/internal/infra/storage/memory"
	"github.com/vietddude/notefetch/internal/infra/storage/postgres"
	"github.com/vietddude/notefetch/internal/retry"
)

// App is the main application struct that manages the fetch pipeline
// lifecycle.
type App struct {
	cfg        config.AppConfig
	manager    *auth.Manager
	client     *graph.Client
	listener   *callback.Server
	orch       *fetch.Orchestrator
	runs       storage.RunRepository
	tokenStore store.TokenStore
	db         *postgres.DB
	log        *slog.Logger
}

// NewApp creates a new App instance with all dependencies initialized.
func NewApp(cfg config.AppConfig) (*App, error) {
	// 1. Token store
	var tokenStore store.TokenStore
	switch cfg.Auth.TokenBackend {
	case "redis":
		rs, err := store.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis token store: %w", err)
		}
		tokenStore = rs
		slog.Info("Using Redis token store")
	case "memory":
		tokenStore = store.NewMemoryStore()
		slog.Info("Using in-memory token store")
	default:
		tokenStore = store.NewFileStore(cfg.Auth.TokenCache)
		slog.Info("Using file token store", "path", cfg.Auth.TokenCache)
	}

	// 2. Run ledger
	var runRepo storage.RunRepository
	var taskRepo storage.TaskRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		runRepo = postgres.NewRunRepo(db)
		taskRepo = postgres.NewTaskRepo(db)
		slog.Info("Using PostgreSQL run ledger")
	} else {
		mem := memory.NewMemoryStorage()
		runRepo = memory.NewRunRepo(mem)
		taskRepo = memory.NewTaskRepo(mem)
		slog.Info("Using in-memory run ledger")
	}

	// 3. Token manager
	manager := auth.NewManager(auth.Config{
		ClientID:        cfg.Auth.ClientID,
		ClientSecret:    cfg.Auth.ClientSecret,
		TenantID:        cfg.Auth.TenantID,
		RedirectURI:     cfg.Auth.RedirectURI,
		Scopes:          cfg.Auth.Scopes,
		ExpiryMargin:    cfg.Auth.ExpiryMargin,
		RedirectTimeout: cfg.Auth.RedirectTimeout,
	}, tokenStore)

	// 4. Graph client, authenticated through the manager
	client := graph.NewClient(cfg.Graph.BaseURL, cfg.Graph.Timeout, manager)

	// 5. Diagnostic advisor
	var adv advisor.Advisor = advisor.Noop{}
	if cfg.Advisor.Enabled && cfg.Advisor.APIKey != "" {
		adv = advisor.NewOpenAI(advisor.OpenAIConfig{
			APIKey:  cfg.Advisor.APIKey,
			BaseURL: cfg.Advisor.BaseURL,
			Model:   cfg.Advisor.Model,
			Timeout: cfg.Advisor.Timeout,
		})
		slog.Info("Diagnostic advisor enabled", "model", cfg.Advisor.Model)
	}

	// 6. Retry policies. The refresh hook forces a token refresh through the
	// manager; single-flight semantics live there.
	refresh := func(ctx context.Context) error {
		manager.Invalidate()
		_, err := manager.Token(ctx)
		return err
	}
	pagePolicy := retry.New(toBudget(cfg.Fetch.PageBudget), adv, refresh)
	imagePolicy := retry.New(toBudget(cfg.Fetch.ImageBudget), adv, refresh)

	// 7. Pipeline
	downloader := fetch.NewDownloader(client, imagePolicy, taskRepo, cfg.Fetch.Concurrency)
	orch := fetch.NewOrchestrator(client, pagePolicy, downloader, runRepo, taskRepo, fetch.Config{
		OutputDir:   cfg.Fetch.OutputDir,
		Notebook:    cfg.Fetch.Notebook,
		Concurrency: cfg.Fetch.Concurrency,
	})

	// 8. Redirect listener; also serves /healthz and /metrics
	listener := callback.NewServer(cfg.Server.Port, callbackPath(cfg.Auth.RedirectURI))

	return &App{
		cfg:        cfg,
		manager:    manager,
		client:     client,
		listener:   listener,
		orch:       orch,
		runs:       runRepo,
		tokenStore: tokenStore,
		db:         db,
		log:        slog.Default().With("component", "app"),
	}, nil
}

// Start brings up the redirect listener.
func (a *App) Start(_ context.Context) error {
	go func() {
		if err := a.listener.Start(); err != nil {
			a.log.Error("Callback listener failed", "error", err)
		}
	}()
	a.log.Info("Callback listener started", "port", a.cfg.Server.Port)
	return nil
}

// Authenticate ensures the app holds a usable credential. A cached token is
// reused silently; otherwise the interactive authorization flow runs and the
// user must visit the printed URL.
func (a *App) Authenticate(ctx context.Context) error {
	if err := a.manager.Load(ctx); err == nil {
		a.log.Info("Reusing cached credentials")
		return nil
	}

	authURL, _, err := a.manager.StartAuthorization()
	if err != nil {
		return fmt.Errorf("start authorization: %w", err)
	}

	// The URL itself is for the user, not the log.
	fmt.Printf("\nOpen this URL in your browser to sign in:\n\n  %s\n\n", authURL)
	a.log.Info("Waiting for authorization redirect", "timeout", a.cfg.Auth.RedirectTimeout)

	res, err := a.listener.WaitForCode(ctx, a.cfg.Auth.RedirectTimeout)
	if err != nil {
		return err
	}

	if _, err := a.manager.CompleteAuthorization(ctx, res.Code, res.State); err != nil {
		return err
	}
	if err := a.manager.Persist(ctx); err != nil {
		a.log.Warn("Failed to persist token cache", "error", err)
	}
	a.log.Info("Authentication complete")
	return nil
}

// Run executes one batch run.
func (a *App) Run(ctx context.Context) (*domain.RunSummary, error) {
	summary, err := a.orch.Run(ctx)

	// Refreshes during the run may have rotated the refresh token.
	if perr := a.manager.Persist(context.Background()); perr != nil {
		a.log.Warn("Failed to persist token cache", "error", perr)
	}
	return summary, err
}

// RecentRuns lists the most recent ledger entries, newest first.
func (a *App) RecentRuns(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	return a.runs.ListRecent(ctx, limit)
}

// Stop shuts the app down.
func (a *App) Stop(ctx context.Context) error {
	if err := a.listener.Stop(ctx); err != nil {
		a.log.Warn("Callback listener shutdown failed", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}
	if closer, ok := a.tokenStore.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func toBudget(b config.BudgetConfig) retry.Budget {
	return retry.Budget{
		MaxAttempts:    b.MaxAttempts,
		BaseBackoff:    b.BaseBackoff,
		JitterFraction: b.JitterFraction,
	}
}

// callbackPath extracts the path component of the registered redirect URI so
// the listener serves the exact route the provider will hit.
func callbackPath(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Path == "" {
		return "/callback"
	}
	return u.Path
}
