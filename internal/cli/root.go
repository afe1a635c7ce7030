package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"
	"github.com/vietddude/notefetch/internal/control"
	"github.com/vietddude/notefetch/internal/core/config"
)

var (
	cfgPath      string
	isDebug      bool
	notebookName string
)

var rootCmd = &cobra.Command{
	Use:   "notefetch",
	Short: "Notefetch OneNote image retrieval",
	Long:  `Notefetch signs in to the Microsoft identity platform and downloads every image from your OneNote notebooks.`,
	Run:   runFetch,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&notebookName, "notebook", "", "fetch only the notebook with this display name")
}

func runFetch(cmd *cobra.Command, args []string) {
	app := mustInitApp()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer shutdown(app)

	if err := app.Authenticate(ctx); err != nil {
		slog.Error("Authentication failed", "error", err)
		os.Exit(1)
	}

	summary, err := app.Run(ctx)
	if err != nil {
		slog.Error("Run aborted", "error", err)
	}
	if summary != nil {
		fmt.Printf("\nRun %s finished: %d succeeded, %d failed, %d skipped\n",
			summary.RunID, summary.Succeeded, summary.Failed, summary.Skipped)
		for _, cause := range summary.FatalCauses {
			fmt.Printf("  fatal: %s\n", cause)
		}
	}
	if err != nil {
		shutdown(app)
		os.Exit(1)
	}
}

// mustInitApp loads configuration, sets up logging, and builds the app.
func mustInitApp() *control.App {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	if notebookName != "" {
		cfg.Fetch.Notebook = notebookName
	}

	app, err := control.NewApp(*cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	return app
}

func shutdown(app *control.App) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}
