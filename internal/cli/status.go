package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vietddude/notefetch/internal/core/config"
	"github.com/vietddude/notefetch/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs from the ledger",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("No database configured; run history is not persisted.")
		return
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	runs, err := postgres.NewRunRepo(db).ListRecent(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tSUCCEEDED\tFAILED\tSKIPPED\tFATAL")

	for _, run := range runs {
		fatal := ""
		if len(run.FatalCauses) > 0 {
			fatal = run.FatalCauses[0]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			run.RunID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Succeeded, run.Failed, run.Skipped, fatal)
	}
	_ = w.Flush()
}
