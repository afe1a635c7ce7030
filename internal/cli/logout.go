package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/notefetch/internal/auth/store"
	"github.com/vietddude/notefetch/internal/core/config"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear cached credentials",
	Run:   runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	var tokenStore store.TokenStore
	switch cfg.Auth.TokenBackend {
	case "redis":
		tokenStore, err = store.NewRedisStore(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
	case "memory":
		fmt.Println("Memory token backend holds nothing between runs.")
		return
	default:
		tokenStore = store.NewFileStore(cfg.Auth.TokenCache)
	}

	if err := tokenStore.Clear(context.Background()); err != nil {
		slog.Error("Failed to clear token cache", "error", err)
		os.Exit(1)
	}
	fmt.Println("Cached credentials cleared. The next run will require sign-in.")
}
