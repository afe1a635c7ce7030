package control

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/notefetch/internal/core/config"
	"github.com/vietddude/notefetch/internal/retry"
)

func testConfig() config.AppConfig {
	return config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Auth: config.AuthConfig{
			ClientID:        "client-id",
			RedirectURI:     "http://localhost:5000/callback",
			TokenBackend:    "memory",
			RedirectTimeout: time.Minute,
			ExpiryMargin:    time.Minute,
		},
		Graph: config.GraphConfig{
			BaseURL: "https://graph.microsoft.com/v1.0",
			Timeout: 5 * time.Second,
		},
		Fetch: config.FetchConfig{
			OutputDir:   "out",
			Concurrency: 2,
			PageBudget:  config.BudgetConfig{MaxAttempts: 2, BaseBackoff: time.Millisecond},
			ImageBudget: config.BudgetConfig{MaxAttempts: 2, BaseBackoff: time.Millisecond},
		},
	}
}

func TestNewApp_MemoryBackends(t *testing.T) {
	app, err := NewApp(testConfig())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()

	// No runs yet in a fresh ledger.
	runs, err := app.RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %d, want 0", len(runs))
	}
}

func TestCallbackPath(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"http://localhost:5000/callback", "/callback"},
		{"http://localhost:8080/oauth/redirect", "/oauth/redirect"},
		{"", "/callback"},
		{"not a url at all\x7f", "/callback"},
	}
	for _, tt := range tests {
		if got := callbackPath(tt.uri); got != tt.want {
			t.Errorf("callbackPath(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestToBudget(t *testing.T) {
	b := toBudget(config.BudgetConfig{MaxAttempts: 7, BaseBackoff: 2 * time.Second, JitterFraction: 0.3})
	want := retry.Budget{MaxAttempts: 7, BaseBackoff: 2 * time.Second, JitterFraction: 0.3}
	if b != want {
		t.Errorf("toBudget = %+v, want %+v", b, want)
	}
}
