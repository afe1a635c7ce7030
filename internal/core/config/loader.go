package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Auth.ClientID == "" {
		return nil, fmt.Errorf("auth.client_id is required")
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Auth.RedirectURI == "" {
		cfg.Auth.RedirectURI = fmt.Sprintf("http://localhost:%d/callback", cfg.Server.Port)
	}
	if len(cfg.Auth.Scopes) == 0 {
		cfg.Auth.Scopes = []string{"Notes.Read", "Notes.Read.All", "offline_access"}
	}
	if cfg.Auth.TokenBackend == "" {
		cfg.Auth.TokenBackend = "file"
	}
	if cfg.Auth.TokenCache == "" {
		cfg.Auth.TokenCache = "token_cache.json"
	}
	if cfg.Auth.RedirectTimeout == 0 {
		cfg.Auth.RedirectTimeout = 5 * time.Minute
	}
	if cfg.Auth.ExpiryMargin == 0 {
		cfg.Auth.ExpiryMargin = 60 * time.Second
	}
	if cfg.Graph.BaseURL == "" {
		cfg.Graph.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if cfg.Graph.Timeout == 0 {
		cfg.Graph.Timeout = 30 * time.Second
	}
	if cfg.Fetch.OutputDir == "" {
		cfg.Fetch.OutputDir = "downloaded_images"
	}
	if cfg.Fetch.Concurrency == 0 {
		cfg.Fetch.Concurrency = 4
	}
	applyBudgetDefaults(&cfg.Fetch.PageBudget, 5, 1*time.Second)
	applyBudgetDefaults(&cfg.Fetch.ImageBudget, 3, 500*time.Millisecond)
	if cfg.Advisor.Model == "" {
		cfg.Advisor.Model = "gpt-4o-mini"
	}
	if cfg.Advisor.BaseURL == "" {
		cfg.Advisor.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Advisor.Timeout == 0 {
		cfg.Advisor.Timeout = 20 * time.Second
	}
}

func applyBudgetDefaults(b *BudgetConfig, attempts int, backoff time.Duration) {
	if b.MaxAttempts == 0 {
		b.MaxAttempts = attempts
	}
	if b.BaseBackoff == 0 {
		b.BaseBackoff = backoff
	}
	if b.JitterFraction == 0 {
		b.JitterFraction = 0.2
	}
}
