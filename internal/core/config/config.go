package config

import (
	"time"

	"github.com/vietddude/notefetch/internal/auth/store"
	"github.com/vietddude/notefetch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Auth     AuthConfig        `yaml:"auth"`
	Graph    GraphConfig       `yaml:"graph"`
	Fetch    FetchConfig       `yaml:"fetch"`
	Advisor  AdvisorConfig     `yaml:"advisor"`
	Redis    store.RedisConfig `yaml:"redis"`
	Database postgres.Config   `yaml:"database"`
	Logging  LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds settings for the local callback listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// AuthConfig holds OAuth2 client settings for the Microsoft identity platform.
type AuthConfig struct {
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	TenantID        string        `yaml:"tenant_id"`
	RedirectURI     string        `yaml:"redirect_uri"`
	Scopes          []string      `yaml:"scopes"`
	TokenBackend    string        `yaml:"token_backend"`    // file, memory, redis
	TokenCache      string        `yaml:"token_cache"`      // file path for the file backend
	RedirectTimeout time.Duration `yaml:"redirect_timeout"` // AwaitingRedirect -> Unauthenticated
	ExpiryMargin    time.Duration `yaml:"expiry_margin"`    // refresh this far ahead of expiry
}

// GraphConfig holds Microsoft Graph API settings.
type GraphConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// FetchConfig holds batch run settings.
type FetchConfig struct {
	OutputDir   string       `yaml:"output_dir"`
	Notebook    string       `yaml:"notebook"` // empty = all notebooks
	Concurrency int          `yaml:"concurrency"`
	PageBudget  BudgetConfig `yaml:"page_budget"`
	ImageBudget BudgetConfig `yaml:"image_budget"`
}

// BudgetConfig holds retry budget settings for one operation class.
type BudgetConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	JitterFraction float64       `yaml:"jitter_fraction"`
}

// AdvisorConfig holds diagnostic advisor settings.
type AdvisorConfig struct {
	Enabled bool          `yaml:"enabled"`
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}
