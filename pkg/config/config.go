// Package config loads and validates the marketscope configuration.
//
// Configuration comes from a YAML file, with defaults applied for anything
// unset and MARKETSCOPE_SECTION_FIELD environment variables taking
// precedence over the file. The loaded Config is a plain value passed by
// reference into components at startup; there is no ambient global
// configuration state.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Limits    LimitsConfig    `yaml:"limits"`
	Market    MarketConfig    `yaml:"market"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Bot       BotConfig       `yaml:"bot"`
	Reporting ReportingConfig `yaml:"reporting"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// ListenAddress is the host:port to bind.
	ListenAddress string `yaml:"listen_address"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StorageConfig configures the usage store.
type StorageConfig struct {
	// Backend selects the store implementation ("sqlite" or "memory").
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path.
	Path string `yaml:"path"`

	BusyTimeout        time.Duration `yaml:"busy_timeout"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// TierConfig is one tier's limit values.
type TierConfig struct {
	// MonthlyLimit is the monthly spend ceiling in USD.
	MonthlyLimit float64 `yaml:"monthly_limit"`

	// DailyLimit is the daily spend ceiling in USD.
	DailyLimit float64 `yaml:"daily_limit"`

	// RequestsPerHour is the hourly request ceiling.
	RequestsPerHour int `yaml:"requests_per_hour"`
}

// LimitsConfig configures the default limit policy.
type LimitsConfig struct {
	// Default is the standard tier applied to first-time users.
	Default TierConfig `yaml:"default"`

	// Premium is the tier applied by an administrative premium grant.
	Premium TierConfig `yaml:"premium"`

	// CheckTimeout bounds each ledger call against the store.
	CheckTimeout time.Duration `yaml:"check_timeout"`

	// CacheTTL bounds limit-row cache staleness. Zero (the default)
	// disables caching.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// MarketConfig configures the market data clients.
type MarketConfig struct {
	// EquitiesBaseURL is the quote/series API endpoint.
	EquitiesBaseURL string `yaml:"equities_base_url"`

	// EquitiesAPIKey authenticates against the equities API.
	EquitiesAPIKey string `yaml:"equities_api_key"`

	// CryptoBaseURL is the cryptocurrency price API endpoint.
	CryptoBaseURL string `yaml:"crypto_base_url"`

	// Timeout bounds each market data request.
	Timeout time.Duration `yaml:"timeout"`
}

// AnalysisConfig configures the LLM analysis client.
type AnalysisConfig struct {
	// BaseURL is an OpenAI-compatible chat completions endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the endpoint.
	APIKey string `yaml:"api_key"`

	// Model names the completion model to request.
	Model string `yaml:"model"`

	// MaxTokens caps the completion length.
	MaxTokens int `yaml:"max_tokens"`

	// CostPerThousandTokens converts token usage into estimated cost (USD).
	// Captured into each usage event at write time.
	CostPerThousandTokens float64 `yaml:"cost_per_thousand_tokens"`

	// Timeout bounds each analysis request.
	Timeout time.Duration `yaml:"timeout"`
}

// BotConfig configures the chat command handler.
type BotConfig struct {
	// Workers is the size of the interaction worker pool. Ledger and
	// provider I/O runs on these workers, never on the intake loop.
	Workers int `yaml:"workers"`

	// QueueSize is the interaction queue capacity.
	QueueSize int `yaml:"queue_size"`

	// AdminUserIDs lists users allowed to run administrative commands.
	AdminUserIDs []string `yaml:"admin_user_ids"`
}

// ReportingConfig configures scheduled usage reports.
type ReportingConfig struct {
	// StatsSchedule is a cron expression; empty disables the report job.
	StatsSchedule string `yaml:"stats_schedule"`

	// WindowDays is the trailing report window.
	WindowDays int `yaml:"window_days"`

	// TopN is how many top spenders each report includes.
	TopN int `yaml:"top_n"`
}

// TelemetryConfig configures logging and metrics.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the handler format ("json" or "text").
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
