package config

import "time"

// Default limit values, matching the standard tier the ledger ships with.
const (
	DefaultMonthlyLimit    = 10.0
	DefaultDailyLimit      = 2.0
	DefaultRequestsPerHour = 20

	DefaultPremiumMonthlyLimit    = 50.0
	DefaultPremiumDailyLimit      = 10.0
	DefaultPremiumRequestsPerHour = 100
)

// ApplyDefaults fills in default values for any unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:8390"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/usage.db"
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = 5 * time.Second
	}
	if cfg.Storage.CheckpointInterval == 0 {
		cfg.Storage.CheckpointInterval = 5 * time.Minute
	}

	if cfg.Limits.Default.MonthlyLimit == 0 {
		cfg.Limits.Default.MonthlyLimit = DefaultMonthlyLimit
	}
	if cfg.Limits.Default.DailyLimit == 0 {
		cfg.Limits.Default.DailyLimit = DefaultDailyLimit
	}
	if cfg.Limits.Default.RequestsPerHour == 0 {
		cfg.Limits.Default.RequestsPerHour = DefaultRequestsPerHour
	}
	if cfg.Limits.Premium.MonthlyLimit == 0 {
		cfg.Limits.Premium.MonthlyLimit = DefaultPremiumMonthlyLimit
	}
	if cfg.Limits.Premium.DailyLimit == 0 {
		cfg.Limits.Premium.DailyLimit = DefaultPremiumDailyLimit
	}
	if cfg.Limits.Premium.RequestsPerHour == 0 {
		cfg.Limits.Premium.RequestsPerHour = DefaultPremiumRequestsPerHour
	}
	if cfg.Limits.CheckTimeout == 0 {
		cfg.Limits.CheckTimeout = 5 * time.Second
	}

	if cfg.Market.Timeout == 0 {
		cfg.Market.Timeout = 10 * time.Second
	}

	if cfg.Analysis.Model == "" {
		cfg.Analysis.Model = "llama-3.3-70b-versatile"
	}
	if cfg.Analysis.MaxTokens == 0 {
		cfg.Analysis.MaxTokens = 1024
	}
	if cfg.Analysis.CostPerThousandTokens == 0 {
		cfg.Analysis.CostPerThousandTokens = 0.005
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 30 * time.Second
	}

	if cfg.Bot.Workers == 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.QueueSize == 0 {
		cfg.Bot.QueueSize = 256
	}

	if cfg.Reporting.WindowDays == 0 {
		cfg.Reporting.WindowDays = 30
	}
	if cfg.Reporting.TopN == 0 {
		cfg.Reporting.TopN = 5
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}
}
