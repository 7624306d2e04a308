package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables follow the convention
// MARKETSCOPE_SECTION_FIELD (e.g. MARKETSCOPE_SERVER_LISTEN_ADDRESS) and
// always take precedence over file values.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies MARKETSCOPE_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("MARKETSCOPE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}

	if val := os.Getenv("MARKETSCOPE_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("MARKETSCOPE_STORAGE_PATH"); val != "" {
		cfg.Storage.Path = val
	}

	if val := os.Getenv("MARKETSCOPE_LIMITS_MONTHLY_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Limits.Default.MonthlyLimit = f
		}
	}
	if val := os.Getenv("MARKETSCOPE_LIMITS_DAILY_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Limits.Default.DailyLimit = f
		}
	}
	if val := os.Getenv("MARKETSCOPE_LIMITS_REQUESTS_PER_HOUR"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Limits.Default.RequestsPerHour = i
		}
	}
	if val := os.Getenv("MARKETSCOPE_LIMITS_CHECK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Limits.CheckTimeout = d
		}
	}
	if val := os.Getenv("MARKETSCOPE_LIMITS_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Limits.CacheTTL = d
		}
	}

	if val := os.Getenv("MARKETSCOPE_MARKET_EQUITIES_BASE_URL"); val != "" {
		cfg.Market.EquitiesBaseURL = val
	}
	if val := os.Getenv("MARKETSCOPE_MARKET_EQUITIES_API_KEY"); val != "" {
		cfg.Market.EquitiesAPIKey = val
	}
	if val := os.Getenv("MARKETSCOPE_MARKET_CRYPTO_BASE_URL"); val != "" {
		cfg.Market.CryptoBaseURL = val
	}

	if val := os.Getenv("MARKETSCOPE_ANALYSIS_BASE_URL"); val != "" {
		cfg.Analysis.BaseURL = val
	}
	if val := os.Getenv("MARKETSCOPE_ANALYSIS_API_KEY"); val != "" {
		cfg.Analysis.APIKey = val
	}
	if val := os.Getenv("MARKETSCOPE_ANALYSIS_MODEL"); val != "" {
		cfg.Analysis.Model = val
	}
	if val := os.Getenv("MARKETSCOPE_ANALYSIS_COST_PER_THOUSAND_TOKENS"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Analysis.CostPerThousandTokens = f
		}
	}

	if val := os.Getenv("MARKETSCOPE_BOT_WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Bot.Workers = i
		}
	}
	if val := os.Getenv("MARKETSCOPE_BOT_ADMIN_USER_IDS"); val != "" {
		cfg.Bot.AdminUserIDs = strings.Split(val, ",")
	}

	if val := os.Getenv("MARKETSCOPE_REPORTING_STATS_SCHEDULE"); val != "" {
		cfg.Reporting.StatsSchedule = val
	}

	if val := os.Getenv("MARKETSCOPE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("MARKETSCOPE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("MARKETSCOPE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
}
