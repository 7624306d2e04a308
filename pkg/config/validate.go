package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values the process cannot start
// with. It is called after defaults are applied, so only genuinely broken
// configuration (negative limits, unknown backends) fails here.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Storage.Backend != "sqlite" && cfg.Storage.Backend != "memory" {
		errs = append(errs, fmt.Sprintf("storage.backend: unknown backend %q (want sqlite or memory)", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.Path == "" {
		errs = append(errs, "storage.path: required for the sqlite backend")
	}

	if err := validateTier("limits.default", cfg.Limits.Default); err != "" {
		errs = append(errs, err)
	}
	if err := validateTier("limits.premium", cfg.Limits.Premium); err != "" {
		errs = append(errs, err)
	}
	if cfg.Limits.CheckTimeout <= 0 {
		errs = append(errs, "limits.check_timeout: must be positive")
	}
	if cfg.Limits.CacheTTL < 0 {
		errs = append(errs, "limits.cache_ttl: must not be negative")
	}

	if cfg.Analysis.CostPerThousandTokens < 0 {
		errs = append(errs, "analysis.cost_per_thousand_tokens: must not be negative")
	}
	if cfg.Analysis.MaxTokens < 0 {
		errs = append(errs, "analysis.max_tokens: must not be negative")
	}

	if cfg.Bot.Workers <= 0 {
		errs = append(errs, "bot.workers: must be positive")
	}
	if cfg.Bot.QueueSize <= 0 {
		errs = append(errs, "bot.queue_size: must be positive")
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.logging.level: unknown level %q", cfg.Telemetry.Logging.Level))
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.logging.format: unknown format %q", cfg.Telemetry.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateTier(section string, tier TierConfig) string {
	if tier.MonthlyLimit <= 0 {
		return fmt.Sprintf("%s.monthly_limit: must be positive, got %v", section, tier.MonthlyLimit)
	}
	if tier.DailyLimit <= 0 {
		return fmt.Sprintf("%s.daily_limit: must be positive, got %v", section, tier.DailyLimit)
	}
	if tier.RequestsPerHour <= 0 {
		return fmt.Sprintf("%s.requests_per_hour: must be positive, got %d", section, tier.RequestsPerHour)
	}
	return ""
}
