package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: memory\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:8390" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Limits.Default.MonthlyLimit != 10.0 || cfg.Limits.Default.DailyLimit != 2.0 || cfg.Limits.Default.RequestsPerHour != 20 {
		t.Errorf("default tier = %+v", cfg.Limits.Default)
	}
	if cfg.Limits.Premium.MonthlyLimit != 50.0 || cfg.Limits.Premium.DailyLimit != 10.0 || cfg.Limits.Premium.RequestsPerHour != 100 {
		t.Errorf("premium tier = %+v", cfg.Limits.Premium)
	}
	if cfg.Bot.Workers != 8 || cfg.Bot.QueueSize != 256 {
		t.Errorf("bot defaults = %+v", cfg.Bot)
	}
	if cfg.Telemetry.Logging.Level != "info" || cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Telemetry.Logging)
	}
	if cfg.Analysis.CostPerThousandTokens != 0.005 {
		t.Errorf("cost per 1k tokens = %v", cfg.Analysis.CostPerThousandTokens)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: 0.0.0.0:9000
storage:
  backend: sqlite
  path: /var/lib/marketscope/usage.db
limits:
  default:
    monthly_limit: 20
    daily_limit: 4
    requests_per_hour: 40
  cache_ttl: 30s
bot:
  admin_user_ids: ["admin-1", "admin-2"]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Storage.Path != "/var/lib/marketscope/usage.db" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Limits.Default.MonthlyLimit != 20 || cfg.Limits.Default.RequestsPerHour != 40 {
		t.Errorf("default tier = %+v", cfg.Limits.Default)
	}
	if cfg.Limits.CacheTTL != 30*time.Second {
		t.Errorf("cache ttl = %v", cfg.Limits.CacheTTL)
	}
	if len(cfg.Bot.AdminUserIDs) != 2 || cfg.Bot.AdminUserIDs[0] != "admin-1" {
		t.Errorf("admin ids = %v", cfg.Bot.AdminUserIDs)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := writeConfig(t, "storage: [not a map\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantErr: "storage.backend",
		},
		{
			name:    "negative monthly limit",
			mutate:  func(c *Config) { c.Limits.Default.MonthlyLimit = -5 },
			wantErr: "limits.default.monthly_limit",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Bot.Workers = -1 },
			wantErr: "bot.workers",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Telemetry.Logging.Level = "trace" },
			wantErr: "telemetry.logging.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Telemetry.Logging.Format = "logfmt" },
			wantErr: "telemetry.logging.format",
		},
		{
			name:    "negative cache ttl",
			mutate:  func(c *Config) { c.Limits.CacheTTL = -time.Second },
			wantErr: "limits.cache_ttl",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			ApplyDefaults(&cfg)
			tc.mutate(&cfg)

			err := Validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q missing %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Storage.Backend = "postgres"
	cfg.Bot.Workers = -1

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"storage.backend", "bot.workers"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: memory\n")

	t.Setenv("MARKETSCOPE_SERVER_LISTEN_ADDRESS", "0.0.0.0:7777")
	t.Setenv("MARKETSCOPE_LIMITS_MONTHLY_LIMIT", "42.5")
	t.Setenv("MARKETSCOPE_BOT_ADMIN_USER_IDS", "a,b,c")
	t.Setenv("MARKETSCOPE_TELEMETRY_LOGGING_LEVEL", "debug")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7777" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Limits.Default.MonthlyLimit != 42.5 {
		t.Errorf("monthly limit = %v", cfg.Limits.Default.MonthlyLimit)
	}
	if len(cfg.Bot.AdminUserIDs) != 3 {
		t.Errorf("admin ids = %v", cfg.Bot.AdminUserIDs)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Telemetry.Logging.Level)
	}
}

func TestEnvOverrideFailingValidationRejected(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: memory\n")
	t.Setenv("MARKETSCOPE_STORAGE_BACKEND", "postgres")

	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Fatal("expected validation failure from env override")
	}
}
