package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"marketscope/pkg/analysis"
	"marketscope/pkg/bot"
	"marketscope/pkg/cli"
	"marketscope/pkg/config"
	"marketscope/pkg/marketdata"
	"marketscope/pkg/server"
	"marketscope/pkg/telemetry/logging"
	"marketscope/pkg/usage"
	"marketscope/pkg/usage/ledger"
	"marketscope/pkg/usage/policy"
	"marketscope/pkg/usage/reporting"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the marketscope server, bot workers and report scheduler",
	Long: `Start marketscope with the specified configuration.

The process serves the HTTP reporting API, runs the bot worker pool, and
logs scheduled usage reports. Limit-policy changes in the config file are
applied at runtime without a restart.

Examples:
  # Start with default config
  marketscope run

  # Start with custom config
  marketscope run --config /etc/marketscope/config.yaml

  # Override listen address
  marketscope run --listen 0.0.0.0:8390

  # Validate config without starting
  marketscope run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Marketscope v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	store, err := openStore(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer store.Close()
	fmt.Printf("✓ Usage store initialized (%s)\n", cfg.Storage.Backend)

	metrics := usage.NewMetrics()

	limitPolicy, err := policy.New(policy.Config{
		Store:    store,
		Defaults: defaultPolicyFromConfig(cfg),
		CacheTTL: cfg.Limits.CacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return cli.NewConfigError("limits", err.Error())
	}

	usageLedger, err := ledger.New(ledger.Config{
		Store:   store,
		Policy:  limitPolicy,
		Timeout: cfg.Limits.CheckTimeout,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	reporter, err := reporting.New(reporting.Config{Store: store, Logger: logger})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if cfg.Market.EquitiesBaseURL == "" {
		return cli.NewConfigError("market.equities_base_url", "required to serve analysis commands")
	}
	if cfg.Analysis.BaseURL == "" {
		return cli.NewConfigError("analysis.base_url", "required to serve analysis commands")
	}

	equities, err := marketdata.NewClient(marketdata.ClientConfig{
		BaseURL: cfg.Market.EquitiesBaseURL,
		APIKey:  cfg.Market.EquitiesAPIKey,
		Timeout: cfg.Market.Timeout,
	})
	if err != nil {
		return cli.NewConfigError("market", err.Error())
	}

	var crypto bot.CryptoData
	if cfg.Market.CryptoBaseURL != "" {
		cryptoClient, err := marketdata.NewCryptoClient(marketdata.CryptoClientConfig{
			BaseURL: cfg.Market.CryptoBaseURL,
			Timeout: cfg.Market.Timeout,
		})
		if err != nil {
			return cli.NewConfigError("market.crypto_base_url", err.Error())
		}
		crypto = cryptoClient
	}

	analyzer, err := analysis.NewClient(analysis.ClientConfig{
		BaseURL:               cfg.Analysis.BaseURL,
		APIKey:                cfg.Analysis.APIKey,
		Model:                 cfg.Analysis.Model,
		MaxTokens:             cfg.Analysis.MaxTokens,
		CostPerThousandTokens: cfg.Analysis.CostPerThousandTokens,
		Timeout:               cfg.Analysis.Timeout,
	})
	if err != nil {
		return cli.NewConfigError("analysis", err.Error())
	}

	handler, err := bot.NewHandler(bot.HandlerConfig{
		Ledger:       usageLedger,
		Policy:       limitPolicy,
		Reporter:     reporter,
		Equities:     equities,
		Crypto:       crypto,
		Analyzer:     analyzer,
		AdminUserIDs: cfg.Bot.AdminUserIDs,
		Logger:       logger,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	dispatcher, err := bot.NewDispatcher(bot.DispatcherConfig{
		Handler:   handler,
		Workers:   cfg.Bot.Workers,
		QueueSize: cfg.Bot.QueueSize,
		Logger:    logger,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	dispatcher.Start()
	defer dispatcher.Stop()
	fmt.Printf("✓ Bot workers started (%d workers)\n", cfg.Bot.Workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := reporting.NewScheduler(reporter, reporting.SchedulerConfig{
		Schedule:   cfg.Reporting.StatsSchedule,
		WindowDays: cfg.Reporting.WindowDays,
		TopN:       cfg.Reporting.TopN,
	})
	if err := scheduler.Start(ctx); err != nil {
		return cli.NewConfigError("reporting.stats_schedule", err.Error())
	}
	defer scheduler.Stop()

	srv, err := server.New(cfg.Server, cfg.Telemetry.Metrics, reporter, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// Hot reload: only the default limit policy is applied at runtime.
	watcher, err := config.NewWatcher(cfgFile)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			err := watcher.Watch(ctx, func(next *config.Config) {
				if err := limitPolicy.SetDefaults(defaultPolicyFromConfig(next)); err != nil {
					slog.Error("rejected reloaded limit policy", "error", err)
				}
			})
			if err != nil {
				slog.Error("config watcher stopped", "error", err)
			}
		}()
	}

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}

// defaultPolicyFromConfig maps the config tiers onto the ledger's default
// policy value.
func defaultPolicyFromConfig(cfg *config.Config) usage.DefaultPolicy {
	return usage.DefaultPolicy{
		Standard: usage.TierLimits{
			MonthlyLimit:    cfg.Limits.Default.MonthlyLimit,
			DailyLimit:      cfg.Limits.Default.DailyLimit,
			RequestsPerHour: cfg.Limits.Default.RequestsPerHour,
		},
		Premium: usage.TierLimits{
			MonthlyLimit:    cfg.Limits.Premium.MonthlyLimit,
			DailyLimit:      cfg.Limits.Premium.DailyLimit,
			RequestsPerHour: cfg.Limits.Premium.RequestsPerHour,
		},
	}
}
