package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"marketscope/pkg/cli"
	"marketscope/pkg/config"
	"marketscope/pkg/usage"
	"marketscope/pkg/usage/policy"
	"marketscope/pkg/usage/reporting"
	"marketscope/pkg/usage/storage"
)

var limitsSetFlags struct {
	monthly float64
	daily   float64
	hourly  int
}

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Administer per-user limits",
	Long: `Show and change a user's limits directly against the usage store.

Examples:
  marketscope limits show user-123
  marketscope limits set user-123 --monthly 25 --daily 5
  marketscope limits premium user-123
  marketscope limits reset user-123
  marketscope limits reset all`,
}

var limitsShowCmd = &cobra.Command{
	Use:   "show USER",
	Short: "Show a user's limits, provisioning defaults if absent",
	Args:  cobra.ExactArgs(1),
	RunE:  runLimitsShow,
}

var limitsSetCmd = &cobra.Command{
	Use:   "set USER",
	Short: "Update a user's limits (only the given flags change)",
	Args:  cobra.ExactArgs(1),
	RunE:  runLimitsSet,
}

var limitsPremiumCmd = &cobra.Command{
	Use:   "premium USER",
	Short: "Grant a user the premium tier",
	Args:  cobra.ExactArgs(1),
	RunE:  runLimitsPremium,
}

var limitsResetCmd = &cobra.Command{
	Use:   "reset USER|all",
	Short: "Delete a user's events and limits (or the entire ledger)",
	Args:  cobra.ExactArgs(1),
	RunE:  runLimitsReset,
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	limitsCmd.AddCommand(limitsShowCmd)
	limitsCmd.AddCommand(limitsSetCmd)
	limitsCmd.AddCommand(limitsPremiumCmd)
	limitsCmd.AddCommand(limitsResetCmd)

	limitsSetCmd.Flags().Float64Var(&limitsSetFlags.monthly, "monthly", 0, "monthly spend ceiling in USD")
	limitsSetCmd.Flags().Float64Var(&limitsSetFlags.daily, "daily", 0, "daily spend ceiling in USD")
	limitsSetCmd.Flags().IntVar(&limitsSetFlags.hourly, "hourly", 0, "hourly request ceiling")
}

// quietLogger keeps one-shot admin commands from emitting component logs on
// stdout alongside their output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// newPolicy opens the store and builds a limit policy for one-shot admin
// commands.
func newPolicy() (*policy.Policy, storage.Store, func(), error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	p, err := policy.New(policy.Config{
		Store:    store,
		Defaults: defaultPolicyFromConfig(cfg),
		Logger:   quietLogger(),
	})
	if err != nil {
		store.Close() //nolint:errcheck
		return nil, nil, nil, err
	}

	return p, store, func() { store.Close() }, nil //nolint:errcheck
}

func printLimits(limits *usage.UserLimits) {
	tier := "standard"
	if limits.IsPremium {
		tier = "premium"
	}
	fmt.Printf("Limits for %s (%s)\n", limits.UserID, tier)
	fmt.Printf("  Monthly:         $%.2f\n", limits.MonthlyLimit)
	fmt.Printf("  Daily:           $%.2f\n", limits.DailyLimit)
	fmt.Printf("  Hourly requests: %d\n", limits.RequestsPerHour)
	fmt.Printf("  Created:         %s\n", limits.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated:         %s\n", limits.UpdatedAt.Format(time.RFC3339))
}

func runLimitsShow(cmd *cobra.Command, args []string) error {
	p, _, closeStore, err := newPolicy()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	limits, err := p.GetUserLimits(ctx, args[0])
	if err != nil {
		return cli.NewCommandError("limits show", err)
	}
	printLimits(limits)
	return nil
}

func runLimitsSet(cmd *cobra.Command, args []string) error {
	var upd usage.LimitUpdate
	if cmd.Flags().Changed("monthly") {
		if limitsSetFlags.monthly <= 0 {
			return cli.NewConfigError("monthly", "must be positive")
		}
		upd.MonthlyLimit = &limitsSetFlags.monthly
	}
	if cmd.Flags().Changed("daily") {
		if limitsSetFlags.daily <= 0 {
			return cli.NewConfigError("daily", "must be positive")
		}
		upd.DailyLimit = &limitsSetFlags.daily
	}
	if cmd.Flags().Changed("hourly") {
		if limitsSetFlags.hourly <= 0 {
			return cli.NewConfigError("hourly", "must be positive")
		}
		upd.RequestsPerHour = &limitsSetFlags.hourly
	}
	if upd.MonthlyLimit == nil && upd.DailyLimit == nil && upd.RequestsPerHour == nil {
		return cli.NewConfigError("", "at least one of --monthly, --daily, --hourly is required")
	}

	p, _, closeStore, err := newPolicy()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	limits, err := p.UpdateLimits(ctx, args[0], upd)
	if err != nil {
		return cli.NewCommandError("limits set", err)
	}
	printLimits(limits)
	return nil
}

func runLimitsPremium(cmd *cobra.Command, args []string) error {
	p, _, closeStore, err := newPolicy()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	limits, err := p.GrantPremium(ctx, args[0])
	if err != nil {
		return cli.NewCommandError("limits premium", err)
	}
	fmt.Println("Premium tier granted.")
	printLimits(limits)
	return nil
}

func runLimitsReset(cmd *cobra.Command, args []string) error {
	_, store, closeStore, err := newPolicy()
	if err != nil {
		return err
	}
	defer closeStore()

	reporter, err := reporting.New(reporting.Config{Store: store, Logger: quietLogger()})
	if err != nil {
		return cli.NewCommandError("limits reset", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	target := args[0]
	if target == "all" {
		if err := reporter.ResetAll(ctx); err != nil {
			return cli.NewCommandError("limits reset", err)
		}
		fmt.Println("Ledger reset for all users.")
		return nil
	}

	if err := reporter.ResetUser(ctx, target); err != nil {
		return cli.NewCommandError("limits reset", err)
	}
	fmt.Printf("Ledger reset for %s.\n", target)
	return nil
}
