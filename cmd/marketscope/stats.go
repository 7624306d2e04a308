package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"marketscope/pkg/cli"
	"marketscope/pkg/config"
	"marketscope/pkg/usage/reporting"
)

var statsFlags struct {
	days   int
	format string
}

var topFlags struct {
	days   int
	limit  int
	format string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show global usage statistics",
	Long: `Show aggregate usage over a trailing window: unique users, request count,
total and average cost.

Examples:
  marketscope stats
  marketscope stats --days 7
  marketscope stats --format json`,
	RunE: runStats,
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the top spenders",
	Long: `Show the highest-spending users over a trailing window, ordered by total
estimated cost.

Examples:
  marketscope top
  marketscope top --days 7 --limit 20`,
	RunE: runTop,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(topCmd)

	statsCmd.Flags().IntVar(&statsFlags.days, "days", 30, "trailing window in days")
	statsCmd.Flags().StringVarP(&statsFlags.format, "format", "f", "text", "output format (text, json)")

	topCmd.Flags().IntVar(&topFlags.days, "days", 30, "trailing window in days")
	topCmd.Flags().IntVar(&topFlags.limit, "limit", 10, "number of users to show")
	topCmd.Flags().StringVarP(&topFlags.format, "format", "f", "text", "output format (text, json)")
}

// newReporter opens the store and builds a reporter for one-shot admin
// commands.
func newReporter() (*reporting.Reporter, func(), error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	reporter, err := reporting.New(reporting.Config{Store: store, Logger: quietLogger()})
	if err != nil {
		store.Close() //nolint:errcheck
		return nil, nil, err
	}

	return reporter, func() { store.Close() }, nil //nolint:errcheck
}

func runStats(cmd *cobra.Command, args []string) error {
	reporter, closeStore, err := newReporter()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	format, err := cli.ParseFormat(statsFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	stats, err := reporter.GetUsageStats(ctx, statsFlags.days)
	if err != nil {
		return cli.NewCommandError("stats", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, stats)
	}

	fmt.Printf("Usage over the last %d days\n", stats.PeriodDays)
	fmt.Printf("  Unique users:         %d\n", stats.UniqueUsers)
	fmt.Printf("  Requests:             %d\n", stats.TotalRequests)
	fmt.Printf("  Total cost:           $%.2f\n", stats.TotalCost)
	fmt.Printf("  Avg cost per request: $%.4f\n", stats.AvgCostPerRequest)
	return nil
}

func runTop(cmd *cobra.Command, args []string) error {
	reporter, closeStore, err := newReporter()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	format, err := cli.ParseFormat(topFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	top, err := reporter.GetTopUsersByUsage(ctx, topFlags.days, topFlags.limit)
	if err != nil {
		return cli.NewCommandError("top", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, top)
	}

	if len(top) == 0 {
		fmt.Println("No usage recorded in the window.")
		return nil
	}
	fmt.Printf("Top spenders over the last %d days\n", topFlags.days)
	for i, entry := range top {
		fmt.Printf("  %2d. %-32s $%.2f\n", i+1, entry.UserID, entry.TotalCost)
	}
	return nil
}
