package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler logs a global usage report on a cron schedule.
// It gives operators a periodic spend summary without any dashboard access.
type Scheduler struct {
	reporter   *Reporter
	schedule   string
	windowDays int
	topN       int
	cron       *cron.Cron
	mu         sync.Mutex
	logger     *slog.Logger
	running    bool
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Schedule is a standard cron expression ("0 * * * *" for hourly).
	// Empty disables the scheduler.
	Schedule string

	// WindowDays is the trailing report window. Default: 30.
	WindowDays int

	// TopN is how many top spenders to include. Default: 5.
	TopN int
}

// NewScheduler creates a report scheduler.
func NewScheduler(reporter *Reporter, cfg SchedulerConfig) *Scheduler {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Scheduler{
		reporter:   reporter,
		schedule:   cfg.Schedule,
		windowDays: cfg.WindowDays,
		topN:       cfg.TopN,
		cron:       cron.New(),
		logger:     slog.Default().With("component", "usage.report_scheduler"),
	}
}

// Start begins scheduled reporting. If no schedule is configured, Start does
// nothing and returns nil.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("report schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.runReport(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule usage report: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("usage report scheduler started",
		"schedule", s.schedule,
		"window_days", s.windowDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runReport executes one reporting cycle.
func (s *Scheduler) runReport(ctx context.Context) {
	stats, err := s.reporter.GetUsageStats(ctx, s.windowDays)
	if err != nil {
		s.logger.Error("scheduled usage report failed", "error", err)
		return
	}

	s.logger.Info("usage report",
		"window_days", s.windowDays,
		"unique_users", stats.UniqueUsers,
		"total_requests", stats.TotalRequests,
		"total_cost", stats.TotalCost,
		"avg_cost_per_request", stats.AvgCostPerRequest,
	)

	top, err := s.reporter.GetTopUsersByUsage(ctx, s.windowDays, s.topN)
	if err != nil {
		s.logger.Error("top users report failed", "error", err)
		return
	}
	for i, u := range top {
		s.logger.Info("top spender",
			"rank", i+1,
			"user_id", u.UserID,
			"total_cost", u.TotalCost,
		)
	}
}

// Stop stops the scheduler and waits for a running job to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("usage report scheduler stopped")
	}
}

// IsRunning returns true while the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled report time, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
