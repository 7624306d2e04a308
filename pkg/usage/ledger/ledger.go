package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketscope/pkg/usage"
	"marketscope/pkg/usage/storage"
)

// LimitResolver resolves a user's effective limits. Implemented by
// policy.Policy.
type LimitResolver interface {
	GetUserLimits(ctx context.Context, userID string) (*usage.UserLimits, error)
}

// Ledger records usage events and evaluates limit standing.
type Ledger struct {
	store    storage.Store
	policy   LimitResolver
	logger   *slog.Logger
	metrics  *usage.Metrics
	timeout  time.Duration
	now      func() time.Time
}

// Config configures a Ledger.
type Config struct {
	// Store is the ledger store. Required.
	Store storage.Store

	// Policy resolves per-user limits. Required.
	Policy LimitResolver

	// Timeout bounds every store call. Default: 5 seconds.
	Timeout time.Duration

	// Logger is the parent logger. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives ledger metrics. Optional.
	Metrics *usage.Metrics

	// Now overrides the clock. Defaults to time.Now. For tests.
	Now func() time.Time
}

// New creates a Ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", usage.ErrConfigInvalid)
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("%w: limit policy is required", usage.ErrConfigInvalid)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Ledger{
		store:   cfg.Store,
		policy:  cfg.Policy,
		logger:  logger.With("component", "usage.ledger"),
		metrics: cfg.Metrics,
		timeout: timeout,
		now:     now,
	}, nil
}

// RecordUsage appends an immutable usage event timestamped now.
//
// A storage failure here is an operational concern, not a user-facing one:
// the billable action already happened and is not rolled back. The caller
// should log the returned error and continue.
func (l *Ledger) RecordUsage(ctx context.Context, userID, service string, tokensUsed int, estimatedCost float64, requestType string, metadata map[string]string) error {
	start := l.now()

	if err := usage.ValidateUserID(userID); err != nil {
		return err
	}
	if service == "" {
		return fmt.Errorf("%w: service is required", usage.ErrInvalidEvent)
	}
	if tokensUsed < 0 {
		return fmt.Errorf("%w: negative tokens_used %d", usage.ErrInvalidEvent, tokensUsed)
	}
	if estimatedCost < 0 {
		return fmt.Errorf("%w: negative estimated_cost %v", usage.ErrInvalidEvent, estimatedCost)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ev := &usage.Event{
		UserID:        userID,
		Timestamp:     l.now(),
		Service:       service,
		TokensUsed:    tokensUsed,
		EstimatedCost: estimatedCost,
		RequestType:   requestType,
		Metadata:      metadata,
	}

	if err := l.store.InsertEvent(ctx, ev); err != nil {
		if l.metrics != nil {
			l.metrics.RecordDroppedEvent()
		}
		l.logger.Error("usage event dropped",
			"user_id", userID,
			"service", service,
			"estimated_cost", estimatedCost,
			"error", err,
		)
		return err
	}

	if l.metrics != nil {
		l.metrics.RecordEvent(service)
		l.metrics.RecordOpDuration("record_usage", l.now().Sub(start).Seconds())
	}

	l.logger.Debug("usage recorded",
		"user_id", userID,
		"service", service,
		"tokens_used", tokensUsed,
		"estimated_cost", estimatedCost,
		"request_type", requestType,
	)

	return nil
}

// GetUserUsage aggregates the user's events over the trailing windowDays
// days, grouped by service. A pure read; an empty ledger yields an empty map.
func (l *Ledger) GetUserUsage(ctx context.Context, userID string, windowDays int) (map[string]usage.ServiceTotals, error) {
	if err := usage.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = 30
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	since := l.now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	return l.store.ServiceTotals(ctx, userID, since)
}

// GetHourlyRequestCount counts the user's events in the trailing hour,
// across all services.
func (l *Ledger) GetHourlyRequestCount(ctx context.Context, userID string) (int, error) {
	if err := usage.ValidateUserID(userID); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	since := l.now().Add(-time.Hour)
	return l.store.CountEvents(ctx, userID, since)
}

// CheckUserLimits evaluates the user's current standing against their
// limits. It is a read-only evaluation: no capacity is reserved, and a
// racing RecordUsage may still land after a passing check.
//
// The check fails closed: on any store or policy failure the returned status
// has WithinLimits=false alongside the error. A false "blocked" is cheaper
// than an uncontrolled cost overrun.
func (l *Ledger) CheckUserLimits(ctx context.Context, userID string) (*usage.LimitStatus, error) {
	start := l.now()
	blocked := &usage.LimitStatus{WithinLimits: false}

	if err := usage.ValidateUserID(userID); err != nil {
		return blocked, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	limits, err := l.policy.GetUserLimits(ctx, userID)
	if err != nil {
		l.logger.Error("limit check failed closed", "user_id", userID, "op", "get_limits", "error", err)
		return blocked, err
	}

	now := l.now()

	monthlyTotals, err := l.store.ServiceTotals(ctx, userID, now.Add(-30*24*time.Hour))
	if err != nil {
		l.logger.Error("limit check failed closed", "user_id", userID, "op", "monthly_totals", "error", err)
		return blocked, err
	}
	dailyTotals, err := l.store.ServiceTotals(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		l.logger.Error("limit check failed closed", "user_id", userID, "op", "daily_totals", "error", err)
		return blocked, err
	}
	hourlyRequests, err := l.store.CountEvents(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		l.logger.Error("limit check failed closed", "user_id", userID, "op", "hourly_count", "error", err)
		return blocked, err
	}

	status := &usage.LimitStatus{
		MonthlyUsage:   sumCost(monthlyTotals),
		MonthlyLimit:   limits.MonthlyLimit,
		DailyUsage:     sumCost(dailyTotals),
		DailyLimit:     limits.DailyLimit,
		HourlyRequests: hourlyRequests,
		HourlyLimit:    limits.RequestsPerHour,
		IsPremium:      limits.IsPremium,
	}
	status.WithinLimits = status.MonthlyUsage <= status.MonthlyLimit &&
		status.DailyUsage <= status.DailyLimit &&
		status.HourlyRequests <= status.HourlyLimit

	if l.metrics != nil {
		l.metrics.RecordLimitCheck(status.WithinLimits)
		if status.MonthlyUsage > status.MonthlyLimit {
			l.metrics.RecordLimitHit("monthly")
		}
		if status.DailyUsage > status.DailyLimit {
			l.metrics.RecordLimitHit("daily")
		}
		if status.HourlyRequests > status.HourlyLimit {
			l.metrics.RecordLimitHit("hourly")
		}
		if status.MonthlyLimit > 0 {
			l.metrics.UpdateUsageRatio(userID, "monthly", status.MonthlyUsage/status.MonthlyLimit)
		}
		if status.DailyLimit > 0 {
			l.metrics.UpdateUsageRatio(userID, "daily", status.DailyUsage/status.DailyLimit)
		}
		l.metrics.RecordOpDuration("check_limits", l.now().Sub(start).Seconds())
	}

	return status, nil
}

// sumCost totals estimated cost across services.
func sumCost(totals map[string]usage.ServiceTotals) float64 {
	var sum float64
	for _, t := range totals {
		sum += t.Cost
	}
	return sum
}
