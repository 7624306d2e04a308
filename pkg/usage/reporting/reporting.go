package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketscope/pkg/usage"
	"marketscope/pkg/usage/storage"
)

// Reporter answers administrative aggregate queries.
type Reporter struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// Config configures a Reporter.
type Config struct {
	// Store is the ledger store. Required.
	Store storage.Store

	// Logger is the parent logger. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock. Defaults to time.Now. For tests.
	Now func() time.Time
}

// New creates a Reporter.
func New(cfg Config) (*Reporter, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", usage.ErrConfigInvalid)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Reporter{
		store:  cfg.Store,
		logger: logger.With("component", "usage.reporting"),
		now:    now,
	}, nil
}

// GetUsageStats computes the global aggregate over the trailing windowDays
// days. An empty ledger yields an all-zero result, never an error.
func (r *Reporter) GetUsageStats(ctx context.Context, windowDays int) (*usage.Stats, error) {
	if windowDays <= 0 {
		windowDays = 30
	}

	since := r.now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	stats, err := r.store.Stats(ctx, since)
	if err != nil {
		return nil, err
	}
	stats.PeriodDays = windowDays
	return stats, nil
}

// GetTopUsersByUsage returns up to limit users by total cost, descending,
// over the trailing windowDays days. Ordering between equal-cost users is
// arbitrary; the report is advisory.
func (r *Reporter) GetTopUsersByUsage(ctx context.Context, windowDays, limit int) ([]usage.UserSpend, error) {
	if windowDays <= 0 {
		windowDays = 30
	}

	since := r.now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	return r.store.TopUsers(ctx, since, limit)
}

// ResetUser clears all events and the limit row for one user. This is the
// only path that deletes ledger data for a user; it is logged as an audited
// administrative action.
func (r *Reporter) ResetUser(ctx context.Context, userID string) error {
	if err := usage.ValidateUserID(userID); err != nil {
		return err
	}
	r.logger.Warn("administrative ledger reset requested", "scope", "user", "user_id", userID)
	return r.store.ResetUser(ctx, userID)
}

// ResetAll clears the entire ledger for every user.
func (r *Reporter) ResetAll(ctx context.Context) error {
	r.logger.Warn("administrative ledger reset requested", "scope", "all")
	return r.store.ResetAll(ctx)
}
