package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"marketscope/pkg/usage"
	"marketscope/pkg/usage/storage"
)

// Policy resolves, provisions and updates per-user limits.
type Policy struct {
	store    storage.Store
	defaults atomic.Pointer[usage.DefaultPolicy]
	logger   *slog.Logger
	now      func() time.Time

	// Optional bounded-staleness cache of limit rows. Disabled when ttl == 0.
	cacheTTL time.Duration
	cacheMu  sync.RWMutex
	cache    map[string]cacheEntry
}

type cacheEntry struct {
	limits   usage.UserLimits
	cachedAt time.Time
}

// Config configures a Policy.
type Config struct {
	// Store is the ledger store. Required.
	Store storage.Store

	// Defaults is the process-wide default policy. Required and validated;
	// an invalid default policy is fatal at startup.
	Defaults usage.DefaultPolicy

	// CacheTTL bounds how stale a cached limit row may be. Zero disables
	// caching (the correctness-first default).
	CacheTTL time.Duration

	// Logger is the parent logger. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock. Defaults to time.Now. For tests.
	Now func() time.Time
}

// New creates a Policy. Returns usage.ErrConfigInvalid (wrapped) when the
// default policy is unusable.
func New(cfg Config) (*Policy, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", usage.ErrConfigInvalid)
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	p := &Policy{
		store:    cfg.Store,
		logger:   logger.With("component", "usage.policy"),
		now:      now,
		cacheTTL: cfg.CacheTTL,
		cache:    make(map[string]cacheEntry),
	}
	defaults := cfg.Defaults
	p.defaults.Store(&defaults)

	return p, nil
}

// Defaults returns the current default policy.
func (p *Policy) Defaults() usage.DefaultPolicy {
	return *p.defaults.Load()
}

// SetDefaults swaps in a new default policy, e.g. after a config reload.
// Already provisioned rows are not rewritten; only future provisioning and
// premium grants use the new values.
func (p *Policy) SetDefaults(d usage.DefaultPolicy) error {
	if err := d.Validate(); err != nil {
		return err
	}
	p.defaults.Store(&d)
	p.logger.Info("default limit policy updated",
		"monthly_limit", d.Standard.MonthlyLimit,
		"daily_limit", d.Standard.DailyLimit,
		"requests_per_hour", d.Standard.RequestsPerHour,
	)
	return nil
}

// GetUserLimits returns the user's limit row, provisioning one from the
// standard-tier defaults if none exists. Provisioning is an insert-if-absent
// upsert followed by a read-back, so two racing first accesses converge on
// the same committed row.
func (p *Policy) GetUserLimits(ctx context.Context, userID string) (*usage.UserLimits, error) {
	if err := usage.ValidateUserID(userID); err != nil {
		return nil, err
	}

	if cached, ok := p.cached(userID); ok {
		return cached, nil
	}

	limits, err := p.store.GetLimits(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limits == nil {
		limits, err = p.provision(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	p.remember(limits)
	return limits, nil
}

// provision writes a standard-tier row for a first-time user and reads back
// whatever row actually committed.
func (p *Policy) provision(ctx context.Context, userID string) (*usage.UserLimits, error) {
	std := p.defaults.Load().Standard
	now := p.now()

	row := &usage.UserLimits{
		UserID:          userID,
		MonthlyLimit:    std.MonthlyLimit,
		DailyLimit:      std.DailyLimit,
		RequestsPerHour: std.RequestsPerHour,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.store.EnsureLimits(ctx, row); err != nil {
		return nil, err
	}

	// Read back: a concurrent provisioner may have won the insert.
	limits, err := p.store.GetLimits(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limits == nil {
		return nil, usage.NewStorageError("policy", "provision_readback", fmt.Errorf("limit row missing after ensure for user %s", userID))
	}

	p.logger.Info("provisioned default limits", "user_id", userID)
	return limits, nil
}

// UpdateLimits applies a partial update to a user's limits. Only the non-nil
// fields of upd change; updated_at is refreshed and created_at is preserved
// (or set to now when no row existed). Returns the resulting row.
func (p *Policy) UpdateLimits(ctx context.Context, userID string, upd usage.LimitUpdate) (*usage.UserLimits, error) {
	if err := usage.ValidateUserID(userID); err != nil {
		return nil, err
	}

	current, err := p.store.GetLimits(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := p.now()
	if current == nil {
		std := p.defaults.Load().Standard
		current = &usage.UserLimits{
			UserID:          userID,
			MonthlyLimit:    std.MonthlyLimit,
			DailyLimit:      std.DailyLimit,
			RequestsPerHour: std.RequestsPerHour,
			CreatedAt:       now,
		}
	}

	if upd.MonthlyLimit != nil {
		current.MonthlyLimit = *upd.MonthlyLimit
	}
	if upd.DailyLimit != nil {
		current.DailyLimit = *upd.DailyLimit
	}
	if upd.RequestsPerHour != nil {
		current.RequestsPerHour = *upd.RequestsPerHour
	}
	if upd.IsPremium != nil {
		current.IsPremium = *upd.IsPremium
	}
	current.UpdatedAt = now

	if err := p.store.UpsertLimits(ctx, current); err != nil {
		return nil, err
	}
	p.forget(userID)

	p.logger.Info("user limits updated",
		"user_id", userID,
		"monthly_limit", current.MonthlyLimit,
		"daily_limit", current.DailyLimit,
		"requests_per_hour", current.RequestsPerHour,
		"is_premium", current.IsPremium,
	)

	return current, nil
}

// GrantPremium moves a user to the premium tier, applying the premium default
// limits. Further bespoke ceilings can still be set with UpdateLimits.
func (p *Policy) GrantPremium(ctx context.Context, userID string) (*usage.UserLimits, error) {
	prem := p.defaults.Load().Premium
	isPremium := true
	return p.UpdateLimits(ctx, userID, usage.LimitUpdate{
		MonthlyLimit:    &prem.MonthlyLimit,
		DailyLimit:      &prem.DailyLimit,
		RequestsPerHour: &prem.RequestsPerHour,
		IsPremium:       &isPremium,
	})
}

func (p *Policy) cached(userID string) (*usage.UserLimits, bool) {
	if p.cacheTTL <= 0 {
		return nil, false
	}
	p.cacheMu.RLock()
	entry, ok := p.cache[userID]
	p.cacheMu.RUnlock()
	if !ok || p.now().Sub(entry.cachedAt) > p.cacheTTL {
		return nil, false
	}
	clone := entry.limits
	return &clone, true
}

func (p *Policy) remember(limits *usage.UserLimits) {
	if p.cacheTTL <= 0 || limits == nil {
		return
	}
	p.cacheMu.Lock()
	p.cache[limits.UserID] = cacheEntry{limits: *limits, cachedAt: p.now()}
	p.cacheMu.Unlock()
}

func (p *Policy) forget(userID string) {
	if p.cacheTTL <= 0 {
		return
	}
	p.cacheMu.Lock()
	delete(p.cache, userID)
	p.cacheMu.Unlock()
}
