package storage

import (
	"context"
	"time"

	"marketscope/pkg/usage"
)

// Store defines the interface for usage ledger persistence.
// Implementations must be thread-safe and support concurrent access.
//
// All `since` parameters are inclusive: an event timestamped exactly at
// `since` is part of the window.
type Store interface {
	// InsertEvent appends an immutable usage event.
	InsertEvent(ctx context.Context, ev *usage.Event) error

	// ServiceTotals aggregates a user's events at or after since, grouped by
	// service. Returns an empty map when the user has no events.
	ServiceTotals(ctx context.Context, userID string, since time.Time) (map[string]usage.ServiceTotals, error)

	// CountEvents counts a user's events at or after since, across all services.
	CountEvents(ctx context.Context, userID string, since time.Time) (int, error)

	// GetLimits retrieves a user's limit row. Returns (nil, nil) when no row
	// exists; an error always means the store itself failed.
	GetLimits(ctx context.Context, userID string) (*usage.UserLimits, error)

	// EnsureLimits inserts a limit row only if none exists for the user.
	// Concurrent calls for the same user are idempotent; the first committed
	// row wins and later calls are no-ops.
	EnsureLimits(ctx context.Context, limits *usage.UserLimits) error

	// UpsertLimits inserts or replaces a user's limit row. On update the
	// stored created_at is preserved; all other fields are taken from limits.
	UpsertLimits(ctx context.Context, limits *usage.UserLimits) error

	// Stats computes the global aggregate over all events at or after since.
	// An empty ledger yields an all-zero result, not an error.
	Stats(ctx context.Context, since time.Time) (*usage.Stats, error)

	// TopUsers returns up to limit users ordered by total cost descending
	// over events at or after since. Ties are broken arbitrarily.
	TopUsers(ctx context.Context, since time.Time, limit int) ([]usage.UserSpend, error)

	// ResetUser removes all events and the limit row for one user.
	// Administrative operation; events are otherwise never deleted.
	ResetUser(ctx context.Context, userID string) error

	// ResetAll clears the entire ledger. Administrative operation.
	ResetAll(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
