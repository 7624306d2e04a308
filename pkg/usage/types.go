package usage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is a single immutable usage record for a billable action.
// Events are never updated or deleted after being written, except by an
// explicit administrative reset.
type Event struct {
	// ID is the store-assigned row identifier.
	ID int64

	// UserID is the opaque external account identifier.
	UserID string

	// Timestamp is the event time, assigned at write time. Window membership
	// is computed from this value, not from arrival order.
	Timestamp time.Time

	// Service is the symbolic name of the billed backend ("llm", "price-data").
	Service string

	// TokensUsed is the service-defined unit of consumption. Non-negative.
	TokensUsed int

	// EstimatedCost is the monetary cost in USD captured at write time.
	// It is never re-derived from pricing after the fact.
	EstimatedCost float64

	// RequestType is the symbolic request category ("market-analysis").
	RequestType string

	// Metadata is an opaque attachment stored for audit and debugging.
	// It is never interpreted by the ledger.
	Metadata map[string]string
}

// ServiceTotals aggregates events for one service over a window.
type ServiceTotals struct {
	// Tokens is the summed token consumption.
	Tokens int64

	// Cost is the summed estimated cost in USD.
	Cost float64

	// Requests is the event count.
	Requests int64
}

// UserLimits is the per-user limit configuration row. Exactly one row exists
// per user; it is provisioned lazily from the default policy on first access.
type UserLimits struct {
	UserID          string
	MonthlyLimit    float64
	DailyLimit      float64
	RequestsPerHour int
	IsPremium       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LimitUpdate is a partial update to a user's limits. Nil fields are left
// unchanged.
type LimitUpdate struct {
	MonthlyLimit    *float64
	DailyLimit      *float64
	RequestsPerHour *int
	IsPremium       *bool
}

// LimitStatus is the result of evaluating a user against their limits.
// This is a point-in-time read; it does not reserve capacity.
type LimitStatus struct {
	// WithinLimits is true iff all three usage figures are at or below their
	// respective limits.
	WithinLimits bool

	// MonthlyUsage is the summed cost over the trailing 30 days.
	MonthlyUsage float64
	MonthlyLimit float64

	// DailyUsage is the summed cost over the trailing 24 hours.
	DailyUsage float64
	DailyLimit float64

	// HourlyRequests is the event count over the trailing hour.
	HourlyRequests int
	HourlyLimit    int

	// IsPremium reports the user's tier. Informational only; it never drives
	// the within-limits decision.
	IsPremium bool
}

// Stats is a global aggregate over all events in a trailing window.
type Stats struct {
	UniqueUsers       int64
	TotalRequests     int64
	TotalCost         float64
	AvgCostPerRequest float64
	PeriodDays        int
}

// UserSpend is one entry of a top-spenders report.
type UserSpend struct {
	UserID    string
	TotalCost float64
}

// TierLimits is one tier's limit values.
type TierLimits struct {
	MonthlyLimit    float64
	DailyLimit      float64
	RequestsPerHour int
}

// DefaultPolicy is the process-wide default limit configuration. It is
// constructed once at startup from config and passed by reference into the
// limit policy; there is no ambient global state.
type DefaultPolicy struct {
	// Standard is applied when provisioning limits for a first-time user.
	Standard TierLimits

	// Premium is applied when a user is granted the premium tier.
	Premium TierLimits
}

// Validate checks that the policy carries usable values. A ledger must not
// initialize with an invalid default policy.
func (p DefaultPolicy) Validate() error {
	if err := p.Standard.validate("standard"); err != nil {
		return err
	}
	return p.Premium.validate("premium")
}

func (t TierLimits) validate(tier string) error {
	if t.MonthlyLimit <= 0 {
		return fmt.Errorf("%w: %s monthly limit must be positive, got %v", ErrConfigInvalid, tier, t.MonthlyLimit)
	}
	if t.DailyLimit <= 0 {
		return fmt.Errorf("%w: %s daily limit must be positive, got %v", ErrConfigInvalid, tier, t.DailyLimit)
	}
	if t.RequestsPerHour <= 0 {
		return fmt.Errorf("%w: %s hourly request limit must be positive, got %d", ErrConfigInvalid, tier, t.RequestsPerHour)
	}
	return nil
}

// Error types for ledger operations.
var (
	// ErrInvalidUser is returned for an empty or malformed user identifier.
	// It is raised before any store access.
	ErrInvalidUser = errors.New("invalid user identifier")

	// ErrInvalidEvent is returned for an event with negative consumption or
	// a missing service name.
	ErrInvalidEvent = errors.New("invalid usage event")

	// ErrStorageUnavailable is returned when the store is unreachable or a
	// call against it timed out. Checks fail closed on this error; records
	// log and drop.
	ErrStorageUnavailable = errors.New("usage storage unavailable")

	// ErrConfigInvalid is returned when the default policy is missing
	// required values. This is fatal at startup.
	ErrConfigInvalid = errors.New("invalid usage configuration")
)

// StorageError wraps a store failure with the backend and operation that
// produced it. It matches ErrStorageUnavailable under errors.Is.
type StorageError struct {
	// Backend is the store implementation name ("sqlite", "memory").
	Backend string

	// Op is the store operation that failed ("insert_event", "get_limits").
	Op string

	// Err is the underlying error.
	Err error
}

// NewStorageError creates a StorageError for a backend operation.
func NewStorageError(backend, op string, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Err: err}
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("usage storage %s: %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for error wrapping.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports that every StorageError matches ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// ValidateUserID rejects empty or malformed user identifiers.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUser)
	}
	if len(userID) > 128 {
		return fmt.Errorf("%w: longer than 128 bytes", ErrInvalidUser)
	}
	return nil
}
