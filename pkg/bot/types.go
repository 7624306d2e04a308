package bot

import (
	"context"
	"errors"

	"marketscope/pkg/analysis"
	"marketscope/pkg/marketdata"
	"marketscope/pkg/usage"
)

// Request is one parsed user interaction.
type Request struct {
	// UserID is the opaque external account identifier.
	UserID string

	// Command is the command name, without any prefix ("analyze", "usage").
	Command string

	// Args are the whitespace-split command arguments.
	Args []string
}

// Response is the reply text for one interaction.
type Response struct {
	Text string
}

// ErrQueueFull is returned by the dispatcher when the interaction queue is at
// capacity. Callers should tell the user to retry, not block.
var ErrQueueFull = errors.New("interaction queue full")

// Ledger is the usage accounting surface the handler needs.
type Ledger interface {
	CheckUserLimits(ctx context.Context, userID string) (*usage.LimitStatus, error)
	RecordUsage(ctx context.Context, userID, service string, tokensUsed int, estimatedCost float64, requestType string, metadata map[string]string) error
	GetUserUsage(ctx context.Context, userID string, windowDays int) (map[string]usage.ServiceTotals, error)
	GetHourlyRequestCount(ctx context.Context, userID string) (int, error)
}

// LimitPolicy is the limit administration surface the handler needs.
type LimitPolicy interface {
	GetUserLimits(ctx context.Context, userID string) (*usage.UserLimits, error)
	UpdateLimits(ctx context.Context, userID string, upd usage.LimitUpdate) (*usage.UserLimits, error)
	GrantPremium(ctx context.Context, userID string) (*usage.UserLimits, error)
}

// Reporter is the aggregate reporting surface the handler needs.
type Reporter interface {
	GetUsageStats(ctx context.Context, windowDays int) (*usage.Stats, error)
	GetTopUsersByUsage(ctx context.Context, windowDays, limit int) ([]usage.UserSpend, error)
	ResetUser(ctx context.Context, userID string) error
	ResetAll(ctx context.Context) error
}

// EquityData fetches equity quotes and daily series.
type EquityData interface {
	GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error)
	GetDailySeries(ctx context.Context, symbol string, days int) (*marketdata.Series, error)
}

// CryptoData fetches cryptocurrency prices.
type CryptoData interface {
	GetPrice(ctx context.Context, symbol string) (*marketdata.Quote, error)
}

// Analyzer produces a trading recommendation from market data.
type Analyzer interface {
	Analyze(ctx context.Context, quote *marketdata.Quote, ind *marketdata.IndicatorSnapshot) (*analysis.Recommendation, error)
}
