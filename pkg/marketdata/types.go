package marketdata

import (
	"errors"
	"time"
)

// Quote is a point-in-time price snapshot for a symbol.
type Quote struct {
	Symbol        string
	Price         float64
	ChangePercent float64
	Volume        int64
	AsOf          time.Time
}

// Candle is one daily bar.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Series is a daily price history, oldest first.
type Series struct {
	Symbol  string
	Candles []Candle
}

// Closes returns the close prices, oldest first.
func (s *Series) Closes() []float64 {
	closes := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		closes[i] = c.Close
	}
	return closes
}

// Error types for market data fetches.
var (
	// ErrSymbolNotFound is returned when the upstream does not know the symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrProviderUnavailable is returned when the upstream is down, timing
	// out, or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("market data provider unavailable")
)
