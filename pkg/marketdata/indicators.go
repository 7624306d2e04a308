package marketdata

import (
	"fmt"
	"math"
)

// IndicatorSnapshot is the latest value of each indicator over a series,
// used to build the analysis prompt.
type IndicatorSnapshot struct {
	LastClose      float64
	SMA20          float64
	EMA20          float64
	RSI14          float64
	BollingerUpper float64
	BollingerLower float64
	PeriodHigh     float64
	PeriodLow      float64
}

// SMA computes the simple moving average of the last window values.
func SMA(values []float64, window int) (float64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("window must be positive, got %d", window)
	}
	if len(values) < window {
		return 0, fmt.Errorf("need %d values, have %d", window, len(values))
	}

	var sum float64
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	return sum / float64(window), nil
}

// EMA computes the exponential moving average over all values with the
// given span, seeded with the first value.
func EMA(values []float64, span int) (float64, error) {
	if span <= 0 {
		return 0, fmt.Errorf("span must be positive, got %d", span)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("need at least one value")
	}

	alpha := 2.0 / (float64(span) + 1.0)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema, nil
}

// RSI computes the relative strength index over the last period deltas
// using the simple (non-smoothed) average of gains and losses.
func RSI(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period+1 {
		return 0, fmt.Errorf("need %d values, have %d", period+1, len(values))
	}

	var gains, losses float64
	tail := values[len(values)-period-1:]
	for i := 1; i < len(tail); i++ {
		delta := tail[i] - tail[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	if losses == 0 {
		return 100, nil
	}
	rs := gains / losses
	return 100 - 100/(1+rs), nil
}

// Bollinger computes the upper and lower Bollinger bands over the last
// window values at numStd standard deviations.
func Bollinger(values []float64, window int, numStd float64) (upper, lower float64, err error) {
	mid, err := SMA(values, window)
	if err != nil {
		return 0, 0, err
	}

	var variance float64
	for _, v := range values[len(values)-window:] {
		variance += (v - mid) * (v - mid)
	}
	std := math.Sqrt(variance / float64(window))

	return mid + numStd*std, mid - numStd*std, nil
}

// HighLow returns the maximum and minimum of values.
func HighLow(values []float64) (high, low float64, err error) {
	if len(values) == 0 {
		return 0, 0, fmt.Errorf("need at least one value")
	}

	high, low = values[0], values[0]
	for _, v := range values[1:] {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}
	return high, low, nil
}

// Snapshot derives the full indicator snapshot from a series. The series
// must hold at least 21 candles (20-day windows plus the RSI seed delta).
func Snapshot(series *Series) (*IndicatorSnapshot, error) {
	closes := series.Closes()
	if len(closes) < 21 {
		return nil, fmt.Errorf("need at least 21 candles for %s, have %d", series.Symbol, len(closes))
	}

	sma, err := SMA(closes, 20)
	if err != nil {
		return nil, err
	}
	ema, err := EMA(closes, 20)
	if err != nil {
		return nil, err
	}
	rsi, err := RSI(closes, 14)
	if err != nil {
		return nil, err
	}
	upper, lower, err := Bollinger(closes, 20, 2)
	if err != nil {
		return nil, err
	}
	high, low, err := HighLow(closes)
	if err != nil {
		return nil, err
	}

	return &IndicatorSnapshot{
		LastClose:      closes[len(closes)-1],
		SMA20:          sma,
		EMA20:          ema,
		RSI14:          rsi,
		BollingerUpper: upper,
		BollingerLower: lower,
		PeriodHigh:     high,
		PeriodLow:      low,
	}, nil
}
