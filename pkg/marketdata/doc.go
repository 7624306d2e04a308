// Package marketdata fetches equity and cryptocurrency price data and
// derives rolling-window technical indicators from it.
//
// Both HTTP clients run behind a circuit breaker with bounded timeouts so a
// degraded upstream trips fast instead of stacking up blocked interactions.
// Indicator arithmetic (SMA, EMA, Bollinger bands, RSI, period high/low) is
// pure and operates on daily close series.
package marketdata
