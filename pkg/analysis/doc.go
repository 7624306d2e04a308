// Package analysis turns market data into a textual trading recommendation
// via an OpenAI-compatible chat completions API.
//
// The client reports token usage and the estimated cost of each call so the
// caller can record it in the usage ledger; cost is computed from the
// configured per-token price at call time, never re-derived later.
package analysis
