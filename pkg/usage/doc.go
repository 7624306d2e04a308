// Package usage provides the usage accounting and quota enforcement ledger.
//
// # Overview
//
// Every billable action (an AI analysis call, a paid market-data fetch) is
// recorded as an immutable usage event. The ledger aggregates events over
// trailing windows (hour, day, 30 days) and evaluates each user's standing
// against per-user limits. It supports:
//
//   - Durable, append-only event recording per user and service
//   - Trailing-window aggregates (hourly requests, daily/monthly spend)
//   - Per-user limit configuration with lazy default provisioning
//   - Premium tier and administrative overrides
//   - Administrative reporting (global stats, top spenders)
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - storage: Persistence backends (SQLite, memory)
//   - ledger: Event recording and limit evaluation
//   - policy: Per-user limit resolution and updates
//   - reporting: Administrative aggregate queries and scheduled reports
//
// # Usage
//
//	status, err := led.CheckUserLimits(ctx, userID)
//	if err != nil || !status.WithinLimits {
//	    return errTooManyRequests
//	}
//
//	// ... perform the billable action ...
//
//	if err := led.RecordUsage(ctx, userID, "llm", tokens, cost, "market-analysis", meta); err != nil {
//	    logger.Error("usage record dropped", "error", err)
//	}
//
// # Semantics
//
// CheckUserLimits is a read-only evaluation and does not reserve capacity;
// concurrent callers racing between check and record may overshoot a limit by
// at most one in-flight request each (soft limit). A failed check is treated
// as over limit, while a failed record is logged and dropped: the gate never
// blocks a user because of a phantom write, and never silently opens because
// the store is down.
//
// # Thread Safety
//
// All operations are safe for concurrent use. The persistent store is the
// only shared mutable state; usage totals are never cached in-process.
package usage
