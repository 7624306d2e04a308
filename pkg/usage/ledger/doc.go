// Package ledger records billable usage events and evaluates users against
// their limits.
//
// All windows are trailing spans anchored to the query time (now - 1h,
// now - 24h, now - 30d), not calendar-aligned. The hourly request count is a
// plain trailing-window count rather than a true sliding-window counter with
// sub-bucket precision; at this request volume the approximation is
// acceptable and keeps the store to one indexed range scan.
//
// Check-then-record is deliberately not atomic: CheckUserLimits is a pure
// read and RecordUsage a single insert, so concurrent interactions can
// overshoot a limit by at most one in-flight request each. Hardening this
// into admission control would require reserving capacity at check time,
// which this ledger intentionally does not do.
package ledger
