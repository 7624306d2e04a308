// Package policy resolves per-user usage limits.
//
// A user's effective limits come from their persisted user_limits row. The
// row is provisioned lazily on first access from the process-wide default
// policy (standard tier) using an insert-if-absent upsert, so concurrent
// first-time lookups for the same user are idempotent. Administrative
// tooling updates rows partially (unspecified fields are left unchanged)
// and can grant the premium tier.
//
// The default policy is an explicit value object passed in at construction;
// it can be swapped at runtime (config hot reload) without restarting.
// Limit rows may optionally be cached for a bounded TTL; caching defaults
// to off so that reads always reflect the latest committed writes.
package policy
