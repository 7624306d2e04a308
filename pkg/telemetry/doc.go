// Package telemetry provides observability for marketscope.
//
// # Components
//
//   - logging: Structured logging via log/slog
//
// Prometheus metrics live next to the code they instrument (pkg/usage) and
// are exposed by pkg/server; this package only owns log handler setup.
package telemetry
