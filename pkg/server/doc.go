// Package server exposes the operational HTTP surface: health, Prometheus
// metrics, and read-only usage reporting endpoints for dashboards.
//
// The server never mutates ledger state. Administrative mutation goes
// through the bot commands and the CLI.
package server
