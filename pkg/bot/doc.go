// Package bot implements the chat command surface.
//
// # Overview
//
// Every user interaction flows through the same gate: the handler checks the
// user's limit standing first, performs the provider work, replies, and
// records a usage event last. A record failure is logged and never surfaced
// to the user; the reply already went out and is not taken back.
//
// # Architecture
//
// The Handler is transport-agnostic: it maps a parsed Request to a Response.
// The Dispatcher in front of it runs a fixed worker pool so provider and
// ledger I/O never blocks the intake loop. Administrative commands are gated
// on a configured allow-list of user ids.
package bot
