// Package storage provides persistence backends for the usage ledger.
//
// # Overview
//
// The storage package defines the Store interface for the two ledger tables
// (usage events and per-user limits) and provides two implementations:
//
//   - SQLite: durable file-based storage, the production backend
//   - Memory: fast in-memory storage for tests and ephemeral deployments
//
// Events are append-only; the only deletes are the administrative resets.
// Limit rows are written with upsert semantics so that concurrent first-time
// provisioning for the same user is idempotent.
//
// # Usage
//
//	store, err := storage.NewSQLiteStore(storage.SQLiteConfig{Path: "data/usage.db"})
//	if err != nil { ... }
//	defer store.Close()
//
//	err = store.InsertEvent(ctx, &usage.Event{
//	    UserID:        "1096...",
//	    Timestamp:     time.Now(),
//	    Service:       "llm",
//	    TokensUsed:    812,
//	    EstimatedCost: 0.0041,
//	    RequestType:   "market-analysis",
//	})
//
// # Thread Safety
//
// All backends are safe for concurrent use. Each individual read or write is
// atomic; atomicity is not provided across calls.
package storage
