package main

import (
	"fmt"

	"marketscope/pkg/config"
	"marketscope/pkg/usage/storage"
)

// openStore opens the configured usage store.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return storage.NewSQLiteStore(storage.SQLiteConfig{
			Path:               cfg.Storage.Path,
			BusyTimeout:        cfg.Storage.BusyTimeout,
			CheckpointInterval: cfg.Storage.CheckpointInterval,
		})
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
