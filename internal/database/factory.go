package database

import (
	"fmt"
	"os"
	"path/filepath"

	"resdex/internal/config"
	"resdex/internal/resource"
)

// DatabaseFileName is the index file created inside the sqlite data dir.
const DatabaseFileName = "resdex.db"

// NewDatabaseFromConfig creates a Store implementation based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, logger resource.Logger) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return openSQLiteDatabase(filepath.Join(cfg.DataDir, DatabaseFileName), cfg.BusyTimeoutMS, logger)
	case "memory":
		return openSQLiteDatabase(":memory:", cfg.BusyTimeoutMS, logger)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// OpenStore opens the configured database, falling back to an
// UnavailableDatabase when it cannot be opened or migrated.
func OpenStore(cfg config.DatabaseConfig, logger resource.Logger) resource.Store {
	db, err := NewDatabaseFromConfig(cfg, logger)
	if err != nil {
		if logger != nil {
			logger.Error("index database unavailable, running without persistence", "error", err)
		}
		return NewUnavailableDatabase(err, logger)
	}
	return db
}
