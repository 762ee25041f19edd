package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"resdex/internal/config"
	"resdex/internal/resource"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewDatabaseFromConfig(cfg, nil)

		if err != nil {
			t.Errorf("NewDatabaseFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Error("NewDatabaseFromConfig() returned nil")
		}

		if got != nil {
			got.Close()
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		dataDir := filepath.Join(t.TempDir(), "nested", "db")
		cfg := config.DatabaseConfig{
			Type:          "sqlite",
			DataDir:       dataDir,
			BusyTimeoutMS: 250,
		}
		got, err := NewDatabaseFromConfig(cfg, nil)

		if err != nil {
			t.Errorf("NewDatabaseFromConfig() unexpected error: %v", err)
			return
		}
		defer got.Close()

		if _, err := os.Stat(filepath.Join(dataDir, DatabaseFileName)); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("every pooled connection carries the settings", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type:          "sqlite",
			DataDir:       t.TempDir(),
			BusyTimeoutMS: 1234,
		}
		got, err := NewDatabaseFromConfig(cfg, nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() error = %v", err)
		}
		defer got.Close()

		// Hold two connections at once so the pool has to open a second one.
		ctx := context.Background()
		first, err := got.db.Conn(ctx)
		if err != nil {
			t.Fatalf("Conn() error = %v", err)
		}
		defer first.Close()
		second, err := got.db.Conn(ctx)
		if err != nil {
			t.Fatalf("Conn() error = %v", err)
		}
		defer second.Close()

		for i, conn := range []*sql.Conn{first, second} {
			var timeout, foreignKeys int
			var journal string
			if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
				t.Fatalf("conn %d: busy_timeout error = %v", i, err)
			}
			if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
				t.Fatalf("conn %d: foreign_keys error = %v", i, err)
			}
			if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal); err != nil {
				t.Fatalf("conn %d: journal_mode error = %v", i, err)
			}
			if timeout != 1234 {
				t.Errorf("conn %d: busy_timeout = %d, want 1234", i, timeout)
			}
			if foreignKeys != 1 {
				t.Errorf("conn %d: foreign_keys = %d, want 1", i, foreignKeys)
			}
			if journal != "wal" {
				t.Errorf("conn %d: journal_mode = %q, want %q", i, journal, "wal")
			}
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewDatabaseFromConfig(cfg, nil)

		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for missing data_dir, got nil")
		}

		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "unknown"}
		got, err := NewDatabaseFromConfig(cfg, nil)

		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for unknown type, got nil")
		}

		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
			got.Close()
		}
	})
}

func TestOpenStore(t *testing.T) {
	t.Run("falls back to unavailable database", func(t *testing.T) {
		store := OpenStore(config.DatabaseConfig{Type: "unknown"}, nil)
		defer store.Close()

		u, ok := store.(*UnavailableDatabase)
		if !ok {
			t.Fatalf("OpenStore() = %T, want *UnavailableDatabase", store)
		}
		if u.Cause() == nil {
			t.Error("Cause() = nil, want error")
		}
	})

	t.Run("unavailable database reads empty and drops writes", func(t *testing.T) {
		store := OpenStore(config.DatabaseConfig{Type: "unknown"}, nil)
		ctx := context.Background()

		snap := &resource.Snapshot{DomainedPath: "mods/a.jar", Hash: "abc"}
		if err := store.UpsertSnapshot(ctx, snap); err != nil {
			t.Fatalf("UpsertSnapshot() error = %v", err)
		}
		got, err := store.GetSnapshot(ctx, "mods/a.jar")
		if err != nil {
			t.Fatalf("GetSnapshot() error = %v", err)
		}
		if got != nil {
			t.Errorf("GetSnapshot() = %v, want nil", got)
		}
		entries, err := store.GetEntries(ctx, []string{"abc"})
		if err != nil {
			t.Fatalf("GetEntries() error = %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("len(GetEntries()) = %d, want 0", len(entries))
		}
	})

	t.Run("memory database", func(t *testing.T) {
		store := OpenStore(config.DatabaseConfig{Type: "memory"}, nil)
		defer store.Close()

		if _, ok := store.(*SQLiteDatabase); !ok {
			t.Fatalf("OpenStore() = %T, want *SQLiteDatabase", store)
		}
	})
}
