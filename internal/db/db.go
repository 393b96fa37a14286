package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/voidmem/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the database file inside the base directory.
const FileName = "voidmem.db"

// Init initializes the SQLite database at baseDir/voidmem.db and creates the
// exports and drills directories next to it.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.voidmem.
func Init(baseDir string) (*sql.DB, error) {
	// Base directory is private to the user
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Best-effort; some platforms ignore it
	_ = os.Chmod(baseDir, 0700)

	// Exports and drill runs live next to the database
	for _, sub := range []string{"exports", "drills"} {
		dir := filepath.Join(baseDir, sub)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
		_ = os.Chmod(dir, 0700)
	}

	return InitWithPath(filepath.Join(baseDir, FileName))
}

// InitWithPath opens (creating if needed) the database file at dbPath,
// verifies WAL mode and runs migrations.
func InitWithPath(dbPath string) (*sql.DB, error) {
	// Pragmas in the DSN apply to every pooled connection
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Migrations create the file on first open
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Tighten file permissions now that the file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: snapshots, event archive, drill records
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
		  id              TEXT PRIMARY KEY,
		  store           TEXT NOT NULL,
		  version         INTEGER NOT NULL,
		  tick            INTEGER NOT NULL,
		  chunk_count     INTEGER NOT NULL,
		  territory_count INTEGER NOT NULL,
		  body            BLOB NOT NULL,
		  created_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_store_created
		ON snapshots(store, created_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS events (
		  store        TEXT NOT NULL,
		  sequence     INTEGER NOT NULL,
		  tick         INTEGER NOT NULL,
		  type         TEXT NOT NULL,
		  details      TEXT,
		  archived_at  INTEGER NOT NULL,
		  PRIMARY KEY (store, sequence)
		);

		CREATE INDEX IF NOT EXISTS idx_events_store_type
		ON events(store, type, sequence);

		CREATE TABLE IF NOT EXISTS drills (
		  id           TEXT PRIMARY KEY,
		  store        TEXT NOT NULL,
		  status       TEXT NOT NULL,
		  anomalies    INTEGER NOT NULL,
		  snapshot_id  TEXT,
		  run_dir      TEXT,
		  report       TEXT,
		  created_at   INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_drills_store_created
		ON drills(store, created_at DESC, id DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
