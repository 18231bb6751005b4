package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"coursedesk/internal/adapters/http/perf"
)

// InitDB creates the record table used by the development backend.
// PRE: db is a valid database connection
// POST: Tables and indexes exist, WAL mode enabled for file databases
func InitDB(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// seq keeps insertion order; the backend lists records in that order.
	schema := `
	CREATE TABLE IF NOT EXISTS record (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		app_id TEXT NOT NULL,
		id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT,
		fields TEXT NOT NULL DEFAULT '{}',
		UNIQUE (app_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_record_app ON record(app_id, seq);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Open opens (or creates) the SQLite database at path, initializes the
// schema and wraps it with query timing.
// PRE: path is a file path or ":memory:"
// POST: Returns a ready TimedDB; the caller closes it
func Open(path string, collector *perf.Collector, slowMs int) (*TimedDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := InitDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewTimedDB(db, collector, slowMs), nil
}
