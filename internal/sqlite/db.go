package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection. The pool is limited to one
// connection so in-memory databases stay shared and writes serialize.
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", withTimeFormat(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !isMemoryDSN(dataSourceName) {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			if isCorruption(err) {
				return nil, wrapErr("open database", err)
			}
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

// Open opens a file-backed database, creating its directory, and applies the schema.
func Open(path string) (*DB, error) {
	if !isMemoryDSN(path) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := New(path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations applies the schema. It is idempotent.
func (db *DB) RunMigrations() error {
	if _, err := db.Exec(schema); err != nil {
		return wrapErr("run migrations", err)
	}
	return nil
}

const schema = `
-- Projects table
CREATE TABLE IF NOT EXISTS projects (
    name TEXT PRIMARY KEY,
    site_url TEXT NOT NULL DEFAULT '',
    prd_ref TEXT NOT NULL DEFAULT '',
    channel TEXT NOT NULL DEFAULT '',
    thread TEXT NOT NULL DEFAULT '',
    tracker_project_id TEXT NOT NULL DEFAULT '',
    tracker_project_url TEXT NOT NULL DEFAULT '',
    poll_interval_seconds INTEGER NOT NULL DEFAULT 0,
    scenario_total INTEGER,
    scenario_completed INTEGER,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- Sync records: one per (project, event)
CREATE TABLE IF NOT EXISTS sync_records (
    project TEXT NOT NULL,
    event_id TEXT NOT NULL,
    issue_id TEXT NOT NULL,
    category TEXT NOT NULL CHECK(category IN ('bug', 'data_error', 'improvement')),
    merged INTEGER NOT NULL DEFAULT 0,
    comment_id TEXT NOT NULL DEFAULT '',
    processed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (project, event_id),
    FOREIGN KEY (project) REFERENCES projects(name)
);
CREATE INDEX IF NOT EXISTS idx_records_processed ON sync_records(project, processed_at);

-- Watch cursors
CREATE TABLE IF NOT EXISTS cursors (
    project TEXT NOT NULL,
    channel TEXT NOT NULL,
    position TEXT NOT NULL DEFAULT '',
    polled_at TIMESTAMP NOT NULL,
    interval_seconds INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (project, channel),
    FOREIGN KEY (project) REFERENCES projects(name)
);

-- Single-writer leases
CREATE TABLE IF NOT EXISTS leases (
    project TEXT PRIMARY KEY,
    holder TEXT NOT NULL,
    acquired_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    FOREIGN KEY (project) REFERENCES projects(name)
);

-- Write-ahead intents for tracker creates
CREATE TABLE IF NOT EXISTS intents (
    project TEXT NOT NULL,
    event_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (project, event_id),
    FOREIGN KEY (project) REFERENCES projects(name)
);

-- Activity log
CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project TEXT NOT NULL,
    event_id TEXT,
    activity_type TEXT NOT NULL,
    summary TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_project_activity ON activity_log(project);
CREATE INDEX IF NOT EXISTS idx_event_activity ON activity_log(event_id);
`

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// withTimeFormat stores timestamps in a sortable text layout.
func withTimeFormat(dsn string) string {
	if strings.Contains(dsn, "_time_format=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_time_format=sqlite"
	}
	return dsn + "?_time_format=sqlite"
}
