// Package db owns the SQLite handle used for session and plan records.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the database at path and runs schema
// migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}

	// WAL keeps readers off the writers' backs
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: enable WAL: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// NewTestDB creates a fresh in-memory database with the full schema.
func NewTestDB() (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("db: open test database: %w", err)
	}
	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func runMigrations(conn *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		tasks TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("db: create schema: %w", err)
	}
	return nil
}
