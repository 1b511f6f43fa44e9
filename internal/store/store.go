// Package store persists pairing requests and conversation sessions in a
// SQLite database (modernc.org/sqlite, pure Go, no CGO).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const schema = `
CREATE TABLE IF NOT EXISTS pairings (
	account_id  TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	code        TEXT NOT NULL,
	approved    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	approved_at TEXT,
	PRIMARY KEY (account_id, sender_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_key  TEXT PRIMARY KEY,
	last_inbound TEXT NOT NULL
);
`

// DB wraps the shared SQLite handle.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. The pool is capped at one connection so pragmas apply consistently
// and writes serialize, which is what makes pairing upserts race-free.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
