package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionStore tracks the last inbound timestamp per agent route.
type SessionStore struct {
	db *DB
}

// NewSessionStore builds a session store on the shared database.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// LastUpdated returns the previous inbound timestamp for the route, or the
// zero time when the route has no history.
func (s *SessionStore) LastUpdated(ctx context.Context, sessionKey string) (time.Time, error) {
	var raw string
	err := s.db.db.QueryRowContext(ctx,
		`SELECT last_inbound FROM sessions WHERE session_key = ?`, sessionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: read session: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse session timestamp: %w", err)
	}
	return at, nil
}

// RecordInbound stores the latest inbound timestamp for the route.
func (s *SessionStore) RecordInbound(ctx context.Context, sessionKey string, at time.Time) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO sessions (session_key, last_inbound) VALUES (?, ?)
		ON CONFLICT (session_key) DO UPDATE SET last_inbound = excluded.last_inbound`,
		sessionKey, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: record session: %w", err)
	}
	return nil
}
