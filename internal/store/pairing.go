package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PairingStore persists direct-chat pairing requests and approvals.
type PairingStore struct {
	db *DB
}

// NewPairingStore builds a pairing store on the shared database.
func NewPairingStore(db *DB) *PairingStore {
	return &PairingStore{db: db}
}

// Upsert registers a pairing request for (accountID, senderID) and returns
// its code. created is true only for the call that inserted the row; with
// the single-connection pool, concurrent upserts create at most once.
func (s *PairingStore) Upsert(ctx context.Context, accountID, senderID string) (string, bool, error) {
	code := pairingCode()
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.db.ExecContext(ctx, `
		INSERT INTO pairings (account_id, sender_id, code, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, sender_id) DO NOTHING`,
		accountID, senderID, code, now)
	if err != nil {
		return "", false, fmt.Errorf("store: upsert pairing: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("store: upsert pairing result: %w", err)
	}
	if affected > 0 {
		return code, true, nil
	}
	var existing string
	err = s.db.db.QueryRowContext(ctx,
		`SELECT code FROM pairings WHERE account_id = ? AND sender_id = ?`,
		accountID, senderID).Scan(&existing)
	if err != nil {
		return "", false, fmt.Errorf("store: read pairing: %w", err)
	}
	return existing, false, nil
}

// Approve marks the pairing identified by code as approved.
func (s *PairingStore) Approve(ctx context.Context, accountID, code string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.db.ExecContext(ctx, `
		UPDATE pairings SET approved = 1, approved_at = ?
		WHERE account_id = ? AND code = ? AND approved = 0`,
		now, accountID, code)
	if err != nil {
		return fmt.Errorf("store: approve pairing: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: approve pairing result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("store: no pending pairing with code %s", code)
	}
	return nil
}

// AllowedSenders lists the sender ids whose pairing was approved.
func (s *PairingStore) AllowedSenders(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT sender_id FROM pairings WHERE account_id = ? AND approved = 1`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("store: list approved senders: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var senders []string
	for rows.Next() {
		var sender string
		if err := rows.Scan(&sender); err != nil {
			return nil, fmt.Errorf("store: scan approved sender: %w", err)
		}
		senders = append(senders, sender)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate approved senders: %w", err)
	}
	return senders, nil
}

// pairingCode derives a short human-typable code.
func pairingCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
