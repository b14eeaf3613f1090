// Package deliveries records processed webhook deliveries in SQLite. The log
// is an operational audit surface: each authenticated delivery gets one row
// with a digest of the raw body, so upstream redeliveries of an identical
// payload are observable.
package deliveries

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Delivery outcomes.
const (
	OutcomeHandshake = "handshake"
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// Entry is one processed delivery.
type Entry struct {
	ID         string
	BodyDigest string
	EntityType string
	EntityID   string
	EventType  string
	Outcome    string
	CreatedAt  time.Time
}

// Store persists delivery entries.
type Store struct {
	db *sql.DB
}

// New creates a delivery store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Digest computes the BLAKE3 digest of a raw body, hex-encoded.
func Digest(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Record inserts one entry and returns its id.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if e.Outcome == "" {
		return "", fmt.Errorf("outcome is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO delivery_log(id, body_digest, entity_type, entity_id, event_type, outcome, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, id, e.BodyDigest, e.EntityType, e.EntityID, e.EventType, e.Outcome, now)
	if err != nil {
		return "", fmt.Errorf("record delivery: %w", err)
	}
	return id, nil
}

// SeenBefore reports whether a body with the given digest was already recorded.
func (s *Store) SeenBefore(ctx context.Context, digest string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM delivery_log WHERE body_digest = ?;", digest).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check delivery digest: %w", err)
	}
	return count > 0, nil
}

// Count returns the number of recorded deliveries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM delivery_log;").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return count, nil
}
