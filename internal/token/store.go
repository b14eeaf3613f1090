// Package token holds the webhook verification secret for the process.
//
// The secret arrives either through the one-time verification handshake or
// from configuration. At most one value is live at a time; a later handshake
// fully replaces an earlier one (last write wins). The in-memory slot is an
// atomically-replaceable reference, so concurrent Set/Get are safe without
// locking.
package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/finhooks/ledgerlink/internal/log"
)

// Store is the single-slot holder of the verification secret.
//
// Get consults, in order: the in-memory slot, the persisted slot (survives
// restarts), and the configured fallback secret. It returns "" only when all
// three are empty.
type Store struct {
	db       *sql.DB
	fallback string
	current  atomic.Pointer[string]
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates a token store. db may be nil to disable persistence;
// fallback may be empty when no secret is configured.
func NewStore(db *sql.DB, fallback string) *Store {
	return &Store{
		db:       db,
		fallback: fallback,
		logger:   log.WithComponent("token"),
		now:      time.Now,
	}
}

// Set replaces the live secret. A new handshake (e.g. after a redeploy)
// re-establishes trust, so overwriting is always allowed.
// Persistence is best-effort: a write failure is logged, not returned, since
// the in-memory slot already holds the new value.
func (s *Store) Set(ctx context.Context, token string) {
	if token == "" {
		return
	}
	s.current.Store(&token)

	if s.db == nil {
		return
	}
	if err := s.persist(ctx, token); err != nil {
		s.logger.Error("failed to persist verification token", "error", err)
	}
}

// Get returns the live secret, or "" if none is available.
func (s *Store) Get(ctx context.Context) string {
	if p := s.current.Load(); p != nil && *p != "" {
		return *p
	}

	// Not seen a handshake this process; try the persisted slot.
	if s.db != nil {
		persisted, err := s.load(ctx)
		if err != nil {
			s.logger.Error("failed to load persisted verification token", "error", err)
		} else if persisted != "" {
			s.current.Store(&persisted)
			return persisted
		}
	}

	return s.fallback
}

// IsEstablished reports whether a secret is currently available, without
// revealing its value.
func (s *Store) IsEstablished(ctx context.Context) bool {
	return s.Get(ctx) != ""
}

func (s *Store) persist(ctx context.Context, token string) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO verification_token(id, token, updated_at)
VALUES(1, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  token = excluded.token,
  updated_at = excluded.updated_at;
`, token, now)
	if err != nil {
		return fmt.Errorf("upsert verification token: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, "SELECT token FROM verification_token WHERE id = 1;").Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read verification token: %w", err)
	}
	return token, nil
}
