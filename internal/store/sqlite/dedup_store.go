package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

// DedupStore implements domain.DedupStore, the shared seen-fingerprint
// ledger. Fingerprints are marked before order submission so a crash between
// mark and submit can never double-execute.
type DedupStore struct {
	db *sql.DB
}

// NewDedupStore creates a DedupStore backed by the given client.
func NewDedupStore(c *Client) *DedupStore {
	return &DedupStore{db: c.DB()}
}

// MarkSeen records a fingerprint. Marking twice is a no-op.
func (s *DedupStore) MarkSeen(ctx context.Context, fingerprint string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO seen_trade_ids (trade_id) VALUES (?)", fingerprint)
	if err != nil {
		return fmt.Errorf("sqlite: mark seen: %w", err)
	}
	return nil
}

// IsSeen reports whether the fingerprint has been recorded.
func (s *DedupStore) IsSeen(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM seen_trade_ids WHERE trade_id = ?)",
		fingerprint,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: is seen: %w", err)
	}
	return exists, nil
}

// ExpireSeen deletes fingerprints first seen longer than olderThan ago and
// returns the number removed.
func (s *DedupStore) ExpireSeen(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(nowUTC().Add(-olderThan))
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM seen_trade_ids WHERE first_seen < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: expire seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: expire seen: %w", err)
	}
	return n, nil
}

var _ domain.DedupStore = (*DedupStore)(nil)
