package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/polybacker/polybacker/internal/domain"
)

// EventStore implements domain.EventStore, the append-only engine audit log.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates an EventStore backed by the given client.
func NewEventStore(c *Client) *EventStore {
	return &EventStore{db: c.DB()}
}

// RecordEvent appends an event. Missing ID and Timestamp are filled in.
func (s *EventStore) RecordEvent(ctx context.Context, e domain.EngineEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = nowUTC()
	}

	details := "{}"
	if len(e.Details) > 0 {
		data, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("sqlite: encode event details: %w", err)
		}
		details = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_events (id, timestamp, user_address, strategy, event_type, message, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), normalizeAddress(e.UserAddress),
		string(e.Strategy), e.EventType, e.Message, details,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record event: %w", err)
	}
	return nil
}

// ListEvents returns events newest-first matching the filter.
func (s *EventStore) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.EngineEvent, error) {
	var (
		conds []string
		args  []any
	)
	if f.UserAddress != "" {
		conds = append(conds, "user_address = ?")
		args = append(args, normalizeAddress(f.UserAddress))
	}
	if f.Strategy != "" {
		conds = append(conds, "strategy = ?")
		args = append(args, string(f.Strategy))
	}
	if f.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, f.EventType)
	}

	query := "SELECT id, timestamp, user_address, strategy, event_type, message, details FROM engine_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	defer rows.Close()

	var out []domain.EngineEvent
	for rows.Next() {
		var e domain.EngineEvent
		var ts, strategy, details string
		if err := rows.Scan(&e.ID, &ts, &e.UserAddress, &strategy, &e.EventType, &e.Message, &details); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		e.Timestamp = parseTime(ts)
		e.Strategy = domain.Strategy(strategy)
		if details != "" && details != "{}" {
			_ = json.Unmarshal([]byte(details), &e.Details)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListBefore returns events older than the cutoff, oldest first. Used by the
// archiver.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.EngineEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, user_address, strategy, event_type, message, details
		FROM engine_events WHERE timestamp < ? ORDER BY timestamp`,
		formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events before: %w", err)
	}
	defer rows.Close()

	var out []domain.EngineEvent
	for rows.Next() {
		var e domain.EngineEvent
		var ts, strategy, details string
		if err := rows.Scan(&e.ID, &ts, &e.UserAddress, &strategy, &e.EventType, &e.Message, &details); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		e.Timestamp = parseTime(ts)
		e.Strategy = domain.Strategy(strategy)
		if details != "" && details != "{}" {
			_ = json.Unmarshal([]byte(details), &e.Details)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ domain.EventStore = (*EventStore)(nil)
