package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/polybacker/polybacker/internal/domain"
)

const positionCols = `id, user_address, token_id, market, side, size,
	avg_entry_price, current_price, cost_basis, unrealized_pnl, strategy,
	copied_from, opened_at, last_updated, status`

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	db *sql.DB
}

// NewPositionStore creates a PositionStore backed by the given client.
func NewPositionStore(c *Client) *PositionStore {
	return &PositionStore{db: c.DB()}
}

// UpsertPosition folds one executed trade into the matching open position,
// or opens a new one. The lookup matches the position side the trade adds to
// first, then the opposite side to reduce. All in one transaction.
func (s *PositionStore) UpsertPosition(ctx context.Context, user, tokenID, market string, side domain.Side, usd, price float64, strategy domain.Strategy, copiedFrom string) error {
	if price <= 0 {
		return fmt.Errorf("sqlite: upsert position: price must be positive: %w", domain.ErrInvalid)
	}
	user = normalizeAddress(user)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: upsert position: %w", err)
	}
	defer tx.Rollback()

	// Prefer the same-side open position; otherwise reduce the opposite one.
	same := domain.SideForTrade(side)
	p, err := getOpenPosition(ctx, tx, user, tokenID, same)
	if errors.Is(err, domain.ErrNotFound) {
		opposite := domain.PositionShort
		if same == domain.PositionShort {
			opposite = domain.PositionLong
		}
		p, err = getOpenPosition(ctx, tx, user, tokenID, opposite)
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		np := domain.NewPosition(user, tokenID, market, side, usd, price, strategy, normalizeAddress(copiedFrom), nowUTC())
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions (user_address, token_id, market, side, size,
				avg_entry_price, current_price, cost_basis, unrealized_pnl,
				strategy, copied_from, opened_at, last_updated, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			np.UserAddress, np.TokenID, np.Market, string(np.Side), np.Size,
			np.AvgEntryPrice, np.CurrentPrice, np.CostBasis, np.UnrealizedPnL,
			string(np.Strategy), np.CopiedFrom, formatTime(np.OpenedAt),
			formatTime(np.LastUpdated), string(np.Status),
		); err != nil {
			return fmt.Errorf("sqlite: insert position: %w", err)
		}
	case err != nil:
		return err
	default:
		updated := p.ApplyTrade(side, usd, price)
		if _, err := tx.ExecContext(ctx, `
			UPDATE positions
			SET size = ?, avg_entry_price = ?, current_price = ?, cost_basis = ?,
				unrealized_pnl = ?, last_updated = ?, status = ?
			WHERE id = ?`,
			updated.Size, updated.AvgEntryPrice, updated.CurrentPrice,
			updated.CostBasis, updated.UnrealizedPnL, formatTime(nowUTC()),
			string(updated.Status), updated.ID,
		); err != nil {
			return fmt.Errorf("sqlite: update position: %w", err)
		}
	}

	return tx.Commit()
}

// ListOpenPositions returns the user's open positions, newest first.
func (s *PositionStore) ListOpenPositions(ctx context.Context, user string) ([]domain.Position, error) {
	return s.list(ctx,
		"SELECT "+positionCols+" FROM positions WHERE user_address = ? AND status = 'open' ORDER BY opened_at DESC",
		normalizeAddress(user))
}

// ListAllOpenPositions returns every open position across all users. Used by
// the price tracker.
func (s *PositionStore) ListAllOpenPositions(ctx context.Context) ([]domain.Position, error) {
	return s.list(ctx,
		"SELECT "+positionCols+" FROM positions WHERE status = 'open' ORDER BY opened_at DESC")
}

// ListClosedPositions returns the user's most recently closed positions.
func (s *PositionStore) ListClosedPositions(ctx context.Context, user string, limit int) ([]domain.Position, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx,
		"SELECT "+positionCols+" FROM positions WHERE user_address = ? AND status = 'closed' ORDER BY last_updated DESC LIMIT ?",
		normalizeAddress(user), limit)
}

// GetPosition returns the position by id or domain.ErrNotFound.
func (s *PositionStore) GetPosition(ctx context.Context, id int64) (domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+positionCols+" FROM positions WHERE id = ?", id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: get position: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Position{}, fmt.Errorf("sqlite: get position: %w", err)
		}
		return domain.Position{}, domain.ErrNotFound
	}
	return scanPosition(rows)
}

// ClosePosition marks the position closed regardless of remaining size.
func (s *PositionStore) ClosePosition(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE positions SET status = 'closed', last_updated = ? WHERE id = ? AND status = 'open'",
		formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("sqlite: close position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// BatchUpdatePrices applies tracked prices and recomputed PnL in one
// transaction so the tracker's sweep is atomic.
func (s *PositionStore) BatchUpdatePrices(ctx context.Context, updates []domain.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: batch update prices: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE positions
		SET current_price = ?,
			unrealized_pnl = CASE side
				WHEN 'LONG' THEN (? - avg_entry_price) * size
				ELSE (avg_entry_price - ?) * size
			END,
			last_updated = ?
		WHERE id = ? AND status = 'open'`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare price update: %w", err)
	}
	defer stmt.Close()

	now := formatTime(nowUTC())
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.Price, u.Price, u.Price, now, u.PositionID); err != nil {
			return fmt.Errorf("sqlite: update price for position %d: %w", u.PositionID, err)
		}
	}

	return tx.Commit()
}

func (s *PositionStore) list(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func getOpenPosition(ctx context.Context, tx *sql.Tx, user, tokenID string, side domain.PositionSide) (domain.Position, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+positionCols+" FROM positions WHERE user_address = ? AND token_id = ? AND side = ? AND status = 'open'",
		user, tokenID, string(side))
	if err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: lookup open position: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Position{}, fmt.Errorf("sqlite: lookup open position: %w", err)
		}
		return domain.Position{}, domain.ErrNotFound
	}
	return scanPosition(rows)
}

func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var p domain.Position
	var side, strategy, openedAt, lastUpdated, status string
	err := rows.Scan(&p.ID, &p.UserAddress, &p.TokenID, &p.Market, &side,
		&p.Size, &p.AvgEntryPrice, &p.CurrentPrice, &p.CostBasis,
		&p.UnrealizedPnL, &strategy, &p.CopiedFrom, &openedAt, &lastUpdated,
		&status)
	if err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: scan position: %w", err)
	}
	p.Side = domain.PositionSide(side)
	p.Strategy = domain.Strategy(strategy)
	p.OpenedAt = parseTime(openedAt)
	p.LastUpdated = parseTime(lastUpdated)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
