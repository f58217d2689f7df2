package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

const tradeCols = `id, timestamp, user_address, strategy, token_id, side, amount,
	price, market, expected_profit, copied_from, original_trade_id, status, notes`

// TradeStore implements domain.TradeStore.
type TradeStore struct {
	db *sql.DB
}

// NewTradeStore creates a TradeStore backed by the given client.
func NewTradeStore(c *Client) *TradeStore {
	return &TradeStore{db: c.DB()}
}

// RecordTrade appends a trade row and returns its id. A zero Timestamp is
// filled with the current time.
func (s *TradeStore) RecordTrade(ctx context.Context, t domain.Trade) (int64, error) {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (timestamp, user_address, strategy, token_id, side,
			amount, price, market, expected_profit, copied_from,
			original_trade_id, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(ts), normalizeAddress(t.UserAddress), string(t.Strategy),
		t.TokenID, string(t.Side), t.Amount, t.Price, t.Market,
		t.ExpectedProfit, normalizeAddress(t.CopiedFrom), t.OriginalTradeID,
		string(t.Status), t.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: record trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: record trade id: %w", err)
	}
	return id, nil
}

// ListTrades returns trades newest-first matching the filter.
func (s *TradeStore) ListTrades(ctx context.Context, f domain.TradeFilter) ([]domain.Trade, error) {
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
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Search != "" {
		conds = append(conds, "(market LIKE ? OR token_id LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := "SELECT " + tradeCols + " FROM trades"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DailyExecutedSpend sums executed USD for the current UTC day.
func (s *TradeStore) DailyExecutedSpend(ctx context.Context, user string, strategy domain.Strategy, trader string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM trades
		WHERE user_address = ? AND strategy = ? AND status = 'executed'
		  AND date(timestamp) = date('now')`
	args := []any{normalizeAddress(user), string(strategy)}

	if trader != "" {
		query += " AND copied_from = ?"
		args = append(args, normalizeAddress(trader))
	}

	var total float64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sqlite: daily executed spend: %w", err)
	}
	return total, nil
}

// PnLSeries groups executed trades into UTC-day buckets over the trailing
// window and accumulates expected profit across days.
func (s *TradeStore) PnLSeries(ctx context.Context, user string, strategy domain.Strategy, days int) ([]domain.PnLPoint, error) {
	if days <= 0 {
		days = 30
	}

	query := `
		SELECT date(timestamp) AS day, COUNT(*), COALESCE(SUM(amount), 0),
			COALESCE(SUM(expected_profit), 0)
		FROM trades
		WHERE user_address = ? AND status = 'executed'
		  AND timestamp >= datetime('now', ?)`
	args := []any{normalizeAddress(user), fmt.Sprintf("-%d days", days)}

	if strategy != "" {
		query += " AND strategy = ?"
		args = append(args, string(strategy))
	}
	query += " GROUP BY day ORDER BY day ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: pnl series: %w", err)
	}
	defer rows.Close()

	var (
		out        []domain.PnLPoint
		cumulative float64
	)
	for rows.Next() {
		var p domain.PnLPoint
		if err := rows.Scan(&p.Date, &p.Trades, &p.Spent, &p.Profit); err != nil {
			return nil, fmt.Errorf("sqlite: scan pnl point: %w", err)
		}
		cumulative += p.Profit
		p.CumulativeProfit = cumulative
		out = append(out, p)
	}
	return out, rows.Err()
}

// CopyStats aggregates the user's copy trading history. DailyLimit is left
// for the caller, which knows the effective configuration.
func (s *TradeStore) CopyStats(ctx context.Context, user string) (domain.CopyStats, error) {
	user = normalizeAddress(user)

	var st domain.CopyStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(CASE WHEN status = 'executed' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT CASE WHEN copied_from != '' THEN copied_from END)
		FROM trades
		WHERE user_address = ? AND strategy = 'copy'`,
		user,
	).Scan(&st.TotalTrades, &st.TotalSpent, &st.TotalExecuted, &st.FailedTrades, &st.UniqueTradersCopied)
	if err != nil {
		return domain.CopyStats{}, fmt.Errorf("sqlite: copy stats: %w", err)
	}

	daily, err := s.DailyExecutedSpend(ctx, user, domain.StrategyCopy, "")
	if err != nil {
		return domain.CopyStats{}, err
	}
	st.DailySpend = daily
	return st, nil
}

// ArbStats aggregates the user's arbitrage history.
func (s *TradeStore) ArbStats(ctx context.Context, user string) (domain.ArbStats, error) {
	var st domain.ArbStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(expected_profit), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM trades
		WHERE user_address = ? AND strategy = 'arbitrage'`,
		normalizeAddress(user),
	).Scan(&st.TotalTrades, &st.TotalSpent, &st.TotalExpectedProfit, &st.FailedTrades)
	if err != nil {
		return domain.ArbStats{}, fmt.Errorf("sqlite: arb stats: %w", err)
	}
	return st, nil
}

// CountByFingerprint counts the user's trades recorded against an upstream
// fingerprint. Used by the bootstrap catch-up to skip already-copied trades.
func (s *TradeStore) CountByFingerprint(ctx context.Context, user, fingerprint string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trades WHERE user_address = ? AND original_trade_id = ?",
		normalizeAddress(user), fingerprint,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count by fingerprint: %w", err)
	}
	return n, nil
}

// ListBefore returns trades older than the cutoff, oldest first. Used by the
// archiver.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+tradeCols+" FROM trades WHERE timestamp < ? ORDER BY timestamp",
		formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades before: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(rows *sql.Rows) (domain.Trade, error) {
	var t domain.Trade
	var ts, strategy, side, status string
	err := rows.Scan(&t.ID, &ts, &t.UserAddress, &strategy, &t.TokenID, &side,
		&t.Amount, &t.Price, &t.Market, &t.ExpectedProfit, &t.CopiedFrom,
		&t.OriginalTradeID, &status, &t.Notes)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("sqlite: scan trade: %w", err)
	}
	t.Timestamp = parseTime(ts)
	t.Strategy = domain.Strategy(strategy)
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	return t, nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
