package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/polybacker/polybacker/internal/domain"
)

const followCols = `user_address, address, alias, added_at, active, total_copied,
	total_spent, copy_percentage, min_copy_size, max_copy_size, max_daily_spend,
	order_mode, limit_order_pct`

// TraderStore implements domain.TraderStore.
type TraderStore struct {
	db *sql.DB
}

// NewTraderStore creates a TraderStore backed by the given client.
func NewTraderStore(c *Client) *TraderStore {
	return &TraderStore{db: c.DB()}
}

// AddFollow follows a trader for the user. Re-following a deactivated row
// reactivates it and preserves its counters and overrides. Returns true when
// a new row was created, false on reactivation or when already active.
func (s *TraderStore) AddFollow(ctx context.Context, user, address, alias string) (bool, error) {
	user = normalizeAddress(user)
	address = normalizeAddress(address)

	var active bool
	err := s.db.QueryRowContext(ctx,
		"SELECT active FROM followed_traders WHERE user_address = ? AND address = ?",
		user, address,
	).Scan(&active)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO followed_traders (user_address, address, alias) VALUES (?, ?, ?)",
			user, address, alias,
		); err != nil {
			return false, fmt.Errorf("sqlite: add follow: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("sqlite: add follow lookup: %w", err)
	}

	if active {
		return false, nil
	}
	query := "UPDATE followed_traders SET active = 1"
	args := []any{}
	if alias != "" {
		query += ", alias = ?"
		args = append(args, alias)
	}
	query += " WHERE user_address = ? AND address = ?"
	args = append(args, user, address)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("sqlite: reactivate follow: %w", err)
	}
	return false, nil
}

// RemoveFollow deactivates a follow. Returns false when no active follow
// existed.
func (s *TraderStore) RemoveFollow(ctx context.Context, user, address string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE followed_traders SET active = 0 WHERE user_address = ? AND address = ? AND active = 1",
		normalizeAddress(user), normalizeAddress(address),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: remove follow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: remove follow: %w", err)
	}
	return n > 0, nil
}

// ListFollows returns the user's follows, oldest first.
func (s *TraderStore) ListFollows(ctx context.Context, user string, includeInactive bool) ([]domain.FollowedTrader, error) {
	query := "SELECT " + followCols + " FROM followed_traders WHERE user_address = ?"
	if !includeInactive {
		query += " AND active = 1"
	}
	query += " ORDER BY added_at ASC"

	rows, err := s.db.QueryContext(ctx, query, normalizeAddress(user))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list follows: %w", err)
	}
	defer rows.Close()

	var out []domain.FollowedTrader
	for rows.Next() {
		t, err := scanFollow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateFollowOverrides applies a partial update to the follow's sizing
// overrides. Nil fields stay as stored.
func (s *TraderStore) UpdateFollowOverrides(ctx context.Context, user, address string, o domain.TraderOverrides) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if o.Alias != nil {
		add("alias", *o.Alias)
	}
	if o.CopyPercentage != nil {
		add("copy_percentage", *o.CopyPercentage)
	}
	if o.MinCopySize != nil {
		add("min_copy_size", *o.MinCopySize)
	}
	if o.MaxCopySize != nil {
		add("max_copy_size", *o.MaxCopySize)
	}
	if o.MaxDailySpend != nil {
		add("max_daily_spend", *o.MaxDailySpend)
	}
	if o.OrderMode != nil {
		add("order_mode", string(*o.OrderMode))
	}
	if o.LimitOrderPct != nil {
		add("limit_order_pct", *o.LimitOrderPct)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE followed_traders SET " + strings.Join(sets, ", ") +
		" WHERE user_address = ? AND address = ?"
	args = append(args, normalizeAddress(user), normalizeAddress(address))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: update follow overrides: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementFollowCounters bumps the copy counters after an executed copy.
func (s *TraderStore) IncrementFollowCounters(ctx context.Context, user, address string, spent float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE followed_traders
		SET total_copied = total_copied + 1, total_spent = total_spent + ?
		WHERE user_address = ? AND address = ?`,
		spent, normalizeAddress(user), normalizeAddress(address),
	)
	if err != nil {
		return fmt.Errorf("sqlite: increment follow counters: %w", err)
	}
	return nil
}

func scanFollow(rows *sql.Rows) (domain.FollowedTrader, error) {
	var t domain.FollowedTrader
	var addedAt string
	var copyPct, minSize, maxSize, maxDaily, limitPct sql.NullFloat64
	var orderMode sql.NullString

	err := rows.Scan(&t.UserAddress, &t.Address, &t.Alias, &addedAt, &t.Active,
		&t.TotalCopied, &t.TotalSpent, &copyPct, &minSize, &maxSize, &maxDaily,
		&orderMode, &limitPct)
	if err != nil {
		return domain.FollowedTrader{}, fmt.Errorf("sqlite: scan follow: %w", err)
	}

	t.AddedAt = parseTime(addedAt)
	if copyPct.Valid {
		t.CopyPercentage = &copyPct.Float64
	}
	if minSize.Valid {
		t.MinCopySize = &minSize.Float64
	}
	if maxSize.Valid {
		t.MaxCopySize = &maxSize.Float64
	}
	if maxDaily.Valid {
		t.MaxDailySpend = &maxDaily.Float64
	}
	if orderMode.Valid && orderMode.String != "" {
		m := domain.OrderMode(orderMode.String)
		t.OrderMode = &m
	}
	if limitPct.Valid {
		t.LimitOrderPct = &limitPct.Float64
	}
	return t, nil
}

var _ domain.TraderStore = (*TraderStore)(nil)
