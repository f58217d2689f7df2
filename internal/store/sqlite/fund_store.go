package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/polybacker/polybacker/internal/domain"
)

const fundCols = "id, owner_address, name, description, active, total_aum, total_shares, created_at"

// FundStore implements domain.FundStore.
type FundStore struct {
	db *sql.DB
}

// NewFundStore creates a FundStore backed by the given client.
func NewFundStore(c *Client) *FundStore {
	return &FundStore{db: c.DB()}
}

// CreateFund inserts a fund. A missing ID is generated.
func (s *FundStore) CreateFund(ctx context.Context, f domain.Fund) (domain.Fund, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = nowUTC()
	}
	f.OwnerAddress = normalizeAddress(f.OwnerAddress)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO funds (id, owner_address, name, description, active,
			total_aum, total_shares, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OwnerAddress, f.Name, f.Description, f.Active,
		f.TotalAUM, f.TotalShares, formatTime(f.CreatedAt),
	)
	if err != nil {
		return domain.Fund{}, fmt.Errorf("sqlite: create fund: %w", err)
	}
	return f, nil
}

// UpdateFund rewrites the mutable fund fields.
func (s *FundStore) UpdateFund(ctx context.Context, f domain.Fund) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE funds
		SET name = ?, description = ?, active = ?, total_aum = ?, total_shares = ?
		WHERE id = ?`,
		f.Name, f.Description, f.Active, f.TotalAUM, f.TotalShares, f.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update fund: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetFund returns the fund by id or domain.ErrNotFound.
func (s *FundStore) GetFund(ctx context.Context, id string) (domain.Fund, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fundCols+" FROM funds WHERE id = ?", id)
	f, err := scanFund(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Fund{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Fund{}, fmt.Errorf("sqlite: get fund: %w", err)
	}
	return f, nil
}

// ListFunds returns funds, newest first.
func (s *FundStore) ListFunds(ctx context.Context, activeOnly bool) ([]domain.Fund, error) {
	query := "SELECT " + fundCols + " FROM funds"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list funds: %w", err)
	}
	defer rows.Close()

	var out []domain.Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan fund: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ReplaceAllocations swaps the fund's allocation set atomically after
// checking the weight-sum invariant.
func (s *FundStore) ReplaceAllocations(ctx context.Context, fundID string, allocs []domain.FundAllocation) error {
	active := allocs[:0:0]
	for _, a := range allocs {
		if a.Active {
			active = append(active, a)
		}
	}
	if err := domain.ValidateAllocations(active); err != nil {
		return fmt.Errorf("sqlite: replace allocations: active weights must sum to 1: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: replace allocations: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM fund_allocations WHERE fund_id = ?", fundID); err != nil {
		return fmt.Errorf("sqlite: clear allocations: %w", err)
	}
	for _, a := range allocs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fund_allocations (fund_id, trader_address, weight, active)
			VALUES (?, ?, ?, ?)`,
			fundID, normalizeAddress(a.TraderAddress), a.Weight, a.Active,
		); err != nil {
			return fmt.Errorf("sqlite: insert allocation: %w", err)
		}
	}

	return tx.Commit()
}

// ListAllocations returns the fund's allocations, heaviest first.
func (s *FundStore) ListAllocations(ctx context.Context, fundID string) ([]domain.FundAllocation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT fund_id, trader_address, weight, active FROM fund_allocations WHERE fund_id = ? ORDER BY weight DESC",
		fundID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list allocations: %w", err)
	}
	defer rows.Close()

	var out []domain.FundAllocation
	for rows.Next() {
		var a domain.FundAllocation
		if err := rows.Scan(&a.FundID, &a.TraderAddress, &a.Weight, &a.Active); err != nil {
			return nil, fmt.Errorf("sqlite: scan allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Invest buys shares at the fund's current NAV and grows the AUM, all in one
// transaction so concurrent investments see a consistent NAV.
func (s *FundStore) Invest(ctx context.Context, fundID, investor string, amount float64) (domain.FundInvestment, error) {
	if amount <= 0 {
		return domain.FundInvestment{}, fmt.Errorf("sqlite: invest: amount must be positive: %w", domain.ErrInvalid)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.FundInvestment{}, fmt.Errorf("sqlite: invest: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+fundCols+" FROM funds WHERE id = ?", fundID)
	f, err := scanFund(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FundInvestment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FundInvestment{}, fmt.Errorf("sqlite: invest: %w", err)
	}
	if !f.Active {
		return domain.FundInvestment{}, fmt.Errorf("sqlite: invest: fund inactive: %w", domain.ErrConflict)
	}

	shares := amount / f.NAV()
	inv := domain.FundInvestment{
		ID:              uuid.NewString(),
		FundID:          fundID,
		InvestorAddress: normalizeAddress(investor),
		AmountInvested:  amount,
		Shares:          shares,
		InvestedAt:      nowUTC(),
		Status:          domain.InvestmentActive,
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fund_investments (id, fund_id, investor_address,
			amount_invested, shares, invested_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.FundID, inv.InvestorAddress, inv.AmountInvested,
		inv.Shares, formatTime(inv.InvestedAt), string(inv.Status),
	); err != nil {
		return domain.FundInvestment{}, fmt.Errorf("sqlite: record investment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE funds SET total_aum = total_aum + ?, total_shares = total_shares + ? WHERE id = ?",
		amount, shares, fundID,
	); err != nil {
		return domain.FundInvestment{}, fmt.Errorf("sqlite: grow fund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.FundInvestment{}, fmt.Errorf("sqlite: invest: %w", err)
	}
	return inv, nil
}

// Withdraw redeems an active investment at the current NAV and returns the
// payout. Only the investment's owner may withdraw it.
func (s *FundStore) Withdraw(ctx context.Context, investmentID, investor string) (float64, error) {
	investor = normalizeAddress(investor)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: withdraw: %w", err)
	}
	defer tx.Rollback()

	var inv domain.FundInvestment
	var investedAt, status string
	err = tx.QueryRowContext(ctx, `
		SELECT id, fund_id, investor_address, amount_invested, shares, invested_at, status
		FROM fund_investments WHERE id = ?`, investmentID,
	).Scan(&inv.ID, &inv.FundID, &inv.InvestorAddress, &inv.AmountInvested,
		&inv.Shares, &investedAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: withdraw lookup: %w", err)
	}

	if inv.InvestorAddress != investor {
		return 0, fmt.Errorf("sqlite: withdraw: not the investor: %w", domain.ErrForbidden)
	}
	if domain.InvestmentStatus(status) != domain.InvestmentActive {
		return 0, fmt.Errorf("sqlite: withdraw: already withdrawn: %w", domain.ErrConflict)
	}

	row := tx.QueryRowContext(ctx, "SELECT "+fundCols+" FROM funds WHERE id = ?", inv.FundID)
	f, err := scanFund(row)
	if err != nil {
		return 0, fmt.Errorf("sqlite: withdraw fund lookup: %w", err)
	}

	payout := inv.Shares * f.NAV()
	if payout > f.TotalAUM {
		payout = f.TotalAUM
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE fund_investments SET status = 'withdrawn' WHERE id = ?", inv.ID,
	); err != nil {
		return 0, fmt.Errorf("sqlite: mark withdrawn: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE funds
		SET total_aum = MAX(0, total_aum - ?), total_shares = MAX(0, total_shares - ?)
		WHERE id = ?`,
		payout, inv.Shares, inv.FundID,
	); err != nil {
		return 0, fmt.Errorf("sqlite: shrink fund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: withdraw: %w", err)
	}
	return payout, nil
}

// ListInvestments returns the fund's investments, newest first.
func (s *FundStore) ListInvestments(ctx context.Context, fundID string) ([]domain.FundInvestment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fund_id, investor_address, amount_invested, shares, invested_at, status
		FROM fund_investments WHERE fund_id = ? ORDER BY invested_at DESC`, fundID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list investments: %w", err)
	}
	defer rows.Close()

	var out []domain.FundInvestment
	for rows.Next() {
		var inv domain.FundInvestment
		var investedAt, status string
		if err := rows.Scan(&inv.ID, &inv.FundID, &inv.InvestorAddress,
			&inv.AmountInvested, &inv.Shares, &investedAt, &status); err != nil {
			return nil, fmt.Errorf("sqlite: scan investment: %w", err)
		}
		inv.InvestedAt = parseTime(investedAt)
		inv.Status = domain.InvestmentStatus(status)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// RecordPerformance upserts the daily NAV snapshot for (fund, date).
func (s *FundStore) RecordPerformance(ctx context.Context, p domain.FundPerformance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fund_performance (fund_id, date, nav, daily_return, cumulative_return)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fund_id, date) DO UPDATE SET
			nav = excluded.nav,
			daily_return = excluded.daily_return,
			cumulative_return = excluded.cumulative_return`,
		p.FundID, p.Date, p.NAV, p.DailyReturn, p.CumulativeReturn,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record performance: %w", err)
	}
	return nil
}

// ListPerformance returns the fund's snapshots over the trailing window,
// oldest first.
func (s *FundStore) ListPerformance(ctx context.Context, fundID string, days int) ([]domain.FundPerformance, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT fund_id, date, nav, daily_return, cumulative_return
		FROM fund_performance
		WHERE fund_id = ? AND date >= date('now', ?)
		ORDER BY date ASC`,
		fundID, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list performance: %w", err)
	}
	defer rows.Close()

	var out []domain.FundPerformance
	for rows.Next() {
		var p domain.FundPerformance
		if err := rows.Scan(&p.FundID, &p.Date, &p.NAV, &p.DailyReturn, &p.CumulativeReturn); err != nil {
			return nil, fmt.Errorf("sqlite: scan performance: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordFundTrade links a fund to a downstream trade row.
func (s *FundStore) RecordFundTrade(ctx context.Context, ft domain.FundTrade) error {
	if ft.CreatedAt.IsZero() {
		ft.CreatedAt = nowUTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fund_trades (fund_id, trade_id, trader_address, amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ft.FundID, ft.TradeID, normalizeAddress(ft.TraderAddress), ft.Amount,
		formatTime(ft.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record fund trade: %w", err)
	}
	return nil
}

// ListFundTrades returns the fund's trade links, newest first.
func (s *FundStore) ListFundTrades(ctx context.Context, fundID string, limit int) ([]domain.FundTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT fund_id, trade_id, trader_address, amount, created_at
		FROM fund_trades WHERE fund_id = ?
		ORDER BY created_at DESC LIMIT ?`, fundID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list fund trades: %w", err)
	}
	defer rows.Close()

	var out []domain.FundTrade
	for rows.Next() {
		var ft domain.FundTrade
		var createdAt string
		if err := rows.Scan(&ft.FundID, &ft.TradeID, &ft.TraderAddress, &ft.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan fund trade: %w", err)
		}
		ft.CreatedAt = parseTime(createdAt)
		out = append(out, ft)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFund(row rowScanner) (domain.Fund, error) {
	var f domain.Fund
	var createdAt string
	err := row.Scan(&f.ID, &f.OwnerAddress, &f.Name, &f.Description,
		&f.Active, &f.TotalAUM, &f.TotalShares, &createdAt)
	if err != nil {
		return domain.Fund{}, err
	}
	f.CreatedAt = parseTime(createdAt)
	return f, nil
}

var _ domain.FundStore = (*FundStore)(nil)
