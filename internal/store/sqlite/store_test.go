package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return c
}

func TestMigrationsIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	if err := c.RunMigrations(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestUserStoreUpsertAndRole(t *testing.T) {
	t.Parallel()

	s := NewUserStore(newTestClient(t))
	ctx := context.Background()

	u, err := s.UpsertUser(ctx, "0xABC", domain.RoleOwner)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.Address != "0xabc" {
		t.Errorf("address not normalized: %q", u.Address)
	}
	if u.Role != domain.RoleOwner {
		t.Errorf("role = %q, want owner", u.Role)
	}

	// A later login as plain user must not downgrade the owner.
	u, err = s.UpsertUser(ctx, "0xabc", domain.RoleUser)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if u.Role != domain.RoleOwner {
		t.Errorf("owner downgraded to %q", u.Role)
	}
	if u.LastLogin == nil {
		t.Error("last login not set")
	}

	if _, err := s.GetUser(ctx, "0xmissing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get missing: %v, want ErrNotFound", err)
	}
}

func TestUserStoreNonceOneShot(t *testing.T) {
	t.Parallel()

	s := NewUserStore(newTestClient(t))
	ctx := context.Background()

	nonce, err := s.CreateNonce(ctx)
	if err != nil {
		t.Fatalf("create nonce: %v", err)
	}

	ok, err := s.ConsumeNonce(ctx, nonce)
	if err != nil || !ok {
		t.Fatalf("first consume: ok=%v err=%v", ok, err)
	}
	ok, err = s.ConsumeNonce(ctx, nonce)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if ok {
		t.Error("nonce consumed twice")
	}
	if ok, _ := s.ConsumeNonce(ctx, "never-issued"); ok {
		t.Error("unknown nonce accepted")
	}
}

func TestUserStoreWhitelist(t *testing.T) {
	t.Parallel()

	s := NewUserStore(newTestClient(t))
	ctx := context.Background()

	if err := s.AddWhitelist(ctx, "0xAAA", "0xowner"); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Re-adding is a no-op.
	if err := s.AddWhitelist(ctx, "0xaaa", "0xowner"); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	ok, err := s.IsWhitelisted(ctx, "0xAaA")
	if err != nil || !ok {
		t.Fatalf("is whitelisted: ok=%v err=%v", ok, err)
	}

	entries, err := s.ListWhitelist(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}

	if err := s.RemoveWhitelist(ctx, "0xaaa"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveWhitelist(ctx, "0xaaa"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("remove again: %v, want ErrNotFound", err)
	}
}

func TestUserStoreOwnerNotRemovable(t *testing.T) {
	t.Parallel()

	s := NewUserStore(newTestClient(t))
	ctx := context.Background()

	if _, err := s.UpsertUser(ctx, "0xboss", domain.RoleOwner); err != nil {
		t.Fatalf("upsert owner: %v", err)
	}
	if err := s.AddWhitelist(ctx, "0xboss", "0xboss"); err != nil {
		t.Fatalf("add: %v", err)
	}

	err := s.RemoveWhitelist(ctx, "0xboss")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("remove owner: %v, want ErrForbidden", err)
	}
	if ok, _ := s.IsWhitelisted(ctx, "0xboss"); !ok {
		t.Error("owner fell off the whitelist")
	}
}

func TestTradeStoreDailySpendCountsExecutedOnly(t *testing.T) {
	t.Parallel()

	s := NewTradeStore(newTestClient(t))
	ctx := context.Background()

	record := func(amount float64, status domain.TradeStatus, trader string) {
		t.Helper()
		_, err := s.RecordTrade(ctx, domain.Trade{
			UserAddress: "0xme",
			Strategy:    domain.StrategyCopy,
			TokenID:     "tok1",
			Side:        domain.SideBuy,
			Amount:      amount,
			Price:       0.5,
			CopiedFrom:  trader,
			Status:      status,
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	record(40, domain.TradeExecuted, "0xt1")
	record(60, domain.TradeExecuted, "0xt2")
	record(999, domain.TradeFailed, "0xt1")
	record(999, domain.TradeDryRun, "0xt1")

	total, err := s.DailyExecutedSpend(ctx, "0xme", domain.StrategyCopy, "")
	if err != nil {
		t.Fatalf("daily spend: %v", err)
	}
	if total != 100 {
		t.Errorf("daily spend = %v, want 100", total)
	}

	perTrader, err := s.DailyExecutedSpend(ctx, "0xme", domain.StrategyCopy, "0xT1")
	if err != nil {
		t.Fatalf("per-trader spend: %v", err)
	}
	if perTrader != 40 {
		t.Errorf("per-trader spend = %v, want 40", perTrader)
	}
}

func TestTradeStoreListAndFilter(t *testing.T) {
	t.Parallel()

	s := NewTradeStore(newTestClient(t))
	ctx := context.Background()

	for _, tr := range []domain.Trade{
		{UserAddress: "0xme", Strategy: domain.StrategyCopy, TokenID: "aaa", Side: domain.SideBuy, Amount: 10, Market: "Will it rain", Status: domain.TradeExecuted},
		{UserAddress: "0xme", Strategy: domain.StrategyArbitrage, TokenID: "bbb", Side: domain.SideBuy, Amount: 20, Market: "Election", Status: domain.TradeExecuted},
		{UserAddress: "0xother", Strategy: domain.StrategyCopy, TokenID: "ccc", Side: domain.SideSell, Amount: 30, Status: domain.TradeFailed},
	} {
		if _, err := s.RecordTrade(ctx, tr); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.ListTrades(ctx, domain.TradeFilter{UserAddress: "0xme"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("user filter: len = %d, want 2", len(got))
	}

	got, err = s.ListTrades(ctx, domain.TradeFilter{Search: "rain"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Market != "Will it rain" {
		t.Errorf("search filter: %+v", got)
	}

	got, err = s.ListTrades(ctx, domain.TradeFilter{Status: domain.TradeFailed})
	if err != nil {
		t.Fatalf("status filter: %v", err)
	}
	if len(got) != 1 || got[0].UserAddress != "0xother" {
		t.Errorf("status filter: %+v", got)
	}
}

func TestTradeStoreCountByFingerprint(t *testing.T) {
	t.Parallel()

	s := NewTradeStore(newTestClient(t))
	ctx := context.Background()

	if _, err := s.RecordTrade(ctx, domain.Trade{
		UserAddress: "0xme", Strategy: domain.StrategyCopy, TokenID: "t",
		Side: domain.SideBuy, Amount: 5, OriginalTradeID: "fp-1",
		Status: domain.TradeExecuted,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	n, err := s.CountByFingerprint(ctx, "0xme", "fp-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if n, _ := s.CountByFingerprint(ctx, "0xother", "fp-1"); n != 0 {
		t.Errorf("other user count = %d, want 0", n)
	}
}

func TestTraderStoreFollowLifecycle(t *testing.T) {
	t.Parallel()

	s := NewTraderStore(newTestClient(t))
	ctx := context.Background()

	created, err := s.AddFollow(ctx, "0xme", "0xTRADER", "whale")
	if err != nil || !created {
		t.Fatalf("add: created=%v err=%v", created, err)
	}

	if err := s.IncrementFollowCounters(ctx, "0xme", "0xtrader", 42.5); err != nil {
		t.Fatalf("increment: %v", err)
	}

	removed, err := s.RemoveFollow(ctx, "0xme", "0xtrader")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	if removed, _ := s.RemoveFollow(ctx, "0xme", "0xtrader"); removed {
		t.Error("removed an inactive follow")
	}

	// Re-adding reactivates and keeps counters.
	created, err = s.AddFollow(ctx, "0xme", "0xtrader", "")
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if created {
		t.Error("re-add reported a new row")
	}

	follows, err := s.ListFollows(ctx, "0xme", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(follows) != 1 {
		t.Fatalf("len = %d, want 1", len(follows))
	}
	f := follows[0]
	if f.TotalCopied != 1 || f.TotalSpent != 42.5 {
		t.Errorf("counters lost on reactivate: copied=%d spent=%v", f.TotalCopied, f.TotalSpent)
	}
	if f.Alias != "whale" {
		t.Errorf("alias = %q, want whale", f.Alias)
	}
}

func TestTraderStoreOverrides(t *testing.T) {
	t.Parallel()

	s := NewTraderStore(newTestClient(t))
	ctx := context.Background()

	if _, err := s.AddFollow(ctx, "0xme", "0xt", ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	pct := 0.25
	mode := domain.OrderModeMarket
	err := s.UpdateFollowOverrides(ctx, "0xme", "0xt", domain.TraderOverrides{
		CopyPercentage: &pct,
		OrderMode:      &mode,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	follows, err := s.ListFollows(ctx, "0xme", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	f := follows[0]
	if f.CopyPercentage == nil || *f.CopyPercentage != 0.25 {
		t.Errorf("copy percentage override not stored: %+v", f.CopyPercentage)
	}
	if f.OrderMode == nil || *f.OrderMode != domain.OrderModeMarket {
		t.Errorf("order mode override not stored: %+v", f.OrderMode)
	}
	if f.MinCopySize != nil {
		t.Error("untouched override became non-nil")
	}

	err = s.UpdateFollowOverrides(ctx, "0xme", "0xnobody", domain.TraderOverrides{CopyPercentage: &pct})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown follow: %v, want ErrNotFound", err)
	}
}

func TestDedupStore(t *testing.T) {
	t.Parallel()

	s := NewDedupStore(newTestClient(t))
	ctx := context.Background()

	if err := s.MarkSeen(ctx, "fp-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.MarkSeen(ctx, "fp-1"); err != nil {
		t.Fatalf("re-mark: %v", err)
	}

	seen, err := s.IsSeen(ctx, "fp-1")
	if err != nil || !seen {
		t.Fatalf("is seen: seen=%v err=%v", seen, err)
	}
	if seen, _ := s.IsSeen(ctx, "fp-2"); seen {
		t.Error("unknown fingerprint reported seen")
	}

	// Nothing is old enough to expire yet.
	n, err := s.ExpireSeen(ctx, time.Hour)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 0 {
		t.Errorf("expired %d fresh fingerprints", n)
	}

	// With a zero horizon everything goes.
	n, err = s.ExpireSeen(ctx, -time.Second)
	if err != nil {
		t.Fatalf("expire all: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d, want 1", n)
	}
	if seen, _ := s.IsSeen(ctx, "fp-1"); seen {
		t.Error("fingerprint survived expiry")
	}
}

func TestPositionStoreOpenAddReduceClose(t *testing.T) {
	t.Parallel()

	s := NewPositionStore(newTestClient(t))
	ctx := context.Background()

	// Open: $50 at 0.50 = 100 shares.
	if err := s.UpsertPosition(ctx, "0xme", "tok", "Market", domain.SideBuy, 50, 0.50, domain.StrategyCopy, "0xt"); err != nil {
		t.Fatalf("open: %v", err)
	}
	// Add: $30 at 0.60 = 50 shares. 150 shares, $80 cost, avg 0.5333.
	if err := s.UpsertPosition(ctx, "0xme", "tok", "Market", domain.SideBuy, 30, 0.60, domain.StrategyCopy, "0xt"); err != nil {
		t.Fatalf("add: %v", err)
	}

	open, err := s.ListOpenPositions(ctx, "0xme")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("len = %d, want 1", len(open))
	}
	p := open[0]
	if math.Abs(p.Size-150) > 1e-9 {
		t.Errorf("size = %v, want 150", p.Size)
	}
	if math.Abs(p.CostBasis-80) > 1e-9 {
		t.Errorf("cost = %v, want 80", p.CostBasis)
	}
	if math.Abs(p.AvgEntryPrice-80.0/150.0) > 1e-9 {
		t.Errorf("avg = %v, want %v", p.AvgEntryPrice, 80.0/150.0)
	}

	// Reduce: sell $70 at 0.70 = 100 shares. 50 left, avg unchanged,
	// cost scaled to 80 * 50/150.
	if err := s.UpsertPosition(ctx, "0xme", "tok", "Market", domain.SideSell, 70, 0.70, domain.StrategyCopy, "0xt"); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	open, _ = s.ListOpenPositions(ctx, "0xme")
	if len(open) != 1 {
		t.Fatalf("after reduce len = %d, want 1", len(open))
	}
	p = open[0]
	if math.Abs(p.Size-50) > 1e-9 {
		t.Errorf("size after reduce = %v, want 50", p.Size)
	}
	if math.Abs(p.AvgEntryPrice-80.0/150.0) > 1e-9 {
		t.Errorf("avg changed on reduce: %v", p.AvgEntryPrice)
	}
	if math.Abs(p.CostBasis-80.0/3.0) > 1e-6 {
		t.Errorf("cost after reduce = %v, want %v", p.CostBasis, 80.0/3.0)
	}

	// Sell the rest: position closes.
	if err := s.UpsertPosition(ctx, "0xme", "tok", "Market", domain.SideSell, 35, 0.70, domain.StrategyCopy, "0xt"); err != nil {
		t.Fatalf("close: %v", err)
	}
	open, _ = s.ListOpenPositions(ctx, "0xme")
	if len(open) != 0 {
		t.Errorf("position still open: %+v", open)
	}
	closed, err := s.ListClosedPositions(ctx, "0xme", 10)
	if err != nil {
		t.Fatalf("closed: %v", err)
	}
	if len(closed) != 1 || closed[0].Size != 0 {
		t.Errorf("closed positions: %+v", closed)
	}
}

func TestPositionStoreBatchUpdatePrices(t *testing.T) {
	t.Parallel()

	s := NewPositionStore(newTestClient(t))
	ctx := context.Background()

	if err := s.UpsertPosition(ctx, "0xme", "tok", "M", domain.SideBuy, 50, 0.50, domain.StrategyCopy, ""); err != nil {
		t.Fatalf("open: %v", err)
	}
	open, _ := s.ListAllOpenPositions(ctx)
	if len(open) != 1 {
		t.Fatalf("len = %d, want 1", len(open))
	}

	err := s.BatchUpdatePrices(ctx, []domain.PriceUpdate{{PositionID: open[0].ID, Price: 0.65}})
	if err != nil {
		t.Fatalf("batch update: %v", err)
	}

	p, err := s.GetPosition(ctx, open[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.CurrentPrice != 0.65 {
		t.Errorf("price = %v, want 0.65", p.CurrentPrice)
	}
	// LONG pnl = (0.65 - 0.50) * 100 shares.
	if math.Abs(p.UnrealizedPnL-15) > 1e-6 {
		t.Errorf("pnl = %v, want 15", p.UnrealizedPnL)
	}
}

func TestFundStoreInvestWithdrawNAV(t *testing.T) {
	t.Parallel()

	s := NewFundStore(newTestClient(t))
	ctx := context.Background()

	f, err := s.CreateFund(ctx, domain.Fund{OwnerAddress: "0xboss", Name: "Alpha", Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// First investment at NAV 1.0.
	inv, err := s.Invest(ctx, f.ID, "0xinv", 100)
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	if math.Abs(inv.Shares-100) > 1e-9 {
		t.Errorf("shares = %v, want 100", inv.Shares)
	}

	// Simulate gains: AUM grows to 150, NAV becomes 1.5.
	f, _ = s.GetFund(ctx, f.ID)
	f.TotalAUM = 150
	if err := s.UpdateFund(ctx, f); err != nil {
		t.Fatalf("update: %v", err)
	}

	inv2, err := s.Invest(ctx, f.ID, "0xinv2", 75)
	if err != nil {
		t.Fatalf("second invest: %v", err)
	}
	if math.Abs(inv2.Shares-50) > 1e-9 {
		t.Errorf("shares at NAV 1.5 = %v, want 50", inv2.Shares)
	}

	// Wrong investor cannot withdraw.
	if _, err := s.Withdraw(ctx, inv.ID, "0xinv2"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("foreign withdraw: %v, want ErrForbidden", err)
	}

	payout, err := s.Withdraw(ctx, inv.ID, "0xinv")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if math.Abs(payout-150) > 1e-9 {
		t.Errorf("payout = %v, want 150", payout)
	}

	// Second withdraw of the same stake is refused.
	if _, err := s.Withdraw(ctx, inv.ID, "0xinv"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("double withdraw: %v, want ErrConflict", err)
	}

	f, _ = s.GetFund(ctx, f.ID)
	if math.Abs(f.TotalAUM-75) > 1e-9 || math.Abs(f.TotalShares-50) > 1e-9 {
		t.Errorf("fund after withdraw: aum=%v shares=%v", f.TotalAUM, f.TotalShares)
	}
}

func TestFundStoreAllocationsInvariant(t *testing.T) {
	t.Parallel()

	s := NewFundStore(newTestClient(t))
	ctx := context.Background()

	f, err := s.CreateFund(ctx, domain.Fund{OwnerAddress: "0xboss", Name: "Alpha", Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = s.ReplaceAllocations(ctx, f.ID, []domain.FundAllocation{
		{TraderAddress: "0xa", Weight: 0.5, Active: true},
		{TraderAddress: "0xb", Weight: 0.3, Active: true},
	})
	if !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("bad weights accepted: %v", err)
	}

	err = s.ReplaceAllocations(ctx, f.ID, []domain.FundAllocation{
		{TraderAddress: "0xa", Weight: 0.6, Active: true},
		{TraderAddress: "0xb", Weight: 0.4, Active: true},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	allocs, err := s.ListAllocations(ctx, f.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(allocs) != 2 || allocs[0].Weight != 0.6 {
		t.Errorf("allocations: %+v", allocs)
	}

	// Tolerance boundary: a sum of 1.01 is inside, 1.02 is outside.
	err = s.ReplaceAllocations(ctx, f.ID, []domain.FundAllocation{
		{TraderAddress: "0xa", Weight: 0.51, Active: true},
		{TraderAddress: "0xb", Weight: 0.50, Active: true},
	})
	if err != nil {
		t.Errorf("sum 1.01 rejected: %v", err)
	}

	err = s.ReplaceAllocations(ctx, f.ID, []domain.FundAllocation{
		{TraderAddress: "0xa", Weight: 0.52, Active: true},
		{TraderAddress: "0xb", Weight: 0.50, Active: true},
	})
	if !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("sum 1.02 accepted: %v", err)
	}
}

func TestPrefStoreMerge(t *testing.T) {
	t.Parallel()

	s := NewPrefStore(newTestClient(t))
	ctx := context.Background()

	got, err := s.GetPreferences(ctx, "0xme")
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("fresh prefs not empty: %+v", got)
	}

	got, err = s.MergePreferences(ctx, "0xme", domain.Preferences{"theme": "dark", "limit": 5.0})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got["theme"] != "dark" {
		t.Errorf("theme = %v", got["theme"])
	}

	// Overlay one key, delete another.
	got, err = s.MergePreferences(ctx, "0xme", domain.Preferences{"theme": "light", "limit": nil})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if got["theme"] != "light" {
		t.Errorf("theme = %v, want light", got["theme"])
	}
	if _, ok := got["limit"]; ok {
		t.Error("nil value did not delete key")
	}
}

func TestPrefStoreCredsPartialUpdate(t *testing.T) {
	t.Parallel()

	s := NewPrefStore(newTestClient(t))
	ctx := context.Background()

	if _, err := s.GetCreds(ctx, "0xme"); !errors.Is(err, domain.ErrNoCredentials) {
		t.Fatalf("missing creds: %v, want ErrNoCredentials", err)
	}

	if err := s.SaveCreds(ctx, domain.APICredentials{
		Address: "0xme", APIKey: "key1", Secret: "enc-secret", Passphrase: "enc-pass",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Rotate only the key; secret and passphrase survive.
	if err := s.SaveCreds(ctx, domain.APICredentials{Address: "0xme", APIKey: "key2"}); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	c, err := s.GetCreds(ctx, "0xme")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.APIKey != "key2" || c.Secret != "enc-secret" || c.Passphrase != "enc-pass" {
		t.Errorf("partial update broke fields: %+v", c)
	}

	if err := s.DeleteCreds(ctx, "0xme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetCreds(ctx, "0xme"); !errors.Is(err, domain.ErrNoCredentials) {
		t.Errorf("after delete: %v, want ErrNoCredentials", err)
	}
}

func TestEventStoreRecordAndFilter(t *testing.T) {
	t.Parallel()

	s := NewEventStore(newTestClient(t))
	ctx := context.Background()

	for _, e := range []domain.EngineEvent{
		{UserAddress: "0xme", Strategy: domain.StrategyCopy, EventType: domain.EventTradeExecuted, Message: "copied", Details: map[string]any{"amount": 42.0}},
		{UserAddress: "0xme", Strategy: domain.StrategyArbitrage, EventType: domain.EventPartialArb, Message: "one leg"},
		{UserAddress: "0xother", Strategy: domain.StrategyCopy, EventType: domain.EventTradeExecuted},
	} {
		if err := s.RecordEvent(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.ListEvents(ctx, domain.EventFilter{UserAddress: "0xme"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("user filter: len = %d, want 2", len(got))
	}

	got, err = s.ListEvents(ctx, domain.EventFilter{EventType: domain.EventPartialArb})
	if err != nil {
		t.Fatalf("type filter: %v", err)
	}
	if len(got) != 1 || got[0].Message != "one leg" {
		t.Errorf("type filter: %+v", got)
	}

	got, err = s.ListEvents(ctx, domain.EventFilter{UserAddress: "0xme", EventType: domain.EventTradeExecuted})
	if err != nil {
		t.Fatalf("combined filter: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("combined filter: len = %d, want 1", len(got))
	}
	if got[0].Details["amount"] != 42.0 {
		t.Errorf("details lost: %+v", got[0].Details)
	}
	if got[0].ID == "" {
		t.Error("id not generated")
	}
}

func TestClaimLegacyData(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	users := NewUserStore(c)
	trades := NewTradeStore(c)
	ctx := context.Background()

	// Simulate a pre-multi-user row.
	if _, err := c.DB().ExecContext(ctx, `
		INSERT INTO trades (user_address, strategy, token_id, side, amount, status)
		VALUES ('legacy', 'copy', 'tok', 'BUY', 10, 'executed')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := users.ClaimLegacyData(ctx, "0xboss"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, err := trades.ListTrades(ctx, domain.TradeFilter{UserAddress: "0xboss"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("legacy trade not claimed: %+v", got)
	}
}
