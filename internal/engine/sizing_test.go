package engine

import (
	"testing"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

func testDefaults() domain.CopyDefaults {
	return domain.CopyDefaults{
		CopyPercentage: 0.10,
		MinCopySize:    5,
		MaxCopySize:    100,
		MaxDailySpend:  500,
		MaxTradeAge:    300 * time.Second,
		OrderMode:      domain.OrderModeMarket,
		MaxSlippage:    0.02,
	}
}

func testTrade(now time.Time) domain.UpstreamTrade {
	return domain.UpstreamTrade{
		Fingerprint: "0xabc",
		TokenID:     "tok",
		Side:        domain.SideBuy,
		Size:        1000,
		Price:       0.42,
		Timestamp:   now.Add(-10 * time.Second),
		Market:      "Will it happen?",
	}
}

func TestSizeTradeBasicPercentage(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	dec := SizeTrade(SizingInput{
		Trade:          testTrade(now), // 1000 shares at 0.42 = $420 notional
		Settings:       testDefaults(),
		GlobalDailyCap: 500,
		Now:            now,
	})

	if dec.Reject != "" {
		t.Fatalf("rejected: %s", dec.Reject)
	}
	if !dec.MarkSeen {
		t.Error("accepted trade must be marked seen")
	}
	if dec.Order.USD != 42.00 {
		t.Errorf("usd = %v, want 42.00", dec.Order.USD)
	}
	if dec.Order.Mode != domain.OrderModeMarket {
		t.Errorf("mode = %s", dec.Order.Mode)
	}
}

func TestSizeTradeLimitModeShares(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	s := testDefaults()
	s.OrderMode = domain.OrderModeLimit
	s.MaxSlippage = 0 // limit price equals the upstream price

	dec := SizeTrade(SizingInput{
		Trade:          testTrade(now),
		Settings:       s,
		GlobalDailyCap: 500,
		Now:            now,
	})

	if dec.Reject != "" {
		t.Fatalf("rejected: %s", dec.Reject)
	}
	if dec.Order.Mode != domain.OrderModeLimit {
		t.Fatalf("mode = %s", dec.Order.Mode)
	}
	if dec.Order.LimitPrice != 0.42 {
		t.Errorf("limit price = %v, want 0.42", dec.Order.LimitPrice)
	}
	// 42 USD at 0.42 buys exactly 100 shares.
	if dec.Order.Shares != 100 {
		t.Errorf("shares = %v, want 100", dec.Order.Shares)
	}
}

func TestSizeTradeLimitSlippage(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	cases := []struct {
		name  string
		side  domain.Side
		price float64
		slip  float64
		want  float64
	}{
		{"buy pays up", domain.SideBuy, 0.90, 0.05, 0.945},
		{"sell gives up", domain.SideSell, 0.90, 0.05, 0.855},
		{"clamped to 0.99", domain.SideBuy, 0.98, 0.05, 0.99},
		{"clamped to 0.01", domain.SideSell, 0.01, 0.05, 0.01},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := testDefaults()
			s.OrderMode = domain.OrderModeLimit
			s.MaxSlippage = tc.slip

			tr := testTrade(now)
			tr.Side = tc.side
			tr.Price = tc.price

			dec := SizeTrade(SizingInput{
				Trade: tr, Settings: s, GlobalDailyCap: 500, Now: now,
			})
			if dec.Reject != "" {
				t.Fatalf("rejected: %s", dec.Reject)
			}
			if got := dec.Order.LimitPrice; got < tc.want-1e-9 || got > tc.want+1e-9 {
				t.Errorf("limit price = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSizeTradeLimitModeWithoutPriceFallsBackToMarket(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	s := testDefaults()
	s.OrderMode = domain.OrderModeLimit

	tr := testTrade(now)
	tr.Price = 0
	tr.Size = 420 // no price: size is the USD notional

	dec := SizeTrade(SizingInput{Trade: tr, Settings: s, GlobalDailyCap: 500, Now: now})
	if dec.Reject != "" {
		t.Fatalf("rejected: %s", dec.Reject)
	}
	if dec.Order.Mode != domain.OrderModeMarket {
		t.Errorf("mode = %s, want market fallback", dec.Order.Mode)
	}
	if dec.Order.USD != 42.00 {
		t.Errorf("usd = %v", dec.Order.USD)
	}
}

func TestSizeTradeRejectionOrder(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	// already_seen wins even when every other check would also fail.
	stale := testTrade(now)
	stale.Timestamp = now.Add(-time.Hour)
	stale.TokenID = ""
	dec := SizeTrade(SizingInput{
		Trade: stale, Settings: testDefaults(), AlreadySeen: true, GlobalDailyCap: 500, Now: now,
	})
	if dec.Reject != RejectAlreadySeen {
		t.Errorf("reject = %s, want already_seen", dec.Reject)
	}
	if dec.MarkSeen {
		t.Error("already-seen trade must not be re-marked")
	}

	// too_old comes before no_token.
	dec = SizeTrade(SizingInput{
		Trade: stale, Settings: testDefaults(), GlobalDailyCap: 500, Now: now,
	})
	if dec.Reject != RejectTooOld {
		t.Errorf("reject = %s, want too_old", dec.Reject)
	}
	if !dec.MarkSeen {
		t.Error("stale trade must be marked seen")
	}
}

func TestSizeTradeAgeBoundary(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	s := testDefaults() // max age 300s

	tr := testTrade(now)
	tr.Timestamp = now.Add(-300 * time.Second)
	if dec := SizeTrade(SizingInput{Trade: tr, Settings: s, GlobalDailyCap: 500, Now: now}); dec.Reject != "" {
		t.Errorf("age exactly at the limit rejected: %s", dec.Reject)
	}

	tr.Timestamp = now.Add(-301 * time.Second)
	if dec := SizeTrade(SizingInput{Trade: tr, Settings: s, GlobalDailyCap: 500, Now: now}); dec.Reject != RejectTooOld {
		t.Errorf("reject = %s, want too_old", dec.Reject)
	}
}

func TestSizeTradeNoTokenAndInvalidSide(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tr := testTrade(now)
	tr.TokenID = ""
	if dec := SizeTrade(SizingInput{Trade: tr, Settings: testDefaults(), GlobalDailyCap: 500, Now: now}); dec.Reject != RejectNoToken || !dec.MarkSeen {
		t.Errorf("decision = %+v, want no_token + mark seen", dec)
	}

	tr = testTrade(now)
	tr.Side = "MERGE"
	if dec := SizeTrade(SizingInput{Trade: tr, Settings: testDefaults(), GlobalDailyCap: 500, Now: now}); dec.Reject != RejectInvalidSide || !dec.MarkSeen {
		t.Errorf("decision = %+v, want invalid_side + mark seen", dec)
	}
}

func TestSizeTradeDailyLimits(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	// Global budget exhausted.
	dec := SizeTrade(SizingInput{
		Trade: testTrade(now), Settings: testDefaults(),
		DailySpendGlobal: 500, GlobalDailyCap: 500, Now: now,
	})
	if dec.Reject != RejectGlobalDailyLimit {
		t.Errorf("reject = %s, want global_daily_limit", dec.Reject)
	}
	if dec.MarkSeen {
		t.Error("budget rejection must not mark seen")
	}

	// Per-trader budget exhausted, global still open.
	s := testDefaults()
	s.MaxDailySpend = 50
	dec = SizeTrade(SizingInput{
		Trade: testTrade(now), Settings: s,
		DailySpendGlobal: 100, DailySpendTrader: 50, GlobalDailyCap: 500, Now: now,
	})
	if dec.Reject != RejectTraderDailyLimit {
		t.Errorf("reject = %s, want trader_daily_limit", dec.Reject)
	}

	// Remaining budget caps the order below the percentage size.
	dec = SizeTrade(SizingInput{
		Trade: testTrade(now), Settings: testDefaults(),
		DailySpendGlobal: 470, GlobalDailyCap: 500, Now: now,
	})
	if dec.Reject != "" {
		t.Fatalf("rejected: %s", dec.Reject)
	}
	if dec.Order.USD != 30.00 {
		t.Errorf("usd = %v, want 30.00 (remaining budget)", dec.Order.USD)
	}
}

func TestSizeTradeMinMaxClamp(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	small := testTrade(now)
	small.Size = 10 // $4.20 notional, 10% is under the minimum
	dec := SizeTrade(SizingInput{Trade: small, Settings: testDefaults(), GlobalDailyCap: 500, Now: now})
	if dec.Order == nil || dec.Order.USD != 5.00 {
		t.Errorf("decision = %+v, want min clamp 5.00", dec)
	}

	big := testTrade(now)
	big.Size = 10000 // $4200 notional, 10% is over the maximum
	dec = SizeTrade(SizingInput{Trade: big, Settings: testDefaults(), GlobalDailyCap: 500, Now: now})
	if dec.Order == nil || dec.Order.USD != 100.00 {
		t.Errorf("decision = %+v, want max clamp 100.00", dec)
	}
}

func TestSizeTradeZeroSize(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	dec := SizeTrade(SizingInput{
		Trade: testTrade(now), Settings: testDefaults(),
		DailySpendGlobal: 499.996, GlobalDailyCap: 500, Now: now,
	})
	if dec.Reject != RejectZeroSize {
		t.Errorf("reject = %s, want zero_size", dec.Reject)
	}
	if !dec.MarkSeen {
		t.Error("zero-size trade must be marked seen")
	}
}
