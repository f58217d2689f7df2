package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

const (
	// fundAUMCapPct caps a single fund trade at this share of the fund's AUM.
	fundAUMCapPct = 0.05

	// navSnapshotEvery is the poll-iteration period for NAV snapshots.
	navSnapshotEvery = 10
)

// FundEngine mirrors allocated traders for every active fund. A single
// global instance serves all funds; trades are booked against each fund
// owner's wallet and linked back to the fund.
type FundEngine struct {
	defaults     domain.CopyDefaults
	pollInterval time.Duration
	dryRun       bool
	fetchLimit   int

	feed     TradeFeed
	exchange Exchange
	st       Stores
	notifier Notifier
	logger   *slog.Logger

	now func() time.Time
}

// NewFundEngine creates the global fund engine. notifier may be nil.
func NewFundEngine(defaults domain.CopyDefaults, pollInterval time.Duration, dryRun bool, feed TradeFeed, exchange Exchange, st Stores, notifier Notifier, logger *slog.Logger) *FundEngine {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &FundEngine{
		defaults:     defaults,
		pollInterval: pollInterval,
		dryRun:       dryRun,
		fetchLimit:   defaultFetchLimit,
		feed:         feed,
		exchange:     exchange,
		st:           st,
		notifier:     notifier,
		logger:       logger.With("component", "fund"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// fundFingerprint scopes an upstream fingerprint to one fund, so two funds
// allocated to the same trader each get their own copy.
func fundFingerprint(fundID, fp string) string {
	return "fund:" + fundID + ":" + fp
}

// Run executes the poll loop until ctx is cancelled. Like the copy engine,
// the first pass marks visible history as seen without trading.
func (e *FundEngine) Run(ctx context.Context) error {
	e.bootstrap(ctx)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	iteration := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		iteration++
		e.poll(ctx)

		if iteration%navSnapshotEvery == 0 {
			e.snapshotNAV(ctx)
		}
	}
}

func (e *FundEngine) bootstrap(ctx context.Context) {
	funds, err := e.st.Funds.ListFunds(ctx, true)
	if err != nil {
		e.logger.Error("bootstrap: list funds", "error", err)
		return
	}

	marked := 0
	for _, f := range funds {
		allocs, err := e.st.Funds.ListAllocations(ctx, f.ID)
		if err != nil {
			e.logger.Warn("bootstrap: list allocations", "fund", f.ID, "error", err)
			continue
		}
		for _, a := range allocs {
			if !a.Active {
				continue
			}
			trades, err := e.feed.GetTraderTrades(ctx, a.TraderAddress, e.fetchLimit)
			if err != nil {
				e.logger.Warn("bootstrap: fetch trades", "trader", a.TraderAddress, "error", err)
				continue
			}
			for _, t := range trades {
				if err := e.st.Dedup.MarkSeen(ctx, fundFingerprint(f.ID, t.Fingerprint)); err == nil {
					marked++
				}
			}
		}
	}
	e.logger.Info("bootstrap complete", "funds", len(funds), "marked", marked)
}

func (e *FundEngine) poll(ctx context.Context) {
	funds, err := e.st.Funds.ListFunds(ctx, true)
	if err != nil {
		e.logger.Error("list funds", "error", err)
		return
	}

	for _, f := range funds {
		if ctx.Err() != nil {
			return
		}
		if f.TotalAUM <= 0 {
			continue
		}
		e.pollFund(ctx, f)
	}
}

func (e *FundEngine) pollFund(ctx context.Context, f domain.Fund) {
	allocs, err := e.st.Funds.ListAllocations(ctx, f.ID)
	if err != nil {
		e.logger.Warn("list allocations", "fund", f.ID, "error", err)
		return
	}

	for _, a := range allocs {
		if ctx.Err() != nil {
			return
		}
		if !a.Active {
			continue
		}

		trades, err := e.feed.GetTraderTrades(ctx, a.TraderAddress, e.fetchLimit)
		if err != nil {
			e.logger.Warn("fetch trades", "trader", a.TraderAddress, "error", err)
			continue
		}
		for _, t := range trades {
			if ctx.Err() != nil {
				return
			}
			e.process(ctx, f, a, t)
		}
	}
}

// process sizes and executes one upstream trade for one fund allocation.
func (e *FundEngine) process(ctx context.Context, f domain.Fund, a domain.FundAllocation, t domain.UpstreamTrade) {
	fp := fundFingerprint(f.ID, t.Fingerprint)

	seen, err := e.st.Dedup.IsSeen(ctx, fp)
	if err != nil {
		e.logger.Error("dedup lookup", "error", err)
		return
	}
	if seen {
		return
	}

	markSeen := func() {
		if err := e.st.Dedup.MarkSeen(ctx, fp); err != nil {
			e.logger.Warn("mark seen", "error", err)
		}
	}

	if !t.Timestamp.IsZero() && t.Age(e.now()) > e.defaults.MaxTradeAge {
		markSeen()
		return
	}
	if t.TokenID == "" || !t.Side.Valid() {
		markSeen()
		return
	}

	// Per-trade size scales with the allocation weight and is capped at a
	// fixed fraction of AUM so one upstream whale cannot drain the fund.
	usd := t.USDValue() * e.defaults.CopyPercentage * a.Weight
	limit := e.defaults.MaxCopySize
	if aumCap := f.TotalAUM * fundAUMCapPct; aumCap < limit {
		limit = aumCap
	}
	if usd > limit {
		usd = limit
	}
	usd = round2(usd)
	if usd <= 0 {
		markSeen()
		return
	}

	markSeen()
	e.execute(ctx, f, a, t, usd)
}

func (e *FundEngine) execute(ctx context.Context, f domain.Fund, a domain.FundAllocation, t domain.UpstreamTrade, usd float64) {
	trade := domain.Trade{
		Timestamp:       e.now(),
		UserAddress:     f.OwnerAddress,
		Strategy:        domain.StrategyFund,
		TokenID:         t.TokenID,
		Side:            t.Side,
		Amount:          usd,
		Price:           t.Price,
		Market:          t.Market,
		CopiedFrom:      a.TraderAddress,
		OriginalTradeID: t.Fingerprint,
		Notes:           f.ID,
	}

	if e.dryRun {
		trade.Status = domain.TradeDryRun
		if id, err := e.st.Trades.RecordTrade(ctx, trade); err != nil {
			e.logger.Error("record dry-run trade", "error", err)
		} else {
			e.linkFundTrade(ctx, f.ID, id, a.TraderAddress, usd)
		}
		return
	}

	res, err := e.exchange.PlaceMarketOrder(ctx, t.TokenID, t.Side, usd)
	if err != nil || !res.Success {
		trade.Status = domain.TradeFailed
		if err != nil {
			trade.Notes = err.Error()
		} else {
			trade.Notes = res.Message
		}
		if _, rerr := e.st.Trades.RecordTrade(ctx, trade); rerr != nil {
			e.logger.Error("record failed trade", "error", rerr)
		}
		e.logger.Warn("fund order failed", "fund", f.ID, "trader", a.TraderAddress, "error", err)
		e.recordEvent(ctx, f, domain.EventTradeFailed,
			fmt.Sprintf("fund %s copy from %s failed", f.Name, a.TraderAddress),
			map[string]any{"fund": f.ID, "trader": a.TraderAddress, "usd": usd})
		return
	}

	trade.Status = domain.TradeExecuted
	id, err := e.st.Trades.RecordTrade(ctx, trade)
	if err != nil {
		e.logger.Error("record executed trade", "error", err)
	} else {
		e.linkFundTrade(ctx, f.ID, id, a.TraderAddress, usd)
	}

	if t.Price > 0 {
		if err := e.st.Positions.UpsertPosition(ctx, f.OwnerAddress, t.TokenID, t.Market, t.Side, usd, t.Price, domain.StrategyFund, a.TraderAddress); err != nil {
			e.logger.Error("upsert position", "error", err)
		}
	}

	e.logger.Info("fund copy executed",
		"fund", f.ID, "trader", a.TraderAddress, "side", t.Side, "usd", usd)
	ev := e.recordEvent(ctx, f, domain.EventTradeExecuted,
		fmt.Sprintf("fund %s copied %s %s $%.2f from %s", f.Name, t.Side, t.Market, usd, a.TraderAddress),
		map[string]any{"fund": f.ID, "trader": a.TraderAddress, "usd": usd, "order_id": res.OrderID})
	e.notifier.Notify(ctx, ev)
}

func (e *FundEngine) linkFundTrade(ctx context.Context, fundID string, tradeID int64, trader string, usd float64) {
	ft := domain.FundTrade{
		FundID:        fundID,
		TradeID:       tradeID,
		TraderAddress: trader,
		Amount:        usd,
		CreatedAt:     e.now(),
	}
	if err := e.st.Funds.RecordFundTrade(ctx, ft); err != nil {
		e.logger.Warn("link fund trade", "fund", fundID, "error", err)
	}
}

// snapshotNAV upserts today's performance row for every active fund.
func (e *FundEngine) snapshotNAV(ctx context.Context) {
	funds, err := e.st.Funds.ListFunds(ctx, true)
	if err != nil {
		e.logger.Warn("list funds", "error", err)
		return
	}

	for _, f := range funds {
		nav := f.NAV()
		today := e.now().Format("2006-01-02")

		daily := 0.0
		if prev, err := e.st.Funds.ListPerformance(ctx, f.ID, 7); err == nil {
			for _, p := range prev {
				if p.Date != today && p.NAV > 0 {
					daily = (nav/p.NAV - 1) * 100
					break
				}
			}
		}

		perf := domain.FundPerformance{
			FundID:           f.ID,
			Date:             today,
			NAV:              nav,
			DailyReturn:      round2(daily),
			CumulativeReturn: round2((nav - 1.0) * 100),
		}
		if err := e.st.Funds.RecordPerformance(ctx, perf); err != nil {
			e.logger.Warn("record performance", "fund", f.ID, "error", err)
			continue
		}
		e.recordEvent(ctx, f, domain.EventNAVUpdated,
			fmt.Sprintf("fund %s NAV %.4f", f.Name, nav),
			map[string]any{"fund": f.ID, "nav": nav, "daily_return": perf.DailyReturn})
	}
}

func (e *FundEngine) recordEvent(ctx context.Context, f domain.Fund, eventType, message string, details map[string]any) domain.EngineEvent {
	ev := domain.EngineEvent{
		UserAddress: f.OwnerAddress,
		Strategy:    domain.StrategyFund,
		EventType:   eventType,
		Message:     message,
		Details:     details,
	}
	if err := e.st.Events.RecordEvent(ctx, ev); err != nil {
		e.logger.Warn("record event", "type", eventType, "error", err)
	}
	return ev
}
