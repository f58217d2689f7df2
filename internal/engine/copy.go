package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/platform/polymarket"
)

const (
	// defaultFetchLimit bounds how many recent trades are pulled per wallet
	// per poll.
	defaultFetchLimit = 50

	// maintenanceEvery is the poll-iteration period for dedup expiry and the
	// periodic stats event.
	maintenanceEvery = 20

	// dedupRetention is how long seen fingerprints are kept. Anything older
	// is also far past every max_trade_age, so expiry cannot resurrect a
	// copyable trade.
	dedupRetention = 7 * 24 * time.Hour
)

// Stores bundles the persistence interfaces the engines share.
type Stores struct {
	Trades    domain.TradeStore
	Traders   domain.TraderStore
	Dedup     domain.DedupStore
	Positions domain.PositionStore
	Funds     domain.FundStore
	Events    domain.EventStore
}

// CopyEngine mirrors the trades of one user's followed wallets. One instance
// serves one user; the supervisor enforces that.
type CopyEngine struct {
	user         string
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

// NewCopyEngine creates a copy engine for user. notifier may be nil.
func NewCopyEngine(user string, defaults domain.CopyDefaults, pollInterval time.Duration, dryRun bool, feed TradeFeed, exchange Exchange, st Stores, notifier Notifier, logger *slog.Logger) *CopyEngine {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &CopyEngine{
		user:         user,
		defaults:     defaults,
		pollInterval: pollInterval,
		dryRun:       dryRun,
		fetchLimit:   defaultFetchLimit,
		feed:         feed,
		exchange:     exchange,
		st:           st,
		notifier:     notifier,
		logger:       logger.With("component", "copy", "user", user),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the poll loop until ctx is cancelled. The first pass marks
// every currently visible upstream trade as seen without copying anything,
// so a restart never replays history.
func (e *CopyEngine) Run(ctx context.Context) error {
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

		if iteration%maintenanceEvery == 0 {
			e.maintenance(ctx)
		}
	}
}

// bootstrap marks everything currently visible as seen. Fetch failures are
// tolerated: an unmarked trade is still guarded by the staleness check.
func (e *CopyEngine) bootstrap(ctx context.Context) {
	follows, err := e.st.Traders.ListFollows(ctx, e.user, false)
	if err != nil {
		e.logger.Error("bootstrap: list follows", "error", err)
		return
	}

	marked := 0
	for _, f := range follows {
		trades, err := e.feed.GetTraderTrades(ctx, f.Address, e.fetchLimit)
		if err != nil {
			e.logger.Warn("bootstrap: fetch trades", "trader", f.Address, "error", err)
			continue
		}
		for _, t := range trades {
			if err := e.st.Dedup.MarkSeen(ctx, t.Fingerprint); err != nil {
				e.logger.Warn("bootstrap: mark seen", "error", err)
				continue
			}
			marked++
		}
	}
	e.logger.Info("bootstrap complete", "traders", len(follows), "marked", marked)
}

// poll reloads the follow list and processes each wallet's recent trades.
// The reload makes follow/unfollow and override changes take effect within
// one interval without restarting the engine.
func (e *CopyEngine) poll(ctx context.Context) {
	follows, err := e.st.Traders.ListFollows(ctx, e.user, false)
	if err != nil {
		e.logger.Error("list follows", "error", err)
		return
	}

	for _, f := range follows {
		if ctx.Err() != nil {
			return
		}

		trades, err := e.feed.GetTraderTrades(ctx, f.Address, e.fetchLimit)
		if err != nil {
			e.logger.Warn("fetch trades", "trader", f.Address, "error", err)
			continue
		}

		settings := f.EffectiveSettings(e.defaults)
		for _, t := range trades {
			if ctx.Err() != nil {
				return
			}
			e.process(ctx, f, settings, t)
		}
	}
}

// process sizes one upstream trade and executes the resulting order. The
// fingerprint is marked seen before submission; a failed order is therefore
// never retried.
func (e *CopyEngine) process(ctx context.Context, f domain.FollowedTrader, settings domain.CopyDefaults, t domain.UpstreamTrade) {
	seen, err := e.st.Dedup.IsSeen(ctx, t.Fingerprint)
	if err != nil {
		e.logger.Error("dedup lookup", "error", err)
		return
	}
	if seen {
		return
	}

	globalSpend, err := e.st.Trades.DailyExecutedSpend(ctx, e.user, domain.StrategyCopy, "")
	if err != nil {
		e.logger.Error("daily spend", "error", err)
		return
	}
	traderSpend, err := e.st.Trades.DailyExecutedSpend(ctx, e.user, domain.StrategyCopy, f.Address)
	if err != nil {
		e.logger.Error("daily spend", "trader", f.Address, "error", err)
		return
	}

	dec := SizeTrade(SizingInput{
		Trade:            t,
		Settings:         settings,
		DailySpendGlobal: globalSpend,
		DailySpendTrader: traderSpend,
		GlobalDailyCap:   e.defaults.MaxDailySpend,
		Now:              e.now(),
	})

	if dec.Reject != "" {
		if dec.MarkSeen {
			if err := e.st.Dedup.MarkSeen(ctx, t.Fingerprint); err != nil {
				e.logger.Warn("mark seen", "error", err)
			}
		}
		e.logger.Debug("trade rejected",
			"trader", f.Address, "fingerprint", t.Fingerprint, "reason", string(dec.Reject))
		e.recordEvent(ctx, domain.EventTradeRejected,
			fmt.Sprintf("skipped trade from %s: %s", f.Address, dec.Reject),
			map[string]any{"trader": f.Address, "fingerprint": t.Fingerprint, "reason": string(dec.Reject)})
		return
	}

	e.recordEvent(ctx, domain.EventTradeDetected,
		fmt.Sprintf("copying %s %s $%.2f from %s", t.Side, t.Market, dec.Order.USD, f.Address),
		map[string]any{"trader": f.Address, "fingerprint": t.Fingerprint, "usd": dec.Order.USD})

	// Marking before submission is the dedup linearization point: a crash
	// between here and the venue call drops the trade instead of doubling it.
	if err := e.st.Dedup.MarkSeen(ctx, t.Fingerprint); err != nil {
		e.logger.Error("mark seen before submit", "error", err)
		return
	}

	e.execute(ctx, f, t, dec.Order)
}

func (e *CopyEngine) execute(ctx context.Context, f domain.FollowedTrader, t domain.UpstreamTrade, order *Order) {
	refPrice := t.Price
	if order.Mode == domain.OrderModeLimit {
		refPrice = order.LimitPrice
	}

	trade := domain.Trade{
		Timestamp:       e.now(),
		UserAddress:     e.user,
		Strategy:        domain.StrategyCopy,
		TokenID:         order.TokenID,
		Side:            order.Side,
		Amount:          order.USD,
		Price:           refPrice,
		Market:          t.Market,
		CopiedFrom:      f.Address,
		OriginalTradeID: t.Fingerprint,
	}

	if e.dryRun {
		trade.Status = domain.TradeDryRun
		trade.Notes = "dry run, order not submitted"
		if _, err := e.st.Trades.RecordTrade(ctx, trade); err != nil {
			e.logger.Error("record dry-run trade", "error", err)
		}
		e.logger.Info("dry-run copy",
			"trader", f.Address, "side", order.Side, "usd", order.USD, "mode", order.Mode)
		return
	}

	var res polymarket.OrderResult
	var err error
	switch order.Mode {
	case domain.OrderModeLimit:
		res, err = e.exchange.PlaceLimitOrder(ctx, order.TokenID, order.Side, order.LimitPrice, order.Shares)
	default:
		res, err = e.exchange.PlaceMarketOrder(ctx, order.TokenID, order.Side, order.USD)
	}

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
		e.logger.Warn("copy order failed",
			"trader", f.Address, "fingerprint", t.Fingerprint, "error", err, "message", res.Message)
		ev := e.recordEvent(ctx, domain.EventTradeFailed,
			fmt.Sprintf("copy of %s from %s failed", t.Market, f.Address),
			map[string]any{"trader": f.Address, "fingerprint": t.Fingerprint, "usd": order.USD})
		e.notifier.Notify(ctx, ev)
		return
	}

	trade.Status = domain.TradeExecuted
	trade.Notes = res.OrderID
	if _, err := e.st.Trades.RecordTrade(ctx, trade); err != nil {
		e.logger.Error("record executed trade", "error", err)
	}
	if err := e.st.Traders.IncrementFollowCounters(ctx, e.user, f.Address, order.USD); err != nil {
		e.logger.Warn("update follow counters", "error", err)
	}
	if refPrice > 0 {
		if err := e.st.Positions.UpsertPosition(ctx, e.user, order.TokenID, t.Market, order.Side, order.USD, refPrice, domain.StrategyCopy, f.Address); err != nil {
			e.logger.Error("upsert position", "error", err)
		}
	}

	e.logger.Info("copy executed",
		"trader", f.Address, "side", order.Side, "usd", order.USD, "mode", order.Mode, "order_id", res.OrderID)
	ev := e.recordEvent(ctx, domain.EventTradeExecuted,
		fmt.Sprintf("copied %s %s $%.2f from %s", order.Side, t.Market, order.USD, f.Address),
		map[string]any{"trader": f.Address, "fingerprint": t.Fingerprint, "usd": order.USD, "order_id": res.OrderID})
	e.notifier.Notify(ctx, ev)
}

// maintenance expires old fingerprints and snapshots copy stats.
func (e *CopyEngine) maintenance(ctx context.Context) {
	expired, err := e.st.Dedup.ExpireSeen(ctx, dedupRetention)
	if err != nil {
		e.logger.Warn("expire seen", "error", err)
	} else if expired > 0 {
		e.logger.Info("expired fingerprints", "count", expired)
	}

	stats, err := e.st.Trades.CopyStats(ctx, e.user)
	if err != nil {
		e.logger.Warn("copy stats", "error", err)
		return
	}
	e.recordEvent(ctx, domain.EventPeriodicStats, "copy stats snapshot", map[string]any{
		"total_trades": stats.TotalTrades,
		"total_spent":  stats.TotalSpent,
		"failed":       stats.FailedTrades,
		"daily_spend":  stats.DailySpend,
	})
}

func (e *CopyEngine) recordEvent(ctx context.Context, eventType, message string, details map[string]any) domain.EngineEvent {
	ev := domain.EngineEvent{
		UserAddress: e.user,
		Strategy:    domain.StrategyCopy,
		EventType:   eventType,
		Message:     message,
		Details:     details,
	}
	if err := e.st.Events.RecordEvent(ctx, ev); err != nil {
		e.logger.Warn("record event", "type", eventType, "error", err)
	}
	return ev
}
