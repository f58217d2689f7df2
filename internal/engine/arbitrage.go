package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

// marketRefreshEvery is the scan-iteration period for reloading the market
// list from Gamma.
const marketRefreshEvery = 10

// ArbParams tunes the YES/NO pair scanner.
type ArbParams struct {
	MinProfitPct    float64 // minimum (1-c)/c * 100 to act on
	TradeAmount     float64 // target USD per opportunity before caps
	MaxPositionSize float64 // hard USD cap per opportunity
	MarketLimit     int     // how many active markets to scan
}

// ArbEngine scans binary markets for YES/NO price sums below 1.0 and buys
// both legs proportionally. One instance serves one user.
type ArbEngine struct {
	user         string
	params       ArbParams
	pollInterval time.Duration
	dryRun       bool

	exchange Exchange
	markets  MarketSource
	st       Stores
	notifier Notifier
	logger   *slog.Logger

	universe []domain.Market
	now      func() time.Time
}

// NewArbEngine creates an arbitrage engine for user. notifier may be nil.
func NewArbEngine(user string, params ArbParams, pollInterval time.Duration, dryRun bool, exchange Exchange, markets MarketSource, st Stores, notifier Notifier, logger *slog.Logger) *ArbEngine {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if params.MarketLimit <= 0 {
		params.MarketLimit = 50
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ArbEngine{
		user:         user,
		params:       params,
		pollInterval: pollInterval,
		dryRun:       dryRun,
		exchange:     exchange,
		markets:      markets,
		st:           st,
		notifier:     notifier,
		logger:       logger.With("component", "arbitrage", "user", user),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run scans until ctx is cancelled. The market universe is refreshed every
// few iterations; prices are refreshed every iteration.
func (e *ArbEngine) Run(ctx context.Context) error {
	e.refreshMarkets(ctx)

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
		if iteration%marketRefreshEvery == 0 {
			e.refreshMarkets(ctx)
		}
		e.scan(ctx)
	}
}

func (e *ArbEngine) refreshMarkets(ctx context.Context) {
	markets, err := e.markets.ListActiveMarkets(ctx, e.params.MarketLimit)
	if err != nil {
		e.logger.Warn("refresh markets", "error", err)
		return
	}

	tradeable := markets[:0]
	for _, m := range markets {
		if m.Tradeable() {
			tradeable = append(tradeable, m)
		}
	}
	e.universe = tradeable
	e.logger.Info("market universe refreshed", "markets", len(tradeable))
}

func (e *ArbEngine) scan(ctx context.Context) {
	for _, m := range e.universe {
		if ctx.Err() != nil {
			return
		}
		opp, ok := e.check(ctx, m)
		if !ok {
			continue
		}
		e.executePair(ctx, opp)
	}
}

// check prices both tokens and reports whether the pair is profitable after
// the configured threshold.
func (e *ArbEngine) check(ctx context.Context, m domain.Market) (domain.ArbOpportunity, bool) {
	yes, err := e.exchange.GetPrice(ctx, m.YesTokenID, domain.SideBuy)
	if err != nil {
		e.logger.Debug("price yes", "market", m.ID, "error", err)
		return domain.ArbOpportunity{}, false
	}
	no, err := e.exchange.GetPrice(ctx, m.NoTokenID, domain.SideBuy)
	if err != nil {
		e.logger.Debug("price no", "market", m.ID, "error", err)
		return domain.ArbOpportunity{}, false
	}

	combined := yes + no
	if combined <= 0 || combined >= 1 {
		return domain.ArbOpportunity{}, false
	}
	profitPct := (1 - combined) / combined * 100
	if profitPct < e.params.MinProfitPct {
		return domain.ArbOpportunity{}, false
	}

	return domain.ArbOpportunity{
		Market:       m,
		YesPrice:     yes,
		NoPrice:      no,
		CombinedCost: combined,
		ProfitPct:    profitPct,
		DetectedAt:   e.now(),
	}, true
}

// executePair buys both legs, splitting the budget proportionally to the leg
// prices so both legs buy the same number of shares. A half fill is recorded
// as one executed and one failed row; the executed leg is not unwound.
func (e *ArbEngine) executePair(ctx context.Context, opp domain.ArbOpportunity) {
	total := e.params.TradeAmount
	if e.params.MaxPositionSize > 0 && total > e.params.MaxPositionSize {
		total = e.params.MaxPositionSize
	}

	usdYes := round2(total * opp.YesPrice / opp.CombinedCost)
	usdNo := round2(total * opp.NoPrice / opp.CombinedCost)

	e.recordEvent(ctx, domain.EventTradeDetected,
		fmt.Sprintf("arbitrage on %s: combined %.4f, profit %.2f%%", opp.Market.Question, opp.CombinedCost, opp.ProfitPct),
		map[string]any{"market": opp.Market.ID, "combined": opp.CombinedCost, "profit_pct": opp.ProfitPct})

	yesOK := e.executeLeg(ctx, opp, opp.Market.YesTokenID, opp.YesPrice, usdYes, "YES")
	noOK := e.executeLeg(ctx, opp, opp.Market.NoTokenID, opp.NoPrice, usdNo, "NO")

	switch {
	case yesOK && noOK:
		e.logger.Info("arbitrage executed",
			"market", opp.Market.ID, "usd_yes", usdYes, "usd_no", usdNo, "profit_pct", opp.ProfitPct)
		ev := e.recordEvent(ctx, domain.EventTradeExecuted,
			fmt.Sprintf("arbitrage filled on %s for $%.2f", opp.Market.Question, usdYes+usdNo),
			map[string]any{"market": opp.Market.ID, "usd": usdYes + usdNo, "profit_pct": opp.ProfitPct})
		e.notifier.Notify(ctx, ev)
	case yesOK || noOK:
		e.logger.Warn("partial arbitrage fill", "market", opp.Market.ID, "yes", yesOK, "no", noOK)
		ev := e.recordEvent(ctx, domain.EventPartialArb,
			fmt.Sprintf("only one leg filled on %s", opp.Market.Question),
			map[string]any{"market": opp.Market.ID, "yes_filled": yesOK, "no_filled": noOK})
		e.notifier.Notify(ctx, ev)
	default:
		e.recordEvent(ctx, domain.EventTradeFailed,
			fmt.Sprintf("both legs failed on %s", opp.Market.Question),
			map[string]any{"market": opp.Market.ID})
	}
}

func (e *ArbEngine) executeLeg(ctx context.Context, opp domain.ArbOpportunity, tokenID string, price, usd float64, leg string) bool {
	expected := round2(usd * (1 - opp.CombinedCost) / opp.CombinedCost)

	trade := domain.Trade{
		Timestamp:      e.now(),
		UserAddress:    e.user,
		Strategy:       domain.StrategyArbitrage,
		TokenID:        tokenID,
		Side:           domain.SideBuy,
		Amount:         usd,
		Price:          price,
		Market:         opp.Market.Question,
		ExpectedProfit: expected,
		Notes:          leg,
	}

	if e.dryRun {
		trade.Status = domain.TradeDryRun
		trade.Notes = leg + " dry run"
		if _, err := e.st.Trades.RecordTrade(ctx, trade); err != nil {
			e.logger.Error("record dry-run trade", "error", err)
		}
		return true
	}

	res, err := e.exchange.PlaceMarketOrder(ctx, tokenID, domain.SideBuy, usd)
	if err != nil || !res.Success {
		trade.Status = domain.TradeFailed
		if err != nil {
			trade.Notes = leg + ": " + err.Error()
		} else {
			trade.Notes = leg + ": " + res.Message
		}
		if _, rerr := e.st.Trades.RecordTrade(ctx, trade); rerr != nil {
			e.logger.Error("record failed trade", "error", rerr)
		}
		return false
	}

	trade.Status = domain.TradeExecuted
	if _, err := e.st.Trades.RecordTrade(ctx, trade); err != nil {
		e.logger.Error("record executed trade", "error", err)
	}
	if err := e.st.Positions.UpsertPosition(ctx, e.user, tokenID, opp.Market.Question, domain.SideBuy, usd, price, domain.StrategyArbitrage, ""); err != nil {
		e.logger.Error("upsert position", "error", err)
	}
	return true
}

func (e *ArbEngine) recordEvent(ctx context.Context, eventType, message string, details map[string]any) domain.EngineEvent {
	ev := domain.EngineEvent{
		UserAddress: e.user,
		Strategy:    domain.StrategyArbitrage,
		EventType:   eventType,
		Message:     message,
		Details:     details,
	}
	if err := e.st.Events.RecordEvent(ctx, ev); err != nil {
		e.logger.Warn("record event", "type", eventType, "error", err)
	}
	return ev
}
