package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

// PriceCache is an optional shared midpoint cache in front of the exchange.
// Satisfied by the redis cache; a nil cache disables it.
type PriceCache interface {
	Get(ctx context.Context, tokenID string) (float64, bool)
	Set(ctx context.Context, tokenID string, price float64)
}

// Tracker periodically refreshes current prices and unrealized PnL for every
// open position across all users. One tracker serves the whole process.
type Tracker struct {
	positions domain.PositionStore
	exchange  Exchange
	cache     PriceCache // may be nil
	interval  time.Duration
	logger    *slog.Logger
}

// NewTracker creates a position tracker.
func NewTracker(positions domain.PositionStore, exchange Exchange, cache PriceCache, interval time.Duration, logger *slog.Logger) *Tracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Tracker{
		positions: positions,
		exchange:  exchange,
		cache:     cache,
		interval:  interval,
		logger:    logger.With("component", "tracker"),
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.sweep(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sweep resolves one price per distinct token and applies all position
// updates in a single transaction.
func (t *Tracker) sweep(ctx context.Context) {
	open, err := t.positions.ListAllOpenPositions(ctx)
	if err != nil {
		t.logger.Error("list open positions", "error", err)
		return
	}
	if len(open) == 0 {
		return
	}

	prices := make(map[string]float64)
	updates := make([]domain.PriceUpdate, 0, len(open))

	for _, p := range open {
		if ctx.Err() != nil {
			return
		}
		price, ok := prices[p.TokenID]
		if !ok {
			price, ok = t.resolvePrice(ctx, p.TokenID)
			if !ok {
				continue
			}
			prices[p.TokenID] = price
		}
		updates = append(updates, domain.PriceUpdate{PositionID: p.ID, Price: price})
	}

	if len(updates) == 0 {
		return
	}
	if err := t.positions.BatchUpdatePrices(ctx, updates); err != nil {
		t.logger.Error("batch update prices", "error", err)
		return
	}
	t.logger.Debug("positions refreshed", "positions", len(updates), "tokens", len(prices))
}

// resolvePrice consults the cache, then the midpoint, then the BUY side as a
// last resort for thin books with no midpoint.
func (t *Tracker) resolvePrice(ctx context.Context, tokenID string) (float64, bool) {
	if t.cache != nil {
		if price, ok := t.cache.Get(ctx, tokenID); ok && price > 0 {
			return price, true
		}
	}

	price, err := t.exchange.GetMidpoint(ctx, tokenID)
	if err != nil || price <= 0 {
		price, err = t.exchange.GetPrice(ctx, tokenID, domain.SideBuy)
		if err != nil || price <= 0 {
			if err != nil {
				t.logger.Debug("price unavailable", "token", tokenID, "error", err)
			}
			return 0, false
		}
	}

	if t.cache != nil {
		t.cache.Set(ctx, tokenID, price)
	}
	return price, true
}
