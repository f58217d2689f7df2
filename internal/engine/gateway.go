package engine

import (
	"context"

	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/platform/polymarket"
)

// TradeFeed reads trades of followed wallets. Satisfied by
// polymarket.DataClient.
type TradeFeed interface {
	GetTraderTrades(ctx context.Context, wallet string, limit int) ([]domain.UpstreamTrade, error)
}

// Exchange prices tokens and submits orders. Satisfied by
// polymarket.ClobClient.
type Exchange interface {
	GetPrice(ctx context.Context, tokenID string, side domain.Side) (float64, error)
	GetMidpoint(ctx context.Context, tokenID string) (float64, error)
	PlaceMarketOrder(ctx context.Context, tokenID string, side domain.Side, usd float64) (polymarket.OrderResult, error)
	PlaceLimitOrder(ctx context.Context, tokenID string, side domain.Side, price, shares float64) (polymarket.OrderResult, error)
}

// MarketSource lists candidate markets for the arbitrage scanner. Satisfied
// by polymarket.GammaClient.
type MarketSource interface {
	ListActiveMarkets(ctx context.Context, limit int) ([]domain.Market, error)
}

// Notifier pushes human-readable engine events to chat channels. Delivery is
// best effort; implementations must never block an engine loop on failure.
type Notifier interface {
	Notify(ctx context.Context, e domain.EngineEvent)
}

// NopNotifier discards everything.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.EngineEvent) {}
