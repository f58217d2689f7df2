package service

import (
	"context"
	"log/slog"
	"math"

	"github.com/polybacker/polybacker/internal/domain"
)

// CloseReport summarizes a bulk position action.
type CloseReport struct {
	Closed int `json:"closed"`
	Failed int `json:"failed"`
}

// PortfolioService performs bulk actions over a user's open positions.
type PortfolioService struct {
	positions domain.PositionStore
	trades    domain.TradeStore
	exchanges ExchangeProvider
	logger    *slog.Logger
}

// NewPortfolioService wires a PortfolioService.
func NewPortfolioService(positions domain.PositionStore, trades domain.TradeStore, exchanges ExchangeProvider, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{
		positions: positions,
		trades:    trades,
		exchanges: exchanges,
		logger:    logger.With("component", "portfolio"),
	}
}

// Summary aggregates the user's open positions.
func (s *PortfolioService) Summary(ctx context.Context, user string) (domain.PositionSummary, error) {
	open, err := s.positions.ListOpenPositions(ctx, user)
	if err != nil {
		return domain.PositionSummary{}, err
	}

	var sum domain.PositionSummary
	sum.OpenPositions = len(open)
	for _, p := range open {
		price := p.CurrentPrice
		if price <= 0 {
			price = p.AvgEntryPrice
		}
		// Revalue at the effective price so untracked positions report a
		// consistent value and PnL.
		p = p.WithCurrentPrice(price)
		sum.TotalCost += p.CostBasis
		sum.TotalValue += p.Size * p.CurrentPrice
		sum.UnrealizedPnL += p.UnrealizedPnL
	}
	return sum, nil
}

// CloseAll flattens every open position of the user with market orders at the
// last tracked price. Positions whose orders fail stay open; a failed trade
// row is written for each.
func (s *PortfolioService) CloseAll(ctx context.Context, user string) (CloseReport, error) {
	exchange, err := s.exchanges.ForUser(ctx, user)
	if err != nil {
		return CloseReport{}, err
	}

	open, err := s.positions.ListOpenPositions(ctx, user)
	if err != nil {
		return CloseReport{}, err
	}

	var report CloseReport
	for _, p := range open {
		price := p.CurrentPrice
		if price <= 0 {
			price = p.AvgEntryPrice
		}
		usd := round2(p.Size * price)
		if usd <= 0 {
			if err := s.positions.ClosePosition(ctx, p.ID); err == nil {
				report.Closed++
			}
			continue
		}

		// Closing a LONG sells the token; closing a SHORT buys it back.
		side := domain.SideSell
		if p.Side == domain.PositionShort {
			side = domain.SideBuy
		}

		trade := domain.Trade{
			UserAddress: user,
			Strategy:    p.Strategy,
			TokenID:     p.TokenID,
			Side:        side,
			Amount:      usd,
			Price:       price,
			Market:      p.Market,
			Notes:       "close position",
		}

		result, err := exchange.PlaceMarketOrder(ctx, p.TokenID, side, usd)
		if err != nil {
			report.Failed++
			trade.Status = domain.TradeFailed
			trade.Notes = err.Error()
			s.logger.Warn("close position", "position", p.ID, "error", err)
		} else {
			report.Closed++
			trade.Status = domain.TradeExecuted
			if result.OrderID != "" {
				trade.Notes = result.OrderID
			}
			if err := s.positions.ClosePosition(ctx, p.ID); err != nil {
				s.logger.Warn("mark position closed", "position", p.ID, "error", err)
			}
		}

		if _, err := s.trades.RecordTrade(ctx, trade); err != nil {
			s.logger.Warn("record close trade", "position", p.ID, "error", err)
		}
	}
	return report, nil
}

// RedeemAll closes positions whose tracked price shows a resolved market,
// snapping the price to the boundary value first. No order is placed; share
// redemption settles on chain outside this process.
func (s *PortfolioService) RedeemAll(ctx context.Context, user string) (CloseReport, error) {
	open, err := s.positions.ListOpenPositions(ctx, user)
	if err != nil {
		return CloseReport{}, err
	}

	var report CloseReport
	for _, p := range open {
		if !p.Settled() {
			continue
		}

		boundary := 0.0
		if p.CurrentPrice >= 0.999 {
			boundary = 1.0
		}
		if err := s.positions.BatchUpdatePrices(ctx, []domain.PriceUpdate{{PositionID: p.ID, Price: boundary}}); err != nil {
			report.Failed++
			s.logger.Warn("snap settled price", "position", p.ID, "error", err)
			continue
		}
		if err := s.positions.ClosePosition(ctx, p.ID); err != nil {
			report.Failed++
			s.logger.Warn("redeem position", "position", p.ID, "error", err)
			continue
		}
		report.Closed++
	}
	if report.Closed > 0 {
		s.logger.Info("settled positions redeemed", "user", user, "count", report.Closed)
	}
	return report, nil
}

func round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Round(x*100) / 100
}
