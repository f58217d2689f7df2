// Package engine contains the trading workers: the per-user copy and
// arbitrage engines, the global fund engine and position tracker, and the
// supervisor that manages their lifecycles.
package engine

import (
	"math"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

// RejectReason explains why an upstream trade was not copied. The values
// appear verbatim in engine events and trade notes.
type RejectReason string

const (
	RejectAlreadySeen      RejectReason = "already_seen"
	RejectTooOld           RejectReason = "too_old"
	RejectNoToken          RejectReason = "no_token"
	RejectInvalidSide      RejectReason = "invalid_side"
	RejectGlobalDailyLimit RejectReason = "global_daily_limit"
	RejectTraderDailyLimit RejectReason = "trader_daily_limit"
	RejectZeroSize         RejectReason = "zero_size"
)

// Order is a sized downstream order ready for submission.
type Order struct {
	TokenID    string
	Side       domain.Side
	USD        float64
	Mode       domain.OrderMode
	LimitPrice float64 // set when Mode is limit
	Shares     float64 // set when Mode is limit
}

// Decision is the outcome of sizing one upstream trade. Exactly one of
// Order and Reject is meaningful. MarkSeen tells the caller to record the
// fingerprint even though no order resulted, so the candidate is never
// revisited.
type Decision struct {
	Order    *Order
	Reject   RejectReason
	MarkSeen bool
}

// SizingInput carries everything SizeTrade needs. Settings must already be
// resolved against the trader's overrides via EffectiveSettings.
type SizingInput struct {
	Trade            domain.UpstreamTrade
	Settings         domain.CopyDefaults
	AlreadySeen      bool
	DailySpendGlobal float64 // executed copy USD today, all traders
	DailySpendTrader float64 // executed copy USD today, this trader
	GlobalDailyCap   float64 // user-level cap, before overrides
	Now              time.Time
}

// SizeTrade runs the admission and sizing pipeline for one upstream trade.
// The checks run in a fixed order; the first failure wins.
//
// Budget rejections deliberately leave the fingerprint unmarked: budget
// frees up at the UTC day boundary, and the staleness check disposes of the
// candidate before then if it never fits.
func SizeTrade(in SizingInput) Decision {
	t := in.Trade
	s := in.Settings

	if in.AlreadySeen {
		return Decision{Reject: RejectAlreadySeen}
	}
	if !t.Timestamp.IsZero() && t.Age(in.Now) > s.MaxTradeAge {
		return Decision{Reject: RejectTooOld, MarkSeen: true}
	}
	if t.TokenID == "" {
		return Decision{Reject: RejectNoToken, MarkSeen: true}
	}
	if !t.Side.Valid() {
		return Decision{Reject: RejectInvalidSide, MarkSeen: true}
	}
	if in.DailySpendGlobal >= in.GlobalDailyCap {
		return Decision{Reject: RejectGlobalDailyLimit}
	}
	if in.DailySpendTrader >= s.MaxDailySpend {
		return Decision{Reject: RejectTraderDailyLimit}
	}

	copyUsd := clamp(t.USDValue()*s.CopyPercentage, s.MinCopySize, s.MaxCopySize)

	globalRemaining := in.GlobalDailyCap - in.DailySpendGlobal
	traderRemaining := s.MaxDailySpend - in.DailySpendTrader
	copyUsd = math.Min(copyUsd, math.Min(globalRemaining, traderRemaining))

	copyUsd = round2(copyUsd)
	if copyUsd <= 0 {
		return Decision{Reject: RejectZeroSize, MarkSeen: true}
	}

	order := &Order{
		TokenID: t.TokenID,
		Side:    t.Side,
		USD:     copyUsd,
		Mode:    domain.OrderModeMarket,
	}

	if s.OrderMode == domain.OrderModeLimit && t.Price > 0 {
		slip := s.MaxSlippage
		limit := t.Price * (1 + slip)
		if t.Side == domain.SideSell {
			limit = t.Price * (1 - slip)
		}
		limit = clamp(limit, 0.01, 0.99)

		order.Mode = domain.OrderModeLimit
		order.LimitPrice = limit
		order.Shares = round2(copyUsd / limit)
	}

	return Decision{Order: order, MarkSeen: true}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
