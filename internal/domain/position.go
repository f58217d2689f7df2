package domain

import "time"

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// closeEpsilon is the share count below which a position is considered flat.
const closeEpsilon = 0.001

// Position is a user's holding in one outcome token, built up from executed
// trades. At most one open (user, token, side) position exists at a time.
type Position struct {
	ID            int64          `json:"id"`
	UserAddress   string         `json:"user_address"`
	TokenID       string         `json:"token_id"`
	Market        string         `json:"market,omitempty"`
	Side          PositionSide   `json:"side"`
	Size          float64        `json:"size"` // shares
	AvgEntryPrice float64        `json:"avg_entry_price"`
	CurrentPrice  float64        `json:"current_price"`
	CostBasis     float64        `json:"cost_basis"` // USD
	UnrealizedPnL float64        `json:"unrealized_pnl"`
	Strategy      Strategy       `json:"strategy"`
	CopiedFrom    string         `json:"copied_from,omitempty"`
	OpenedAt      time.Time      `json:"opened_at"`
	LastUpdated   time.Time      `json:"last_updated"`
	Status        PositionStatus `json:"status"`
}

// SideForTrade maps an order side to the position side it opens or adds to.
func SideForTrade(s Side) PositionSide {
	if s == SideBuy {
		return PositionLong
	}
	return PositionShort
}

// ApplyTrade folds one executed trade at price > 0 into the position and
// returns the result. A BUY adds to a LONG and reduces a SHORT; SELL is the
// mirror. Reducing keeps the average entry price and scales the cost basis
// with the remaining size. When the remaining size falls under the close
// epsilon the position is closed with zero size and cost.
func (p Position) ApplyTrade(side Side, usd, price float64) Position {
	shares := usd / price

	adding := (side == SideBuy && p.Side == PositionLong) ||
		(side == SideSell && p.Side == PositionShort)

	if adding {
		p.Size += shares
		p.CostBasis += usd
		if p.Size > 0 {
			p.AvgEntryPrice = p.CostBasis / p.Size
		}
	} else {
		oldSize := p.Size
		p.Size = max(0, p.Size-shares)
		if oldSize > 0 {
			p.CostBasis *= p.Size / oldSize
		}
	}

	p.CurrentPrice = price
	if p.Size < closeEpsilon {
		p.Size = 0
		p.CostBasis = 0
		p.Status = PositionClosed
	}
	p.UnrealizedPnL = p.computePnL()
	return p
}

// NewPosition opens a fresh position from an executed trade at price > 0.
func NewPosition(user, tokenID, market string, side Side, usd, price float64, strategy Strategy, copiedFrom string, now time.Time) Position {
	return Position{
		UserAddress:   user,
		TokenID:       tokenID,
		Market:        market,
		Side:          SideForTrade(side),
		Size:          usd / price,
		AvgEntryPrice: price,
		CurrentPrice:  price,
		CostBasis:     usd,
		UnrealizedPnL: 0,
		Strategy:      strategy,
		CopiedFrom:    copiedFrom,
		OpenedAt:      now,
		LastUpdated:   now,
		Status:        PositionOpen,
	}
}

// WithCurrentPrice returns the position revalued at the given price.
func (p Position) WithCurrentPrice(price float64) Position {
	p.CurrentPrice = price
	p.UnrealizedPnL = p.computePnL()
	return p
}

func (p Position) computePnL() float64 {
	if p.Size == 0 {
		return 0
	}
	if p.Side == PositionLong {
		return (p.CurrentPrice - p.AvgEntryPrice) * p.Size
	}
	return (p.AvgEntryPrice - p.CurrentPrice) * p.Size
}

// Settled reports whether the tracked price indicates a resolved market.
func (p Position) Settled() bool {
	return p.CurrentPrice >= 0.999 || (p.CurrentPrice > 0 && p.CurrentPrice <= 0.001)
}

// PositionSummary aggregates a user's open positions for the dashboard.
type PositionSummary struct {
	OpenPositions int     `json:"open_positions"`
	TotalCost     float64 `json:"total_cost"`
	TotalValue    float64 `json:"total_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}
