package domain

import (
	"math"
	"time"
)

// AllocationTolerance is how far the active allocation weights of a fund may
// deviate from summing to exactly 1.0.
const AllocationTolerance = 0.01

// Fund pools investor capital and mirrors the trades of its allocated
// traders proportionally to AUM and allocation weight.
type Fund struct {
	ID           string    `json:"id"`
	OwnerAddress string    `json:"owner_address"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Active       bool      `json:"active"`
	TotalAUM     float64   `json:"total_aum"`
	TotalShares  float64   `json:"total_shares"`
	CreatedAt    time.Time `json:"created_at"`
}

// NAV returns the net asset value per share, 1.0 for an empty fund.
func (f Fund) NAV() float64 {
	if f.TotalShares <= 0 {
		return 1.0
	}
	return f.TotalAUM / f.TotalShares
}

// FundAllocation assigns a weight of a fund's trading to one followed wallet.
// Active weights per fund must sum to 1.0 within AllocationTolerance.
type FundAllocation struct {
	FundID        string  `json:"-"`
	TraderAddress string  `json:"trader_address"`
	Weight        float64 `json:"weight"`
	Active        bool    `json:"active"`
}

// ValidateAllocations checks the weight-sum invariant for a replacement set.
func ValidateAllocations(allocs []FundAllocation) error {
	sum := 0.0
	for _, a := range allocs {
		if a.Weight <= 0 || a.Weight > 1 {
			return ErrInvalid
		}
		sum += a.Weight
	}
	// The epsilon absorbs float accumulation for sums nominally on the
	// tolerance edge, e.g. 0.51 + 0.50.
	if math.Abs(sum-1.0) > AllocationTolerance+1e-9 {
		return ErrInvalid
	}
	return nil
}

// InvestmentStatus tracks an investor's stake lifecycle.
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentWithdrawn InvestmentStatus = "withdrawn"
)

// FundInvestment is one investor's stake in a fund, priced in shares at the
// NAV in effect when the investment was made. Withdrawn rows are kept.
type FundInvestment struct {
	ID              string           `json:"id"`
	FundID          string           `json:"fund_id"`
	InvestorAddress string           `json:"investor_address"`
	AmountInvested  float64          `json:"amount_invested"`
	Shares          float64          `json:"shares"`
	InvestedAt      time.Time        `json:"invested_at"`
	Status          InvestmentStatus `json:"status"`
}

// FundPerformance is the daily NAV snapshot, one row per fund per UTC day.
type FundPerformance struct {
	FundID           string  `json:"fund_id"`
	Date             string  `json:"date"` // YYYY-MM-DD
	NAV              float64 `json:"nav"`
	DailyReturn      float64 `json:"daily_return"`      // percent vs previous snapshot
	CumulativeReturn float64 `json:"cumulative_return"` // percent vs initial NAV of 1.0
}

// FundTrade links a fund to a downstream trade row it produced.
type FundTrade struct {
	FundID        string    `json:"fund_id"`
	TradeID       int64     `json:"trade_id"`
	TraderAddress string    `json:"trader_address"`
	Amount        float64   `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}
