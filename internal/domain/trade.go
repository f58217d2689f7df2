package domain

import "time"

// Strategy identifies which engine produced a downstream trade.
type Strategy string

const (
	StrategyCopy      Strategy = "copy"
	StrategyArbitrage Strategy = "arbitrage"
	StrategyFund      Strategy = "fund"
)

// Side is the normalized order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is one of the two normalized values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// TradeStatus tracks the outcome of a downstream order.
type TradeStatus string

const (
	TradeExecuted TradeStatus = "executed"
	TradeFailed   TradeStatus = "failed"
	TradeDryRun   TradeStatus = "dry_run"
)

// OrderMode selects how copy orders are submitted: market orders are
// fill-or-kill, limit orders rest on the book good-til-cancelled.
type OrderMode string

const (
	OrderModeMarket OrderMode = "market"
	OrderModeLimit  OrderMode = "limit"
)

// Trade is a downstream order this system issued (or attempted) on behalf of
// a user. Rows are append-only.
type Trade struct {
	ID              int64       `json:"id"`
	Timestamp       time.Time   `json:"timestamp"`
	UserAddress     string      `json:"user_address"`
	Strategy        Strategy    `json:"strategy"`
	TokenID         string      `json:"token_id"`
	Side            Side        `json:"side"`
	Amount          float64     `json:"amount"` // USD
	Price           float64     `json:"price"`  // execution/reference price, 0 when unknown
	Market          string      `json:"market,omitempty"`
	ExpectedProfit  float64     `json:"expected_profit,omitempty"`
	CopiedFrom      string      `json:"copied_from,omitempty"`
	OriginalTradeID string      `json:"original_trade_id,omitempty"` // upstream fingerprint
	Status          TradeStatus `json:"status"`
	Notes           string      `json:"notes,omitempty"`
}

// TradeFilter narrows listTrades queries. Zero values mean "any".
type TradeFilter struct {
	UserAddress string
	Strategy    Strategy
	Status      TradeStatus
	Search      string // matched against market and token id
	Limit       int
	Offset      int
}

// PnLPoint is one UTC day of the cumulative expected-profit series.
type PnLPoint struct {
	Date             string  `json:"date"` // YYYY-MM-DD
	Trades           int     `json:"trades"`
	Spent            float64 `json:"spent"`
	Profit           float64 `json:"profit"`
	CumulativeProfit float64 `json:"cumulative_profit"`
}

// CopyStats summarizes a user's copy trading activity.
type CopyStats struct {
	TotalTrades         int     `json:"total_trades"`
	TotalSpent          float64 `json:"total_spent"`
	TotalExecuted       float64 `json:"total_executed"`
	FailedTrades        int     `json:"failed_trades"`
	UniqueTradersCopied int     `json:"unique_traders_copied"`
	DailySpend          float64 `json:"daily_spend"`
	DailyLimit          float64 `json:"daily_limit"`
}

// ArbStats summarizes a user's arbitrage activity.
type ArbStats struct {
	TotalTrades         int     `json:"total_trades"`
	TotalSpent          float64 `json:"total_spent"`
	TotalExpectedProfit float64 `json:"total_expected_profit"`
	FailedTrades        int     `json:"failed_trades"`
}
