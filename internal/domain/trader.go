package domain

import "time"

// FollowedTrader is a wallet a user mirrors. Removal flips Active off so the
// counters survive; re-adding the same address reactivates the row.
//
// The override pointers are nil when the user has not customized that field;
// sizing falls back to the user-level defaults.
type FollowedTrader struct {
	UserAddress string    `json:"-"`
	Address     string    `json:"address"`
	Alias       string    `json:"alias,omitempty"`
	AddedAt     time.Time `json:"added_at"`
	Active      bool      `json:"active"`
	TotalCopied int       `json:"total_copied"`
	TotalSpent  float64   `json:"total_spent"`

	CopyPercentage *float64   `json:"copy_percentage,omitempty"`
	MinCopySize    *float64   `json:"min_copy_size,omitempty"`
	MaxCopySize    *float64   `json:"max_copy_size,omitempty"`
	MaxDailySpend  *float64   `json:"max_daily_spend,omitempty"`
	OrderMode      *OrderMode `json:"order_mode,omitempty"`
	LimitOrderPct  *float64   `json:"limit_order_pct,omitempty"` // slippage allowance for limit orders
}

// CopyDefaults are the user-level sizing defaults a trader override falls
// back to. They mirror the configuration keys of the same names.
type CopyDefaults struct {
	CopyPercentage float64
	MinCopySize    float64
	MaxCopySize    float64
	MaxDailySpend  float64
	MaxTradeAge    time.Duration
	OrderMode      OrderMode
	MaxSlippage    float64
}

// EffectiveSettings resolves the trader's overrides against the defaults.
func (t FollowedTrader) EffectiveSettings(d CopyDefaults) CopyDefaults {
	out := d
	if t.CopyPercentage != nil {
		out.CopyPercentage = *t.CopyPercentage
	}
	if t.MinCopySize != nil {
		out.MinCopySize = *t.MinCopySize
	}
	if t.MaxCopySize != nil {
		out.MaxCopySize = *t.MaxCopySize
	}
	if t.MaxDailySpend != nil {
		out.MaxDailySpend = *t.MaxDailySpend
	}
	if t.OrderMode != nil {
		out.OrderMode = *t.OrderMode
	}
	if t.LimitOrderPct != nil {
		out.MaxSlippage = *t.LimitOrderPct
	}
	return out
}

// TraderHolding is one outcome-token holding of a watched wallet, as
// reported by the venue. Read-only; none of it is persisted.
type TraderHolding struct {
	TokenID      string  `json:"token_id"`
	Market       string  `json:"market,omitempty"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentValue float64 `json:"current_value"`
	CashPnL      float64 `json:"cash_pnl"`
}

// TraderOverrides carries a partial update for a follow's sizing overrides.
// Nil fields are left untouched.
type TraderOverrides struct {
	Alias          *string
	CopyPercentage *float64
	MinCopySize    *float64
	MaxCopySize    *float64
	MaxDailySpend  *float64
	OrderMode      *OrderMode
	LimitOrderPct  *float64
}
