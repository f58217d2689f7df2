package domain

import "time"

// Market is a binary prediction market with a YES and a NO outcome token.
type Market struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Slug        string     `json:"slug,omitempty"`
	ConditionID string     `json:"condition_id,omitempty"`
	YesTokenID  string     `json:"yes_token_id"`
	NoTokenID   string     `json:"no_token_id"`
	Active      bool       `json:"active"`
	Closed      bool       `json:"closed"`
	Volume      float64    `json:"volume,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// Tradeable reports whether both outcome tokens are known and the market is
// open for orders.
func (m Market) Tradeable() bool {
	return m.Active && !m.Closed && m.YesTokenID != "" && m.NoTokenID != ""
}

// ArbOpportunity is a detected YES+NO underpricing on one market. Buying both
// sides for combined cost under $1 locks in the spread at resolution.
type ArbOpportunity struct {
	Market       Market
	YesPrice     float64
	NoPrice      float64
	CombinedCost float64
	ProfitPct    float64
	DetectedAt   time.Time
}
