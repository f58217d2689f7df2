package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string. The data API
// mixes both for sizes and prices.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// flexTime unmarshals from a Unix-seconds number, a numeric string, or an
// ISO-8601 string. Zero when absent or unparseable.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexTime(time.Unix(n, 0).UTC())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = flexTime(time.Time{})
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexTime(time.Unix(n, 0).UTC())
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			*f = flexTime(t.UTC())
			return nil
		}
	}
	*f = flexTime(time.Time{})
	return nil
}

func (f flexTime) Time() time.Time { return time.Time(f) }

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APITrade is an activity row from the data API. Key names vary between
// activity kinds, so most fields have aliases that Canonical resolves.
type APITrade struct {
	TransactionHash string    `json:"transactionHash"`
	ID              string    `json:"id"`
	AssetID         string    `json:"asset_id"`
	TokenID         string    `json:"token_id"`
	Asset           string    `json:"asset"`
	Side            string    `json:"side"`
	Size            flexFloat `json:"size"`
	Price           flexFloat `json:"price"`
	Timestamp       flexTime  `json:"timestamp"`
	CreatedAt       flexTime  `json:"created_at"`
	Time            flexTime  `json:"time"`
	Title           string    `json:"title"`
	Market          string    `json:"market"`
	Question        string    `json:"question"`
	Slug            string    `json:"slug"`
}

// Canonical normalizes the raw row into a domain.UpstreamTrade. The
// fingerprint prefers the transaction hash, then the row id, then
// tokenID + unix timestamp.
func (a *APITrade) Canonical() domain.UpstreamTrade {
	tokenID := firstNonEmpty(a.AssetID, a.TokenID, a.Asset)

	ts := a.Timestamp.Time()
	if ts.IsZero() {
		ts = a.CreatedAt.Time()
	}
	if ts.IsZero() {
		ts = a.Time.Time()
	}

	fingerprint := firstNonEmpty(a.TransactionHash, a.ID)
	if fingerprint == "" {
		fingerprint = fmt.Sprintf("%s-%d", tokenID, ts.Unix())
	}

	return domain.UpstreamTrade{
		Fingerprint: fingerprint,
		TokenID:     tokenID,
		Side:        domain.Side(strings.ToUpper(strings.TrimSpace(a.Side))),
		RawSide:     a.Side,
		Size:        float64(a.Size),
		Price:       float64(a.Price),
		Timestamp:   ts,
		Market:      firstNonEmpty(a.Title, a.Market, a.Question, a.Slug),
	}
}

// APIPosition is a holding row from the data API positions endpoint.
type APIPosition struct {
	AssetID      string    `json:"asset"`
	Title        string    `json:"title"`
	Size         flexFloat `json:"size"`
	AvgPrice     flexFloat `json:"avgPrice"`
	CurrentValue flexFloat `json:"currentValue"`
	CashPnL      flexFloat `json:"cashPnl"`
}

// ToHolding converts the raw row to a domain.TraderHolding.
func (p *APIPosition) ToHolding() domain.TraderHolding {
	return domain.TraderHolding{
		TokenID:      p.AssetID,
		Market:       p.Title,
		Size:         float64(p.Size),
		AvgPrice:     float64(p.AvgPrice),
		CurrentValue: float64(p.CurrentValue),
		CashPnL:      float64(p.CashPnL),
	}
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market row from the Gamma API. Token ids arrive as a
// JSON-encoded string array inside a string field.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Slug          string   `json:"slug"`
	ConditionID   string   `json:"conditionId"`
	Active        flexBool `json:"active"`
	Closed        flexBool `json:"closed"`
	Volume        string   `json:"volume"`
	ClobTokenIDs  string   `json:"clobTokenIds"`
	Outcomes      string   `json:"outcomes"`
	OutcomePrices string   `json:"outcomePrices"`
	EndDateISO    string   `json:"endDateIso"`
}

// ToDomain converts a Gamma row to a domain.Market. The first clob token is
// YES and the second NO, matching the outcomes ordering.
func (m *APIMarket) ToDomain() domain.Market {
	dm := domain.Market{
		ID:          m.ID,
		Question:    m.Question,
		Slug:        m.Slug,
		ConditionID: m.ConditionID,
		Active:      bool(m.Active),
		Closed:      bool(m.Closed),
	}

	if v, err := strconv.ParseFloat(m.Volume, 64); err == nil {
		dm.Volume = v
	}

	var tokenIDs []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err == nil {
		if len(tokenIDs) > 0 {
			dm.YesTokenID = tokenIDs[0]
		}
		if len(tokenIDs) > 1 {
			dm.NoTokenID = tokenIDs[1]
		}
	}

	if m.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
			dm.EndDate = &t
		}
	}

	return dm
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIPriceResponse is the response from the CLOB /price endpoint.
type APIPriceResponse struct {
	Price string `json:"price"`
}

// APIMidpointResponse is the response from the CLOB /midpoint endpoint.
type APIMidpointResponse struct {
	Mid string `json:"mid"`
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success    bool   `json:"success"`
	ErrorMsg   string `json:"errorMsg,omitempty"`
	OrderID    string `json:"orderID,omitempty"`
	Status     string `json:"status,omitempty"`
	TransactID string `json:"transactID,omitempty"`
}

// OrderResult is the normalized outcome of an order submission.
type OrderResult struct {
	Success bool
	OrderID string
	Status  string
	Message string
}

func (r *APIOrderResult) toResult() OrderResult {
	return OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Status:  r.Status,
		Message: r.ErrorMsg,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
