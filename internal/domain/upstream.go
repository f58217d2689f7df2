package domain

import "time"

// UpstreamTrade is a canonicalized trade observed on a followed wallet via
// the venue's data API. The raw payloads use inconsistent key names; the
// gateway normalizes them before they reach any engine.
type UpstreamTrade struct {
	// Fingerprint is the dedup identity: the transaction hash when present,
	// else an explicit id field, else tokenID + timestamp.
	Fingerprint string
	TokenID     string
	Side        Side // normalized upper-case; may be invalid
	RawSide     string
	Size        float64 // shares
	Price       float64 // in (0,1), 0 when absent
	Timestamp   time.Time
	Market      string // human-readable market/title, best effort
}

// USDValue estimates the trade's notional: size × price when a price is
// known, otherwise the raw size (the data API reports USD sizes for some
// trade kinds).
func (t UpstreamTrade) USDValue() float64 {
	if t.Price > 0 {
		return t.Size * t.Price
	}
	return t.Size
}

// Age returns how long ago the upstream trade happened.
func (t UpstreamTrade) Age(now time.Time) time.Duration {
	if t.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(t.Timestamp)
}
