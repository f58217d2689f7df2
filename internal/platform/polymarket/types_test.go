package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

func TestAPITradeCanonicalFingerprintPreference(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "tx hash wins",
			raw:  `{"transactionHash":"0xhash","id":"row-1","asset_id":"tok","timestamp":1700000000}`,
			want: "0xhash",
		},
		{
			name: "id when no hash",
			raw:  `{"id":"row-1","asset_id":"tok","timestamp":1700000000}`,
			want: "row-1",
		},
		{
			name: "token plus timestamp fallback",
			raw:  `{"asset_id":"tok","timestamp":1700000000}`,
			want: "tok-1700000000",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var row APITrade
			if err := json.Unmarshal([]byte(tc.raw), &row); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got := row.Canonical()
			if got.Fingerprint != tc.want {
				t.Errorf("fingerprint = %q, want %q", got.Fingerprint, tc.want)
			}
		})
	}
}

func TestAPITradeCanonicalFieldAliases(t *testing.T) {
	t.Parallel()

	// token_id alias, numeric-string size and price, ISO timestamp, side
	// lower case, market title from question.
	raw := `{
		"id": "r1",
		"token_id": "123456",
		"side": "buy",
		"size": "100",
		"price": "0.42",
		"created_at": "2026-08-24T10:00:00Z",
		"question": "Will it happen?"
	}`

	var row APITrade
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := row.Canonical()

	if got.TokenID != "123456" {
		t.Errorf("token = %q", got.TokenID)
	}
	if got.Side != domain.SideBuy {
		t.Errorf("side = %q, want BUY", got.Side)
	}
	if got.Size != 100 || got.Price != 0.42 {
		t.Errorf("size/price = %v/%v", got.Size, got.Price)
	}
	want := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	if !got.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, want)
	}
	if got.Market != "Will it happen?" {
		t.Errorf("market = %q", got.Market)
	}
	if got.USDValue() != 42.0 {
		t.Errorf("usd value = %v, want 42", got.USDValue())
	}
}

func TestAPITradeCanonicalInvalidSide(t *testing.T) {
	t.Parallel()

	var row APITrade
	if err := json.Unmarshal([]byte(`{"id":"r","asset":"tok","side":"MERGE","size":5}`), &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := row.Canonical()
	if got.Side.Valid() {
		t.Errorf("side %q should be invalid", got.Side)
	}
	if got.RawSide != "MERGE" {
		t.Errorf("raw side = %q", got.RawSide)
	}
	// No price: size is treated as the USD notional.
	if got.USDValue() != 5 {
		t.Errorf("usd value = %v, want 5", got.USDValue())
	}
}

func TestAPIMarketToDomain(t *testing.T) {
	t.Parallel()

	raw := `{
		"id": "m1",
		"question": "Will X win?",
		"slug": "will-x-win",
		"conditionId": "0xcond",
		"active": "true",
		"closed": false,
		"volume": "12345.67",
		"clobTokenIds": "[\"111\",\"222\"]",
		"endDateIso": "2026-12-31T00:00:00Z"
	}`

	var m APIMarket
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	dm := m.ToDomain()

	if dm.YesTokenID != "111" || dm.NoTokenID != "222" {
		t.Errorf("tokens = %q/%q", dm.YesTokenID, dm.NoTokenID)
	}
	if !dm.Active || dm.Closed {
		t.Errorf("active/closed = %v/%v", dm.Active, dm.Closed)
	}
	if dm.Volume != 12345.67 {
		t.Errorf("volume = %v", dm.Volume)
	}
	if !dm.Tradeable() {
		t.Error("market should be tradeable")
	}
	if dm.EndDate == nil {
		t.Error("end date not parsed")
	}
}

func TestAPIMarketToDomainMissingTokens(t *testing.T) {
	t.Parallel()

	var m APIMarket
	if err := json.Unmarshal([]byte(`{"id":"m2","active":true,"closed":false,"clobTokenIds":""}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.ToDomain().Tradeable() {
		t.Error("market without tokens must not be tradeable")
	}
}

func TestFlexTimeFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want time.Time
	}{
		{`1700000000`, time.Unix(1700000000, 0).UTC()},
		{`"1700000000"`, time.Unix(1700000000, 0).UTC()},
		{`"2026-08-24T10:00:00Z"`, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)},
		{`""`, time.Time{}},
		{`"garbage"`, time.Time{}},
	}

	for _, tc := range cases {
		var f flexTime
		if err := json.Unmarshal([]byte(tc.raw), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if !f.Time().Equal(tc.want) {
			t.Errorf("%s -> %v, want %v", tc.raw, f.Time(), tc.want)
		}
	}
}
