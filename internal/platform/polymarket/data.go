package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/polybacker/polybacker/internal/domain"
)

// DataClient is the REST client for the Polymarket data API, which exposes
// per-wallet trade activity and holdings. All endpoints are unauthenticated.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *hostLimiter
}

// NewDataClient creates a data API client.
//
// baseURL is the data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL, proxyURL string) (*DataClient, error) {
	httpClient, err := newHTTPClient(proxyURL)
	if err != nil {
		return nil, err
	}
	return &DataClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    limiterFor(baseURL),
	}, nil
}

// GetTraderTrades returns the wallet's most recent TRADE activity rows,
// newest first, canonicalized. Rows with no resolvable token id are dropped.
func (d *DataClient) GetTraderTrades(ctx context.Context, wallet string, limit int) ([]domain.UpstreamTrade, error) {
	if limit <= 0 {
		limit = 50
	}
	params := url.Values{}
	params.Set("user", strings.ToLower(wallet))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("type", "TRADE")

	body, err := d.doGet(ctx, "/activity?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get trades for %s: %w", wallet, err)
	}

	var rows []APITrade
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode trades: %w", err)
	}

	out := make([]domain.UpstreamTrade, 0, len(rows))
	for i := range rows {
		t := rows[i].Canonical()
		if t.TokenID == "" {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTraderPositions returns the wallet's current holdings. Rows with no
// asset id are dropped.
func (d *DataClient) GetTraderPositions(ctx context.Context, wallet string) ([]domain.TraderHolding, error) {
	params := url.Values{}
	params.Set("user", strings.ToLower(wallet))

	body, err := d.doGet(ctx, "/positions?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get positions for %s: %w", wallet, err)
	}

	var rows []APIPosition
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}

	out := make([]domain.TraderHolding, 0, len(rows))
	for i := range rows {
		if rows[i].AssetID == "" {
			continue
		}
		out = append(out, rows[i].ToHolding())
	}
	return out, nil
}

func (d *DataClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := d.limiter.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
