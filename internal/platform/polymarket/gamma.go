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

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery, metadata, and search.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *hostLimiter
}

// NewGammaClient creates a Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL, proxyURL string) (*GammaClient, error) {
	httpClient, err := newHTTPClient(proxyURL)
	if err != nil {
		return nil, err
	}
	return &GammaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    limiterFor(baseURL),
	}, nil
}

// ListActiveMarkets returns open markets ordered by volume, highest first.
// The arbitrage engine scans these for YES/NO underpricing.
func (g *GammaClient) ListActiveMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = 50
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("order", "volume")
	params.Set("ascending", "false")

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
	}
	return decodeMarkets(body)
}

// SearchMarkets returns markets whose question matches the query.
func (g *GammaClient) SearchMarkets(ctx context.Context, query string, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("active", "true")
	params.Set("closed", "false")

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: search markets: %w", err)
	}
	markets, err := decodeMarkets(body)
	if err != nil {
		return nil, err
	}

	// The Gamma list endpoint has no text search; filter client-side.
	if query == "" {
		return markets, nil
	}
	q := strings.ToLower(query)
	var out []domain.Market
	for _, m := range markets {
		if strings.Contains(strings.ToLower(m.Question), q) ||
			strings.Contains(strings.ToLower(m.Slug), q) {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetMarket returns a single market by its Gamma id.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	body, err := g.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var m APIMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	return m.ToDomain(), nil
}

func decodeMarkets(body []byte) ([]domain.Market, error) {
	var rows []APIMarket
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	out := make([]domain.Market, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := g.limiter.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
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
