package polymarket

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/polybacker/polybacker/internal/crypto"
	"github.com/polybacker/polybacker/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ClobClient is the REST client for the Polymarket CLOB (Central Limit Order
// Book) API: price queries and order placement. Price endpoints are public;
// order placement needs both the EIP-712 signer and HMAC credentials.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *hostLimiter

	signer        *crypto.Signer
	auth          *crypto.HMACAuth
	signatureType int
	funder        string // maker address when trading through a proxy wallet
}

// NewClobClient creates a CLOB client. signer and auth may be nil for a
// price-only client; PlaceMarketOrder and PlaceLimitOrder then fail with
// domain.ErrNoCredentials.
func NewClobClient(baseURL, proxyURL string, signer *crypto.Signer, auth *crypto.HMACAuth, signatureType int, funder string) (*ClobClient, error) {
	httpClient, err := newHTTPClient(proxyURL)
	if err != nil {
		return nil, err
	}
	return &ClobClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    httpClient,
		limiter:       limiterFor(baseURL),
		signer:        signer,
		auth:          auth,
		signatureType: signatureType,
		funder:        funder,
	}, nil
}

// SetAuth installs HMAC credentials after construction, e.g. once
// DeriveAPIKey has run or a user's stored credentials were decrypted.
func (c *ClobClient) SetAuth(auth *crypto.HMACAuth) {
	c.auth = auth
}

// DeriveAPIKey runs the L1 auth flow: sign a ClobAuth message and exchange
// it for HMAC credentials. The credentials are installed on the client and
// returned so the caller can persist them.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (crypto.HMACAuth, error) {
	if c.signer == nil {
		return crypto.HMACAuth{}, fmt.Errorf("polymarket/clob: derive api key: %w", domain.ErrNoCredentials)
	}

	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()

	sig, err := c.signer.SignAuthMessage(address, timestamp, 0)
	if err != nil {
		return crypto.HMACAuth{}, fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	if err := c.limiter.wait(ctx); err != nil {
		return crypto.HMACAuth{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return crypto.HMACAuth{}, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", "0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return crypto.HMACAuth{}, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return crypto.HMACAuth{}, fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return crypto.HMACAuth{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(body, &authResp); err != nil {
		return crypto.HMACAuth{}, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	auth := crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	c.auth = &auth
	return auth, nil
}

// GetPrice returns the best book price for a token on the given side.
func (c *ClobClient) GetPrice(ctx context.Context, tokenID string, side domain.Side) (float64, error) {
	path := fmt.Sprintf("/price?token_id=%s&side=%s", tokenID, string(side))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get price: %w", err)
	}

	var pr APIPriceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode price: %w", err)
	}
	price, err := strconv.ParseFloat(pr.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse price %q: %w", pr.Price, err)
	}
	return price, nil
}

// GetMidpoint returns the bid/ask midpoint for a token.
func (c *ClobClient) GetMidpoint(ctx context.Context, tokenID string) (float64, error) {
	body, err := c.doGet(ctx, "/midpoint?token_id="+tokenID)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get midpoint: %w", err)
	}

	var mr APIMidpointResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode midpoint: %w", err)
	}
	mid, err := strconv.ParseFloat(mr.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse midpoint %q: %w", mr.Mid, err)
	}
	return mid, nil
}

// PlaceMarketOrder submits a fill-or-kill order for the given USD notional.
// The current book price on the taken side determines the share amount.
func (c *ClobClient) PlaceMarketOrder(ctx context.Context, tokenID string, side domain.Side, usd float64) (OrderResult, error) {
	price, err := c.GetPrice(ctx, tokenID, side)
	if err != nil {
		return OrderResult{}, err
	}
	if price <= 0 || price >= 1 {
		return OrderResult{}, fmt.Errorf("polymarket/clob: market order: unusable price %v: %w", price, domain.ErrUnavailable)
	}

	shares := usd / price
	return c.submitOrder(ctx, tokenID, side, price, shares, "FOK")
}

// PlaceLimitOrder submits a good-til-cancelled order resting at the given
// price for the given share count.
func (c *ClobClient) PlaceLimitOrder(ctx context.Context, tokenID string, side domain.Side, price, shares float64) (OrderResult, error) {
	if price <= 0 || price >= 1 {
		return OrderResult{}, fmt.Errorf("polymarket/clob: limit order: price %v out of (0,1): %w", price, domain.ErrInvalid)
	}
	return c.submitOrder(ctx, tokenID, side, price, shares, "GTC")
}

// submitOrder signs and posts one order. For a BUY the maker amount is the
// USD collateral and the taker amount the shares received; SELL is the
// mirror. Amounts are fixed-point with 6 decimals.
func (c *ClobClient) submitOrder(ctx context.Context, tokenID string, side domain.Side, price, shares float64, orderType string) (OrderResult, error) {
	if c.signer == nil || c.auth == nil || !c.auth.Complete() {
		return OrderResult{}, fmt.Errorf("polymarket/clob: submit order: %w", domain.ErrNoCredentials)
	}
	if !side.Valid() {
		return OrderResult{}, fmt.Errorf("polymarket/clob: submit order: bad side %q: %w", side, domain.ErrInvalid)
	}

	usdUnits := int64(shares * price * 1e6)
	shareUnits := int64(shares * 1e6)

	var makerAmount, takerAmount int64
	sideNum := 0
	if side == domain.SideBuy {
		makerAmount, takerAmount = usdUnits, shareUnits
	} else {
		sideNum = 1
		makerAmount, takerAmount = shareUnits, usdUnits
	}

	maker := c.signer.Address().Hex()
	if c.funder != "" {
		maker = c.funder
	}

	payload := crypto.OrderPayload{
		Salt:          randomSalt(),
		Maker:         maker,
		Signer:        c.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   strconv.FormatInt(makerAmount, 10),
		TakerAmount:   strconv.FormatInt(takerAmount, 10),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideNum,
		SignatureType: c.signatureType,
	}

	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	reqBody := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
			"tokenID":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"expiration":    payload.Expiration,
			"nonce":         payload.Nonce,
			"feeRateBps":    payload.FeeRateBps,
			"side":          string(side),
			"signatureType": payload.SignatureType,
			"signature":     sig,
		},
		"owner":     c.auth.Key,
		"orderType": orderType,
	}

	respBody, err := c.doAuthenticated(ctx, http.MethodPost, "/order", reqBody)
	if err != nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := apiResult.toResult()
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: order rejected: %s", result.Message)
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *ClobClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
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

// doAuthenticated builds, HMAC-signs, and sends a request against the CLOB.
func (c *ClobClient) doAuthenticated(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	address := c.signer.Address().Hex()
	for k, v := range c.auth.L2Headers(address, method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// randomSalt returns a random decimal salt for order uniqueness.
func randomSalt() string {
	max := new(big.Int).Lsh(big.NewInt(1), 62)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return n.String()
}
