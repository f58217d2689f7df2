// Package polymarket contains the REST gateways to the venue's three API
// surfaces: the data API (wallet activity), the Gamma API (market discovery),
// and the CLOB API (prices and orders).
package polymarket

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

// newHTTPClient builds the transport shared by the gateway clients. A
// non-empty proxyURL routes all venue traffic through the given proxy.
func newHTTPClient(proxyURL string) (*http.Client, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("polymarket: parse proxy url: %w", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	}

	return client, nil
}

// checkHTTPStatus maps non-2xx status codes to the domain error taxonomy.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
