package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// defaultPriceTTL keeps cached midpoints fresh enough for position marks
// while sparing the venue a request per position per sweep.
const defaultPriceTTL = 20 * time.Second

// PriceCache caches token midpoints under "midpoint:<tokenID>". Errors are
// logged and treated as cache misses so a flaky Redis never breaks a sweep.
type PriceCache struct {
	rdb    *Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPriceCache creates a price cache. ttl defaults when zero.
func NewPriceCache(c *Client, ttl time.Duration, logger *slog.Logger) *PriceCache {
	if ttl <= 0 {
		ttl = defaultPriceTTL
	}
	return &PriceCache{
		rdb:    c,
		ttl:    ttl,
		logger: logger.With("component", "price_cache"),
	}
}

func priceKey(tokenID string) string {
	return "midpoint:" + tokenID
}

// Get returns the cached price for a token, reporting whether one was found.
func (pc *PriceCache) Get(ctx context.Context, tokenID string) (float64, bool) {
	val, err := pc.rdb.rdb.Get(ctx, priceKey(tokenID)).Result()
	if err != nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// Set stores a freshly observed price with the cache TTL.
func (pc *PriceCache) Set(ctx context.Context, tokenID string, price float64) {
	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := pc.rdb.rdb.Set(ctx, priceKey(tokenID), val, pc.ttl).Err(); err != nil {
		pc.logger.Debug("cache set failed", "token", tokenID, "error", err)
	}
}
