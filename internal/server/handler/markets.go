package handler

import (
	"context"
	"net/http"

	"github.com/polybacker/polybacker/internal/domain"
)

// MarketCatalog is the read-only market discovery surface. Satisfied by
// polymarket.GammaClient.
type MarketCatalog interface {
	ListActiveMarkets(ctx context.Context, limit int) ([]domain.Market, error)
	SearchMarkets(ctx context.Context, query string, limit int) ([]domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
}

// MarketHandler passes market discovery through to the venue.
type MarketHandler struct {
	catalog MarketCatalog
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(catalog MarketCatalog) *MarketHandler {
	return &MarketHandler{catalog: catalog}
}

// List returns active markets, or a text search when ?q= is given.
// GET /api/markets
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePage(r)

	var (
		markets []domain.Market
		err     error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		markets, err = h.catalog.SearchMarkets(r.Context(), q, limit)
	} else {
		markets, err = h.catalog.ListActiveMarkets(r.Context(), limit)
	}
	if err != nil {
		fail(w, err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// Get returns one market by id.
// GET /api/markets/{id}
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	market, err := h.catalog.GetMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}
