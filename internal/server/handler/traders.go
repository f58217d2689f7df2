package handler

import (
	"context"
	"net/http"

	"github.com/polybacker/polybacker/internal/domain"
)

// HoldingsSource reports a wallet's current venue holdings. Satisfied by the
// data API client.
type HoldingsSource interface {
	GetTraderPositions(ctx context.Context, wallet string) ([]domain.TraderHolding, error)
}

// TraderHandler manages the caller's followed-trader list.
type TraderHandler struct {
	traders  domain.TraderStore
	holdings HoldingsSource
}

// NewTraderHandler creates a TraderHandler.
func NewTraderHandler(traders domain.TraderStore, holdings HoldingsSource) *TraderHandler {
	return &TraderHandler{traders: traders, holdings: holdings}
}

// List returns the caller's follows. ?all=true includes deactivated rows.
// GET /api/copy/traders
func (h *TraderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	includeInactive := r.URL.Query().Get("all") == "true"
	follows, err := h.traders.ListFollows(r.Context(), claims.Address, includeInactive)
	if err != nil {
		fail(w, err)
		return
	}
	if follows == nil {
		follows = []domain.FollowedTrader{}
	}
	writeJSON(w, http.StatusOK, follows)
}

// Add follows a trader wallet. Re-adding a removed follow reactivates it.
// POST /api/copy/traders
func (h *TraderHandler) Add(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Address string `json:"address"`
		Alias   string `json:"alias"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	created, err := h.traders.AddFollow(r.Context(), claims.Address, req.Address, req.Alias)
	if err != nil {
		fail(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"address": req.Address, "created": created})
}

// Remove deactivates a follow, keeping its counters.
// DELETE /api/copy/traders/{address}
func (h *TraderHandler) Remove(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	address := pathParam(r, "address")
	removed, err := h.traders.RemoveFollow(r.Context(), claims.Address, address)
	if err != nil {
		fail(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "trader not followed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "removed": true})
}

// Positions returns the wallet's current holdings straight from the venue,
// so a user can inspect a trader before or while following them. Nothing is
// persisted.
// GET /api/copy/traders/{address}/positions
func (h *TraderHandler) Positions(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}

	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	holdings, err := h.holdings.GetTraderPositions(r.Context(), address)
	if err != nil {
		fail(w, err)
		return
	}
	if holdings == nil {
		holdings = []domain.TraderHolding{}
	}
	writeJSON(w, http.StatusOK, holdings)
}

// Update applies per-trader sizing overrides. Absent fields keep their
// stored values; explicit nulls clear an override back to the defaults.
// PATCH /api/copy/traders/{address}
func (h *TraderHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Alias          *string           `json:"alias"`
		CopyPercentage *float64          `json:"copy_percentage"`
		MinCopySize    *float64          `json:"min_copy_size"`
		MaxCopySize    *float64          `json:"max_copy_size"`
		MaxDailySpend  *float64          `json:"max_daily_spend"`
		OrderMode      *domain.OrderMode `json:"order_mode"`
		LimitOrderPct  *float64          `json:"limit_order_pct"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderMode != nil && *req.OrderMode != domain.OrderModeMarket && *req.OrderMode != domain.OrderModeLimit {
		writeError(w, http.StatusBadRequest, "order_mode must be market or limit")
		return
	}
	if req.CopyPercentage != nil && (*req.CopyPercentage <= 0 || *req.CopyPercentage > 1) {
		writeError(w, http.StatusBadRequest, "copy_percentage must be in (0, 1]")
		return
	}

	address := pathParam(r, "address")
	overrides := domain.TraderOverrides{
		Alias:          req.Alias,
		CopyPercentage: req.CopyPercentage,
		MinCopySize:    req.MinCopySize,
		MaxCopySize:    req.MaxCopySize,
		MaxDailySpend:  req.MaxDailySpend,
		OrderMode:      req.OrderMode,
		LimitOrderPct:  req.LimitOrderPct,
	}
	if err := h.traders.UpdateFollowOverrides(r.Context(), claims.Address, address, overrides); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "updated": true})
}
