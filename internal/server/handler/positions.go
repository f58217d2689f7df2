package handler

import (
	"net/http"

	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/service"
)

// PositionHandler serves the caller's portfolio.
type PositionHandler struct {
	positions domain.PositionStore
	portfolio *service.PortfolioService
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions domain.PositionStore, portfolio *service.PortfolioService) *PositionHandler {
	return &PositionHandler{positions: positions, portfolio: portfolio}
}

// List returns the caller's open positions.
// GET /api/positions
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	open, err := h.positions.ListOpenPositions(r.Context(), claims.Address)
	if err != nil {
		fail(w, err)
		return
	}
	if open == nil {
		open = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, open)
}

// Summary aggregates the caller's open positions.
// GET /api/positions/summary
func (h *PositionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	sum, err := h.portfolio.Summary(r.Context(), claims.Address)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Closed returns the caller's most recently closed positions.
// GET /api/positions/closed
func (h *PositionHandler) Closed(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	limit, _ := parsePage(r)
	closed, err := h.positions.ListClosedPositions(r.Context(), claims.Address, limit)
	if err != nil {
		fail(w, err)
		return
	}
	if closed == nil {
		closed = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, closed)
}

// CloseAll flattens the caller's open positions with market orders.
// POST /api/positions/close-all
func (h *PositionHandler) CloseAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	report, err := h.portfolio.CloseAll(r.Context(), claims.Address)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RedeemAll closes the caller's settled positions at the boundary price.
// POST /api/positions/redeem-all
func (h *PositionHandler) RedeemAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	report, err := h.portfolio.RedeemAll(r.Context(), claims.Address)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
