package handler

import (
	"net/http"
	"strconv"

	"github.com/polybacker/polybacker/internal/domain"
)

// TradeHandler serves trade history, stats, and PnL series, always scoped to
// the caller.
type TradeHandler struct {
	trades     domain.TradeStore
	dailyLimit float64
}

// NewTradeHandler creates a TradeHandler. dailyLimit is echoed in copy stats.
func NewTradeHandler(trades domain.TradeStore, dailyLimit float64) *TradeHandler {
	return &TradeHandler{trades: trades, dailyLimit: dailyLimit}
}

// ListCopy returns the caller's copy trades.
// GET /api/copy/trades
func (h *TradeHandler) ListCopy(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, domain.StrategyCopy)
}

// ListArb returns the caller's arbitrage trades.
// GET /api/arb/trades
func (h *TradeHandler) ListArb(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, domain.StrategyArbitrage)
}

func (h *TradeHandler) list(w http.ResponseWriter, r *http.Request, strategy domain.Strategy) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	limit, offset := parsePage(r)
	filter := domain.TradeFilter{
		UserAddress: claims.Address,
		Strategy:    strategy,
		Status:      domain.TradeStatus(r.URL.Query().Get("status")),
		Search:      r.URL.Query().Get("q"),
		Limit:       limit,
		Offset:      offset,
	}

	trades, err := h.trades.ListTrades(r.Context(), filter)
	if err != nil {
		fail(w, err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// CopyStats aggregates the caller's copy history.
// GET /api/copy/stats
func (h *TradeHandler) CopyStats(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	stats, err := h.trades.CopyStats(r.Context(), claims.Address)
	if err != nil {
		fail(w, err)
		return
	}
	stats.DailyLimit = h.dailyLimit
	writeJSON(w, http.StatusOK, stats)
}

// ArbStats aggregates the caller's arbitrage history.
// GET /api/arb/stats
func (h *TradeHandler) ArbStats(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	stats, err := h.trades.ArbStats(r.Context(), claims.Address)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CopyPnL returns the caller's copy PnL series. ?days=N, default 30.
// GET /api/copy/pnl
func (h *TradeHandler) CopyPnL(w http.ResponseWriter, r *http.Request) {
	h.pnl(w, r, domain.StrategyCopy)
}

// ArbPnL returns the caller's arbitrage PnL series.
// GET /api/arb/pnl
func (h *TradeHandler) ArbPnL(w http.ResponseWriter, r *http.Request) {
	h.pnl(w, r, domain.StrategyArbitrage)
}

func (h *TradeHandler) pnl(w http.ResponseWriter, r *http.Request, strategy domain.Strategy) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	series, err := h.trades.PnLSeries(r.Context(), claims.Address, strategy, days)
	if err != nil {
		fail(w, err)
		return
	}
	if series == nil {
		series = []domain.PnLPoint{}
	}
	writeJSON(w, http.StatusOK, series)
}
