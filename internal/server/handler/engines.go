package handler

import (
	"net/http"

	"github.com/polybacker/polybacker/internal/service"
)

// EngineHandler starts and stops the trading engines and reports their state.
type EngineHandler struct {
	svc *service.EngineService
	cfg service.EngineConfig
}

// NewEngineHandler creates an EngineHandler. cfg is echoed read-only in the
// status payload.
func NewEngineHandler(svc *service.EngineService, cfg service.EngineConfig) *EngineHandler {
	return &EngineHandler{svc: svc, cfg: cfg}
}

type startRequest struct {
	DryRun bool `json:"dry_run"`
}

// Status reports the caller's worker slots and the effective defaults.
// GET /api/status
func (h *EngineHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engines": h.svc.Status(claims.Address),
		"config": map[string]any{
			"copy_percentage": h.cfg.CopyDefaults.CopyPercentage,
			"min_copy_size":   h.cfg.CopyDefaults.MinCopySize,
			"max_copy_size":   h.cfg.CopyDefaults.MaxCopySize,
			"max_daily_spend": h.cfg.CopyDefaults.MaxDailySpend,
			"max_trade_age":   h.cfg.CopyDefaults.MaxTradeAge.Seconds(),
			"order_mode":      h.cfg.CopyDefaults.OrderMode,
			"max_slippage":    h.cfg.CopyDefaults.MaxSlippage,
			"min_profit_pct":  h.cfg.ArbParams.MinProfitPct,
			"trade_amount":    h.cfg.ArbParams.TradeAmount,
			"poll_interval":   h.cfg.PollInterval.Seconds(),
		},
	})
}

// StartCopy launches the caller's copy engine.
// POST /api/copy/start
func (h *EngineHandler) StartCopy(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, func(r *http.Request, user string, dryRun bool) error {
		return h.svc.StartCopy(r.Context(), user, dryRun)
	})
}

// StopCopy cancels the caller's copy engine.
// POST /api/copy/stop
func (h *EngineHandler) StopCopy(w http.ResponseWriter, r *http.Request) {
	h.stop(w, r, h.svc.StopCopy)
}

// StartArb launches the caller's arbitrage engine.
// POST /api/arb/start
func (h *EngineHandler) StartArb(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, func(r *http.Request, user string, dryRun bool) error {
		return h.svc.StartArb(r.Context(), user, dryRun)
	})
}

// StopArb cancels the caller's arbitrage engine.
// POST /api/arb/stop
func (h *EngineHandler) StopArb(w http.ResponseWriter, r *http.Request) {
	h.stop(w, r, h.svc.StopArb)
}

// StartFund launches the global fund engine. Owner only.
// POST /api/funds/engine/start
func (h *EngineHandler) StartFund(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}
	var req startRequest
	decodeJSON(r, &req) // empty body means a live start

	if err := h.svc.StartFund(r.Context(), req.DryRun); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"started": true, "dry_run": req.DryRun})
}

// StopFund cancels the global fund engine. Owner only.
// POST /api/funds/engine/stop
func (h *EngineHandler) StopFund(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}
	if err := h.svc.StopFund(); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}

func (h *EngineHandler) start(w http.ResponseWriter, r *http.Request, startFn func(r *http.Request, user string, dryRun bool) error) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	var req startRequest
	decodeJSON(r, &req)

	if err := startFn(r, claims.Address, req.DryRun); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"started": true, "dry_run": req.DryRun})
}

func (h *EngineHandler) stop(w http.ResponseWriter, r *http.Request, stopFn func(user string) error) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	if err := stopFn(claims.Address); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}
