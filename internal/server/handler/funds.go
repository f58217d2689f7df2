package handler

import (
	"net/http"
	"strconv"

	"github.com/polybacker/polybacker/internal/domain"
)

// FundHandler manages pooled funds: lifecycle, allocations, investments, and
// performance history.
type FundHandler struct {
	funds domain.FundStore
}

// NewFundHandler creates a FundHandler.
func NewFundHandler(funds domain.FundStore) *FundHandler {
	return &FundHandler{funds: funds}
}

// List returns funds, active only unless ?all=true.
// GET /api/funds
func (h *FundHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	funds, err := h.funds.ListFunds(r.Context(), activeOnly)
	if err != nil {
		fail(w, err)
		return
	}
	if funds == nil {
		funds = []domain.Fund{}
	}
	writeJSON(w, http.StatusOK, funds)
}

// Create opens a new fund owned by the caller. Owner only.
// POST /api/funds
func (h *FundHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	fund, err := h.funds.CreateFund(r.Context(), domain.Fund{
		OwnerAddress: claims.Address,
		Name:         req.Name,
		Description:  req.Description,
		Active:       true,
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fund)
}

// Get returns one fund with its NAV and allocations.
// GET /api/funds/{id}
func (h *FundHandler) Get(w http.ResponseWriter, r *http.Request) {
	fund, err := h.funds.GetFund(r.Context(), pathParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	allocs, err := h.funds.ListAllocations(r.Context(), fund.ID)
	if err != nil {
		fail(w, err)
		return
	}
	if allocs == nil {
		allocs = []domain.FundAllocation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fund":        fund,
		"nav":         fund.NAV(),
		"allocations": allocs,
	})
}

// Update changes a fund's metadata or active flag. Fund owner only.
// PATCH /api/funds/{id}
func (h *FundHandler) Update(w http.ResponseWriter, r *http.Request) {
	fund, ok := h.ownedFund(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Active      *bool   `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		fund.Name = *req.Name
	}
	if req.Description != nil {
		fund.Description = *req.Description
	}
	if req.Active != nil {
		fund.Active = *req.Active
	}

	if err := h.funds.UpdateFund(r.Context(), fund); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fund)
}

// Allocations returns a fund's trader allocations.
// GET /api/funds/{id}/allocations
func (h *FundHandler) Allocations(w http.ResponseWriter, r *http.Request) {
	allocs, err := h.funds.ListAllocations(r.Context(), pathParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	if allocs == nil {
		allocs = []domain.FundAllocation{}
	}
	writeJSON(w, http.StatusOK, allocs)
}

// ReplaceAllocations swaps a fund's allocation set. Active weights must sum
// to 1.0 within the tolerance. Fund owner only.
// PUT /api/funds/{id}/allocations
func (h *FundHandler) ReplaceAllocations(w http.ResponseWriter, r *http.Request) {
	fund, ok := h.ownedFund(w, r)
	if !ok {
		return
	}

	var req []domain.FundAllocation
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	active := req[:0:0]
	for _, a := range req {
		if a.TraderAddress == "" {
			writeError(w, http.StatusBadRequest, "trader_address is required")
			return
		}
		if a.Active {
			active = append(active, a)
		}
	}
	if err := domain.ValidateAllocations(active); err != nil {
		writeError(w, http.StatusBadRequest, "active allocation weights must sum to 1.0")
		return
	}

	if err := h.funds.ReplaceAllocations(r.Context(), fund.ID, req); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fund_id": fund.ID, "allocations": len(req)})
}

// Invest stakes the caller in a fund at the current NAV.
// POST /api/funds/{id}/invest
func (h *FundHandler) Invest(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	inv, err := h.funds.Invest(r.Context(), pathParam(r, "id"), claims.Address, req.Amount)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// Withdraw redeems one of the caller's investments at the current NAV.
// POST /api/funds/{id}/withdraw
func (h *FundHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		InvestmentID string `json:"investment_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.InvestmentID == "" {
		writeError(w, http.StatusBadRequest, "investment_id is required")
		return
	}

	amount, err := h.funds.Withdraw(r.Context(), req.InvestmentID, claims.Address)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount})
}

// Investments lists a fund's stakes: all of them for the fund owner, only
// the caller's own otherwise.
// GET /api/funds/{id}/investments
func (h *FundHandler) Investments(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	fund, err := h.funds.GetFund(r.Context(), pathParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}

	invs, err := h.funds.ListInvestments(r.Context(), fund.ID)
	if err != nil {
		fail(w, err)
		return
	}
	if fund.OwnerAddress != claims.Address {
		own := invs[:0]
		for _, inv := range invs {
			if inv.InvestorAddress == claims.Address {
				own = append(own, inv)
			}
		}
		invs = own
	}
	if invs == nil {
		invs = []domain.FundInvestment{}
	}
	writeJSON(w, http.StatusOK, invs)
}

// Performance returns the fund's daily NAV snapshots. ?days=N, default 30.
// GET /api/funds/{id}/performance
func (h *FundHandler) Performance(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	perf, err := h.funds.ListPerformance(r.Context(), pathParam(r, "id"), days)
	if err != nil {
		fail(w, err)
		return
	}
	if perf == nil {
		perf = []domain.FundPerformance{}
	}
	writeJSON(w, http.StatusOK, perf)
}

// Trades returns the downstream trades a fund has produced.
// GET /api/funds/{id}/trades
func (h *FundHandler) Trades(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePage(r)
	trades, err := h.funds.ListFundTrades(r.Context(), pathParam(r, "id"), limit)
	if err != nil {
		fail(w, err)
		return
	}
	if trades == nil {
		trades = []domain.FundTrade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// ownedFund loads the fund in the path and verifies the caller owns it.
func (h *FundHandler) ownedFund(w http.ResponseWriter, r *http.Request) (domain.Fund, bool) {
	claims, ok := caller(w, r)
	if !ok {
		return domain.Fund{}, false
	}

	fund, err := h.funds.GetFund(r.Context(), pathParam(r, "id"))
	if err != nil {
		fail(w, err)
		return domain.Fund{}, false
	}
	if fund.OwnerAddress != claims.Address {
		writeError(w, http.StatusForbidden, "not the fund owner")
		return domain.Fund{}, false
	}
	return fund, true
}
