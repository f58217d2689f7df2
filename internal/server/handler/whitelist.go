package handler

import (
	"net/http"
	"strings"

	"github.com/polybacker/polybacker/internal/domain"
)

// WhitelistHandler manages which addresses may authenticate. Owner only.
type WhitelistHandler struct {
	users domain.UserStore
	owner string
}

// NewWhitelistHandler creates a WhitelistHandler. owner is protected from
// removal.
func NewWhitelistHandler(users domain.UserStore, owner string) *WhitelistHandler {
	return &WhitelistHandler{users: users, owner: strings.ToLower(owner)}
}

// List returns every whitelisted address.
// GET /api/whitelist
func (h *WhitelistHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}

	entries, err := h.users.ListWhitelist(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	if entries == nil {
		entries = []domain.WhitelistEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Add whitelists an address.
// POST /api/whitelist
func (h *WhitelistHandler) Add(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	if err := h.users.AddWhitelist(r.Context(), req.Address, claims.Address); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"address": strings.ToLower(req.Address)})
}

// Remove deletes an address from the whitelist. The owner cannot be removed.
// DELETE /api/whitelist/{address}
func (h *WhitelistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}

	address := strings.ToLower(pathParam(r, "address"))
	if address == h.owner {
		writeError(w, http.StatusForbidden, "cannot remove the owner from the whitelist")
		return
	}

	if err := h.users.RemoveWhitelist(r.Context(), address); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "removed": true})
}
