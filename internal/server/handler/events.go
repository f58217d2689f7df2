package handler

import (
	"net/http"

	"github.com/polybacker/polybacker/internal/domain"
)

// EventHandler serves the engine audit log.
type EventHandler struct {
	events domain.EventStore
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events domain.EventStore) *EventHandler {
	return &EventHandler{events: events}
}

// List returns the caller's events, newest first. Optional ?strategy= and
// ?type= filters. The owner may pass ?user= to inspect another address.
// GET /api/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	user := claims.Address
	if v := r.URL.Query().Get("user"); v != "" && claims.Role == string(domain.RoleOwner) {
		user = v
	}

	limit, offset := parsePage(r)
	events, err := h.events.ListEvents(r.Context(), domain.EventFilter{
		UserAddress: user,
		Strategy:    domain.Strategy(r.URL.Query().Get("strategy")),
		EventType:   r.URL.Query().Get("type"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		fail(w, err)
		return
	}
	if events == nil {
		events = []domain.EngineEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
