package domain

import "time"

// EngineEvent is an append-only audit record emitted by the engines and the
// supervisor.
type EngineEvent struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	UserAddress string         `json:"user_address,omitempty"`
	Strategy    Strategy       `json:"strategy,omitempty"`
	EventType   string         `json:"event_type"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
}

// Well-known event types.
const (
	EventEngineStarted  = "engine_started"
	EventEngineStopped  = "engine_stopped"
	EventTradeDetected  = "trade_detected"
	EventTradeExecuted  = "trade_executed"
	EventTradeFailed    = "trade_failed"
	EventTradeRejected  = "trade_rejected"
	EventPartialArb     = "partial_arbitrage"
	EventPeriodicStats  = "periodic_stats"
	EventNAVUpdated     = "nav_updated"
	EventWorkerError    = "worker_error"
)

// EventFilter narrows listEvents queries. Zero values mean "any".
type EventFilter struct {
	UserAddress string
	Strategy    Strategy
	EventType   string
	Limit       int
	Offset      int
}
