// Package notify pushes engine events to chat channels. Delivery is best
// effort: failures are logged and swallowed so an unreachable bot can never
// stall a trading loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polybacker/polybacker/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier formats engine events and fans them out to every sender. When an
// allow-list of event types is configured, everything else is dropped; an
// empty list allows all.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a notifier over the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With("component", "notifier"),
	}
}

// Notify implements the engines' notifier hook.
func (n *Notifier) Notify(ctx context.Context, e domain.EngineEvent) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.allowed) > 0 && !n.allowed[e.EventType] {
		return
	}

	title := titleFor(e)
	for _, s := range n.senders {
		if err := s.Send(ctx, title, e.Message); err != nil {
			n.logger.Warn("notification failed", "sender", s.Name(), "error", err)
		}
	}
}

func titleFor(e domain.EngineEvent) string {
	var label string
	switch e.EventType {
	case domain.EventTradeExecuted:
		label = "Trade executed"
	case domain.EventTradeFailed:
		label = "Trade failed"
	case domain.EventTradeDetected:
		label = "Trade detected"
	case domain.EventPartialArb:
		label = "Partial arbitrage"
	case domain.EventNAVUpdated:
		label = "Fund NAV"
	default:
		label = e.EventType
	}
	if e.Strategy != "" {
		return fmt.Sprintf("[%s] %s", e.Strategy, label)
	}
	return label
}
