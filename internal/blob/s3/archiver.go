package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

// TradeSource reads aged trade rows for archival.
type TradeSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// EventSource reads aged engine events for archival.
type EventSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.EngineEvent, error)
}

// Archiver periodically uploads trades and engine events older than the
// retention window as JSONL files under archive/<kind>/YYYY-MM.jsonl.
//
// Rows are not deleted from SQLite here; pruning after a verified archive is
// an operator decision.
type Archiver struct {
	writer    *Writer
	trades    TradeSource
	events    EventSource
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an archiver. retention and interval default to 90 days
// and 24 hours when zero.
func NewArchiver(writer *Writer, trades TradeSource, events EventSource, retention, interval time.Duration, logger *slog.Logger) *Archiver {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Archiver{
		writer:    writer,
		trades:    trades,
		events:    events,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "archiver"),
	}
}

// Run archives once immediately and then on every interval tick.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		a.archiveOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Archiver) archiveOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-a.retention)

	if n, err := a.archiveTrades(ctx, cutoff); err != nil {
		a.logger.Error("archive trades", "error", err)
	} else if n > 0 {
		a.logger.Info("trades archived", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}

	if n, err := a.archiveEvents(ctx, cutoff); err != nil {
		a.logger.Error("archive events", "error", err)
	} else if n > 0 {
		a.logger.Info("events archived", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}

func (a *Archiver) archiveTrades(ctx context.Context, before time.Time) (int, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: query trades: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, err
	}
	if err := a.writer.PutArchive(ctx, archivePath("trades", before), buf); err != nil {
		return 0, err
	}
	return len(trades), nil
}

func (a *Archiver) archiveEvents(ctx context.Context, before time.Time) (int, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: query events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, err
	}
	if err := a.writer.PutArchive(ctx, archivePath("events", before), buf); err != nil {
		return 0, err
	}
	return len(events), nil
}

// archivePath partitions archives by the year-month of the cutoff.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes a slice as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("s3blob: encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
