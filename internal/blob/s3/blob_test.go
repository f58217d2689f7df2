package s3blob

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

type capturedPut struct {
	path        string
	contentType string
	body        string
}

type putRecorder struct {
	mu   sync.Mutex
	puts []capturedPut
}

func (p *putRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		body, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.puts = append(p.puts, capturedPut{
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		p.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

func (p *putRecorder) all() []capturedPut {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedPut(nil), p.puts...)
}

func newTestBucket(t *testing.T) (*Client, *putRecorder) {
	t.Helper()

	rec := &putRecorder{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "archive-test",
		AccessKey:      "test-key",
		SecretKey:      "test-secret",
		ForcePathStyle: true,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, rec
}

func TestWriterPutArchive(t *testing.T) {
	t.Parallel()

	c, rec := newTestBucket(t)
	w := NewWriter(c)

	payload := "{\"id\":1}\n{\"id\":2}\n"
	if err := w.PutArchive(context.Background(), "archive/trades/2026-01.jsonl", []byte(payload)); err != nil {
		t.Fatalf("put: %v", err)
	}

	puts := rec.all()
	if len(puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(puts))
	}
	if puts[0].path != "/archive-test/archive/trades/2026-01.jsonl" {
		t.Errorf("path = %q", puts[0].path)
	}
	if puts[0].contentType != archiveContentType {
		t.Errorf("content type = %q", puts[0].contentType)
	}
	if !strings.Contains(puts[0].body, "{\"id\":2}") {
		t.Errorf("body = %q", puts[0].body)
	}
}

type stubTrades struct{ rows []domain.Trade }

func (s stubTrades) ListBefore(context.Context, time.Time) ([]domain.Trade, error) {
	return s.rows, nil
}

type stubEvents struct{ rows []domain.EngineEvent }

func (s stubEvents) ListBefore(context.Context, time.Time) ([]domain.EngineEvent, error) {
	return s.rows, nil
}

func TestArchiverExportsAgedRows(t *testing.T) {
	t.Parallel()

	c, rec := newTestBucket(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := NewArchiver(
		NewWriter(c),
		stubTrades{rows: []domain.Trade{
			{UserAddress: "0xu", TokenID: "tok-old-1", Status: domain.TradeExecuted},
			{UserAddress: "0xu", TokenID: "tok-old-2", Status: domain.TradeFailed},
		}},
		stubEvents{rows: []domain.EngineEvent{
			{UserAddress: "0xu", EventType: domain.EventEngineStarted},
		}},
		90*24*time.Hour, time.Hour, logger,
	)
	a.archiveOnce(context.Background())

	puts := rec.all()
	if len(puts) != 2 {
		t.Fatalf("puts = %d, want trades and events objects", len(puts))
	}
	byKind := map[string]capturedPut{}
	for _, p := range puts {
		switch {
		case strings.Contains(p.path, "/archive/trades/"):
			byKind["trades"] = p
		case strings.Contains(p.path, "/archive/events/"):
			byKind["events"] = p
		}
	}

	trades, ok := byKind["trades"]
	if !ok {
		t.Fatal("no trades object uploaded")
	}
	if !strings.HasSuffix(trades.path, ".jsonl") {
		t.Errorf("trades key = %q, want .jsonl", trades.path)
	}
	if lines := strings.Count(trades.body, "\n"); lines != 2 {
		t.Errorf("trades lines = %d, want 2", lines)
	}
	if !strings.Contains(trades.body, "tok-old-1") {
		t.Errorf("trades body = %q", trades.body)
	}
	if _, ok := byKind["events"]; !ok {
		t.Error("no events object uploaded")
	}
}

func TestArchiverSkipsWhenEmpty(t *testing.T) {
	t.Parallel()

	c, rec := newTestBucket(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := NewArchiver(NewWriter(c), stubTrades{}, stubEvents{}, 0, 0, logger)
	a.archiveOnce(context.Background())

	if puts := rec.all(); len(puts) != 0 {
		t.Errorf("puts = %d, want none", len(puts))
	}
}
