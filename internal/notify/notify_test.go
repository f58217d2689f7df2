package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/polybacker/polybacker/internal/domain"
)

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (r *recordingSender) Name() string { return "recorder" }

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	t.Parallel()

	rec := &recordingSender{}
	n := NewNotifier([]Sender{rec}, []string{domain.EventTradeExecuted}, discard())

	n.Notify(context.Background(), domain.EngineEvent{
		Strategy: domain.StrategyCopy, EventType: domain.EventTradeExecuted, Message: "filled",
	})
	n.Notify(context.Background(), domain.EngineEvent{
		Strategy: domain.StrategyCopy, EventType: domain.EventTradeRejected, Message: "skipped",
	})

	if len(rec.titles) != 1 {
		t.Fatalf("sent = %d, want 1", len(rec.titles))
	}
	if rec.titles[0] != "[copy] Trade executed" {
		t.Errorf("title = %q", rec.titles[0])
	}
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	t.Parallel()

	rec := &recordingSender{}
	n := NewNotifier([]Sender{rec}, nil, discard())

	n.Notify(context.Background(), domain.EngineEvent{EventType: "anything", Message: "m"})
	if len(rec.titles) != 1 {
		t.Errorf("sent = %d, want 1", len(rec.titles))
	}
}

func TestNotifierSwallowsSenderFailure(t *testing.T) {
	t.Parallel()

	failing := &recordingSender{err: errors.New("boom")}
	healthy := &recordingSender{}
	n := NewNotifier([]Sender{failing, healthy}, nil, discard())

	// Must not panic or block; the healthy sender still delivers.
	n.Notify(context.Background(), domain.EngineEvent{EventType: domain.EventTradeFailed, Message: "m"})
	if len(healthy.titles) != 1 {
		t.Errorf("healthy sender sent = %d, want 1", len(healthy.titles))
	}
}

func TestTelegramSenderPostsMessage(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok123", "chat456")
	s.apiBase = srv.URL

	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/bottok123/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	for _, want := range []string{"chat456", "Title", "body"} {
		if !strings.Contains(string(gotBody), want) {
			t.Errorf("payload missing %q: %s", want, gotBody)
		}
	}
}

func TestTelegramSenderErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "chat")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), "T", "m"); err == nil {
		t.Error("expected error on 401")
	}
}

func TestDiscordSenderPostsContent(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "Alert", "details"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(string(gotBody), "**Alert**") {
		t.Errorf("payload = %s", gotBody)
	}
}
