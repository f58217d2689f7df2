package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polybacker/polybacker/internal/auth"
	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type statusEnvelope struct {
	Type    string                `json:"type"`
	Payload []engine.WorkerStatus `json:"payload"`
}

func newHubFixture(t *testing.T) (*engine.Supervisor, *httptest.Server, *auth.TokenIssuer) {
	t.Helper()

	sup := engine.NewSupervisor(discardLogger(), nil)
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	hub := NewHub(sup, issuer, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return sup, srv, issuer
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readEnvelope(t *testing.T, conn *websocket.Conn) statusEnvelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env statusEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return env
}

func TestHubQueryTokenHandshake(t *testing.T) {
	t.Parallel()

	sup, srv, issuer := newHubFixture(t)
	token, _, err := issuer.Issue("0xabc", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	env := readEnvelope(t, conn)
	if env.Type != "status" {
		t.Fatalf("type = %q, want status", env.Type)
	}
	if len(env.Payload) != 0 {
		t.Errorf("initial payload = %+v, want empty", env.Payload)
	}

	// A worker transition produces a fresh snapshot.
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := sup.Start(context.Background(), engine.Key{User: "0xabc", Kind: engine.KindCopy}, domain.StrategyCopy, block); err != nil {
		t.Fatalf("start worker: %v", err)
	}

	env = readEnvelope(t, conn)
	if len(env.Payload) != 1 || !env.Payload[0].Running || env.Payload[0].Kind != engine.KindCopy {
		t.Fatalf("payload after start = %+v, want running copy slot", env.Payload)
	}
}

func TestHubFirstFrameHandshake(t *testing.T) {
	t.Parallel()

	_, srv, issuer := newHubFixture(t)
	token, _, err := issuer.Issue("0xabc", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"token": token}); err != nil {
		t.Fatalf("write token: %v", err)
	}
	if env := readEnvelope(t, conn); env.Type != "status" {
		t.Errorf("type = %q, want status", env.Type)
	}
}

func TestHubRejectsBadToken(t *testing.T) {
	t.Parallel()

	_, srv, _ := newHubFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token=not-a-jwt", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("read succeeded, want policy-violation close")
	}
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("close error = %v, want policy violation", err)
	}
}

func TestHubScopesSnapshotsPerUser(t *testing.T) {
	t.Parallel()

	sup, srv, issuer := newHubFixture(t)

	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := sup.Start(context.Background(), engine.Key{User: "0xother", Kind: engine.KindCopy}, domain.StrategyCopy, block); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	if err := sup.Start(context.Background(), engine.Key{Kind: engine.KindPositions}, "", block); err != nil {
		t.Fatalf("start tracker: %v", err)
	}

	token, _, err := issuer.Issue("0xabc", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Another user's slots are invisible; global slots are not.
	env := readEnvelope(t, conn)
	if len(env.Payload) != 1 || env.Payload[0].Kind != engine.KindPositions {
		t.Errorf("payload = %+v, want only the global positions slot", env.Payload)
	}
}
