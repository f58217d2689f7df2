package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/polybacker/polybacker/internal/auth"
	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/engine"
	"github.com/polybacker/polybacker/internal/platform/polymarket"
	"github.com/polybacker/polybacker/internal/server/handler"
	"github.com/polybacker/polybacker/internal/service"
	"github.com/polybacker/polybacker/internal/store/sqlite"
)

const testOwner = "0xaaaa00000000000000000000000000000000aaaa"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubExchange struct{}

func (stubExchange) GetPrice(context.Context, string, domain.Side) (float64, error) {
	return 0.5, nil
}

func (stubExchange) GetMidpoint(context.Context, string) (float64, error) { return 0.5, nil }

func (stubExchange) PlaceMarketOrder(context.Context, string, domain.Side, float64) (polymarket.OrderResult, error) {
	return polymarket.OrderResult{Success: true, OrderID: "ord-1"}, nil
}

func (stubExchange) PlaceLimitOrder(context.Context, string, domain.Side, float64, float64) (polymarket.OrderResult, error) {
	return polymarket.OrderResult{Success: true, OrderID: "ord-1"}, nil
}

type stubProvider struct{}

func (stubProvider) ForUser(context.Context, string) (engine.Exchange, error) {
	return stubExchange{}, nil
}

func (stubProvider) ReadOnly() engine.Exchange { return stubExchange{} }

type stubFeed struct{}

func (stubFeed) GetTraderTrades(context.Context, string, int) ([]domain.UpstreamTrade, error) {
	return nil, nil
}

func (stubFeed) GetTraderPositions(context.Context, string) ([]domain.TraderHolding, error) {
	return nil, nil
}

type stubCatalog struct{}

func (stubCatalog) ListActiveMarkets(context.Context, int) ([]domain.Market, error) {
	return []domain.Market{{ID: "m1", Question: "Will it rain?"}}, nil
}

func (stubCatalog) SearchMarkets(context.Context, string, int) ([]domain.Market, error) {
	return nil, nil
}

func (stubCatalog) GetMarket(_ context.Context, id string) (domain.Market, error) {
	return domain.Market{ID: id}, nil
}

// testServer assembles the full server over sqlite stores and stub venue
// clients, mirroring the production wiring.
func newTestServer(t *testing.T) (http.Handler, *auth.TokenIssuer) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := sqlite.NewUserStore(db)
	prefs := sqlite.NewPrefStore(db)
	stores := engine.Stores{
		Trades:    sqlite.NewTradeStore(db),
		Traders:   sqlite.NewTraderStore(db),
		Dedup:     sqlite.NewDedupStore(db),
		Positions: sqlite.NewPositionStore(db),
		Funds:     sqlite.NewFundStore(db),
		Events:    sqlite.NewEventStore(db),
	}

	logger := discardLogger()
	sup := engine.NewSupervisor(logger, stores.Events)
	cfg := service.EngineConfig{PollInterval: time.Hour, PositionInterval: time.Hour}
	engines := service.NewEngineService(sup, stores, stubFeed{}, stubCatalog{}, stubProvider{}, nil, cfg, logger)
	portfolio := service.NewPortfolioService(stores.Positions, stores.Trades, stubProvider{}, logger)

	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	authSvc := service.NewAuthService(users, issuer, testOwner, logger)

	srv := NewServer(
		Config{Port: 0},
		Handlers{
			Health:    handler.NewHealthHandler("test"),
			Auth:      handler.NewAuthHandler(authSvc),
			Engines:   handler.NewEngineHandler(engines, cfg),
			Traders:   handler.NewTraderHandler(stores.Traders, stubFeed{}),
			Trades:    handler.NewTradeHandler(stores.Trades, 500),
			Positions: handler.NewPositionHandler(stores.Positions, portfolio),
			Funds:     handler.NewFundHandler(stores.Funds),
			Whitelist: handler.NewWhitelistHandler(users, testOwner),
			Markets:   handler.NewMarketHandler(stubCatalog{}),
			Prefs:     handler.NewPrefsHandler(prefs, nil),
			Events:    handler.NewEventHandler(stores.Events),
		},
		issuer,
		nil,
		logger,
	)
	return srv.httpServer.Handler, issuer
}

func request(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServerAuthWall(t *testing.T) {
	t.Parallel()

	h, issuer := newTestServer(t)

	if rec := request(t, h, http.MethodGet, "/api/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", rec.Code)
	}
	if rec := request(t, h, http.MethodPost, "/api/auth/nonce", "", nil); rec.Code != http.StatusOK {
		t.Errorf("nonce: status = %d, want 200", rec.Code)
	}
	if rec := request(t, h, http.MethodGet, "/api/status", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("status without token: status = %d, want 401", rec.Code)
	}

	token, _, err := issuer.Issue(testOwner, domain.RoleOwner)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := request(t, h, http.MethodGet, "/api/status", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token: status = %d body = %s", rec.Code, rec.Body.String())
	}
	var status struct {
		Engines []engine.WorkerStatus `json:"engines"`
		Config  map[string]any        `json:"config"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Config == nil {
		t.Error("status config missing")
	}
}

func TestServerEngineRoutes(t *testing.T) {
	t.Parallel()

	h, issuer := newTestServer(t)
	owner, _, err := issuer.Issue(testOwner, domain.RoleOwner)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	user, _, err := issuer.Issue("0xbbbb00000000000000000000000000000000bbbb", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := request(t, h, http.MethodPost, "/api/copy/start", user, map[string]any{"dry_run": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("copy start: status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = request(t, h, http.MethodPost, "/api/copy/stop", user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("copy stop: status = %d body = %s", rec.Code, rec.Body.String())
	}

	// The fund engine slot is owner-only and must not be shadowed by the
	// /api/funds/{id} wildcard.
	rec = request(t, h, http.MethodPost, "/api/funds/engine/start", user, map[string]any{"dry_run": true})
	if rec.Code != http.StatusForbidden {
		t.Errorf("fund start as user: status = %d, want 403", rec.Code)
	}
	rec = request(t, h, http.MethodPost, "/api/funds/engine/start", owner, map[string]any{"dry_run": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("fund start: status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = request(t, h, http.MethodPost, "/api/funds/engine/stop", owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fund stop: status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestServerEngineOutlivesStartRequest(t *testing.T) {
	t.Parallel()

	h, issuer := newTestServer(t)
	// A live server, so request contexts are cancelled when each response
	// returns; the started worker must not die with them.
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	token, _, err := issuer.Issue("0xbbbb00000000000000000000000000000000bbbb", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	do := func(method, path string, body []byte) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader(body))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		return resp
	}

	resp := do(http.MethodPost, "/api/copy/start", []byte(`{"dry_run": true}`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status = %d", resp.StatusCode)
	}

	time.Sleep(200 * time.Millisecond)

	resp = do(http.MethodGet, "/api/status", nil)
	defer resp.Body.Close()
	var status struct {
		Engines []engine.WorkerStatus `json:"engines"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	var copySlot *engine.WorkerStatus
	for i := range status.Engines {
		if status.Engines[i].Kind == engine.KindCopy {
			copySlot = &status.Engines[i]
		}
	}
	if copySlot == nil {
		t.Fatalf("no copy slot in %+v", status.Engines)
	}
	if !copySlot.Running {
		t.Fatalf("copy worker not running after start request returned: %+v", *copySlot)
	}

	resp = do(http.MethodPost, "/api/copy/stop", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stop: status = %d", resp.StatusCode)
	}
}

func TestServerLoginRateLimit(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t)

	var last int
	for i := 0; i < loginRateLimit+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/nonce", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.50")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("request %d: status = %d, want 429", loginRateLimit+1, last)
	}

	// Authenticated routes are not rate limited.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health after limit: status = %d, want 200", rec.Code)
	}
}

func TestServerUnknownRoute(t *testing.T) {
	t.Parallel()

	h, issuer := newTestServer(t)
	token, _, err := issuer.Issue(testOwner, domain.RoleOwner)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rec := request(t, h, http.MethodGet, "/api/nope", token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route: status = %d, want 404", rec.Code)
	}
	if rec := request(t, h, http.MethodDelete, "/api/positions", token, nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: status = %d, want 405", rec.Code)
	}
}

func TestServerErrorShape(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t)

	rec := request(t, h, http.MethodGet, "/api/positions", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q is not JSON: %v", rec.Body.String(), err)
	}
	if body["error"] == "" {
		t.Errorf("error body = %v, want error field", body)
	}
}
