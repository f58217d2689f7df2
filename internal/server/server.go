// Package server assembles the HTTP API: routes, middleware, and the
// WebSocket status endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/polybacker/polybacker/internal/server/handler"
	"github.com/polybacker/polybacker/internal/server/middleware"
	"github.com/polybacker/polybacker/internal/server/ws"
)

// loginRateLimit bounds unauthenticated login traffic per client IP.
const (
	loginRateLimit  = 20
	loginRateWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Auth      *handler.AuthHandler
	Engines   *handler.EngineHandler
	Traders   *handler.TraderHandler
	Trades    *handler.TradeHandler
	Positions *handler.PositionHandler
	Funds     *handler.FundHandler
	Whitelist *handler.WhitelistHandler
	Markets   *handler.MarketHandler
	Prefs     *handler.PrefsHandler
	Events    *handler.EventHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux, wires the middleware chain
// (CORS, JWT auth, request logging), and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, verifier middleware.TokenVerifier, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and login flow carry no session.
	loginLimit := middleware.RateLimit(loginRateLimit, loginRateWindow)
	mux.HandleFunc("GET /api/health", handlers.Health.Check)
	mux.Handle("POST /api/auth/nonce", loginLimit(http.HandlerFunc(handlers.Auth.Nonce)))
	mux.Handle("POST /api/auth/verify", loginLimit(http.HandlerFunc(handlers.Auth.Verify)))
	mux.HandleFunc("GET /api/auth/session", handlers.Auth.Session)

	// Engine lifecycle.
	mux.HandleFunc("GET /api/status", handlers.Engines.Status)
	mux.HandleFunc("POST /api/copy/start", handlers.Engines.StartCopy)
	mux.HandleFunc("POST /api/copy/stop", handlers.Engines.StopCopy)
	mux.HandleFunc("POST /api/arb/start", handlers.Engines.StartArb)
	mux.HandleFunc("POST /api/arb/stop", handlers.Engines.StopArb)
	mux.HandleFunc("POST /api/funds/engine/start", handlers.Engines.StartFund)
	mux.HandleFunc("POST /api/funds/engine/stop", handlers.Engines.StopFund)

	// Followed traders.
	mux.HandleFunc("GET /api/copy/traders", handlers.Traders.List)
	mux.HandleFunc("POST /api/copy/traders", handlers.Traders.Add)
	mux.HandleFunc("DELETE /api/copy/traders/{address}", handlers.Traders.Remove)
	mux.HandleFunc("PATCH /api/copy/traders/{address}", handlers.Traders.Update)
	mux.HandleFunc("GET /api/copy/traders/{address}/positions", handlers.Traders.Positions)

	// Trade history and aggregates.
	mux.HandleFunc("GET /api/copy/trades", handlers.Trades.ListCopy)
	mux.HandleFunc("GET /api/copy/stats", handlers.Trades.CopyStats)
	mux.HandleFunc("GET /api/copy/pnl", handlers.Trades.CopyPnL)
	mux.HandleFunc("GET /api/arb/trades", handlers.Trades.ListArb)
	mux.HandleFunc("GET /api/arb/stats", handlers.Trades.ArbStats)
	mux.HandleFunc("GET /api/arb/pnl", handlers.Trades.ArbPnL)

	// Portfolio.
	mux.HandleFunc("GET /api/positions", handlers.Positions.List)
	mux.HandleFunc("GET /api/positions/summary", handlers.Positions.Summary)
	mux.HandleFunc("GET /api/positions/closed", handlers.Positions.Closed)
	mux.HandleFunc("POST /api/positions/close-all", handlers.Positions.CloseAll)
	mux.HandleFunc("POST /api/positions/redeem-all", handlers.Positions.RedeemAll)

	// Funds.
	mux.HandleFunc("GET /api/funds", handlers.Funds.List)
	mux.HandleFunc("POST /api/funds", handlers.Funds.Create)
	mux.HandleFunc("GET /api/funds/{id}", handlers.Funds.Get)
	mux.HandleFunc("PATCH /api/funds/{id}", handlers.Funds.Update)
	mux.HandleFunc("GET /api/funds/{id}/allocations", handlers.Funds.Allocations)
	mux.HandleFunc("PUT /api/funds/{id}/allocations", handlers.Funds.ReplaceAllocations)
	mux.HandleFunc("POST /api/funds/{id}/invest", handlers.Funds.Invest)
	mux.HandleFunc("POST /api/funds/{id}/withdraw", handlers.Funds.Withdraw)
	mux.HandleFunc("GET /api/funds/{id}/investments", handlers.Funds.Investments)
	mux.HandleFunc("GET /api/funds/{id}/performance", handlers.Funds.Performance)
	mux.HandleFunc("GET /api/funds/{id}/trades", handlers.Funds.Trades)

	// Whitelist (owner only, enforced in the handler).
	mux.HandleFunc("GET /api/whitelist", handlers.Whitelist.List)
	mux.HandleFunc("POST /api/whitelist", handlers.Whitelist.Add)
	mux.HandleFunc("DELETE /api/whitelist/{address}", handlers.Whitelist.Remove)

	// Market discovery passthrough.
	mux.HandleFunc("GET /api/markets", handlers.Markets.List)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.Get)

	// Preferences and venue credentials.
	mux.HandleFunc("GET /api/preferences", handlers.Prefs.Get)
	mux.HandleFunc("PUT /api/preferences", handlers.Prefs.Merge)
	mux.HandleFunc("GET /api/credentials", handlers.Prefs.CredsStatus)
	mux.HandleFunc("POST /api/credentials", handlers.Prefs.SaveCreds)
	mux.HandleFunc("DELETE /api/credentials", handlers.Prefs.DeleteCreds)

	// Engine audit log.
	mux.HandleFunc("GET /api/events", handlers.Events.List)

	// WebSocket endpoint; runs its own token handshake.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Logging sits inside auth so request logs carry the session address.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.Auth(verifier)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
