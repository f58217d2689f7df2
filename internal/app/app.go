// Package app wires the whole process together: stores, venue clients, the
// engines and their supervisor, and the HTTP/WebSocket API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polybacker/polybacker/internal/auth"
	"github.com/polybacker/polybacker/internal/config"
	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/engine"
	"github.com/polybacker/polybacker/internal/server"
	"github.com/polybacker/polybacker/internal/server/handler"
	"github.com/polybacker/polybacker/internal/server/ws"
	"github.com/polybacker/polybacker/internal/service"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// shutdownGrace bounds how long shutdown waits for workers and in-flight
// requests.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run wires all dependencies, starts the background workers and the API
// server, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	owner, err := a.bootstrapOwner(ctx, deps)
	if err != nil {
		return err
	}

	sup := engine.NewSupervisor(a.logger, deps.Stores.Events)
	exchanges := newExchangeProvider(a.cfg, deps.Signer, deps.Cipher, deps.Prefs, a.logger)

	engineCfg := service.EngineConfig{
		CopyDefaults: domain.CopyDefaults{
			CopyPercentage: a.cfg.Copy.CopyPercentage,
			MinCopySize:    a.cfg.Copy.MinCopySize,
			MaxCopySize:    a.cfg.Copy.MaxCopySize,
			MaxDailySpend:  a.cfg.Copy.MaxDailySpend,
			MaxTradeAge:    time.Duration(a.cfg.Copy.MaxTradeAgeSec) * time.Second,
			OrderMode:      domain.OrderMode(a.cfg.Copy.OrderMode),
			MaxSlippage:    a.cfg.Copy.MaxSlippage,
		},
		ArbParams: engine.ArbParams{
			MinProfitPct:    a.cfg.Arbitrage.MinProfitPct,
			TradeAmount:     a.cfg.Arbitrage.TradeAmount,
			MaxPositionSize: a.cfg.Arbitrage.MaxPositionSize,
			MarketLimit:     a.cfg.Arbitrage.MarketLimit,
		},
		PollInterval:     time.Duration(a.cfg.Engine.PollIntervalSec) * time.Second,
		PositionInterval: time.Duration(a.cfg.Engine.PositionIntervalSec) * time.Second,
		TradersFile:      a.cfg.Copy.TradersFile,
	}

	engines := service.NewEngineService(sup, deps.Stores, deps.Data, deps.Gamma, exchanges, deps.Notifier, engineCfg, a.logger)
	portfolio := service.NewPortfolioService(deps.Stores.Positions, deps.Stores.Trades, exchanges, a.logger)

	issuer := auth.NewTokenIssuer(a.cfg.Auth.JWTSecret, time.Duration(a.cfg.Auth.JWTExpiryHours)*time.Hour)
	authSvc := service.NewAuthService(deps.Users, issuer, owner, a.logger)

	hub := ws.NewHub(sup, issuer, a.logger)

	srv := server.NewServer(
		server.Config{Port: a.cfg.Server.Port, CORSOrigins: a.cfg.Server.CORSOrigins},
		server.Handlers{
			Health:    handler.NewHealthHandler(Version),
			Auth:      handler.NewAuthHandler(authSvc),
			Engines:   handler.NewEngineHandler(engines, engineCfg),
			Traders:   handler.NewTraderHandler(deps.Stores.Traders, deps.Data),
			Trades:    handler.NewTradeHandler(deps.Stores.Trades, a.cfg.Copy.MaxDailySpend),
			Positions: handler.NewPositionHandler(deps.Stores.Positions, portfolio),
			Funds:     handler.NewFundHandler(deps.Stores.Funds),
			Whitelist: handler.NewWhitelistHandler(deps.Users, owner),
			Markets:   handler.NewMarketHandler(deps.Gamma),
			Prefs:     handler.NewPrefsHandler(deps.Prefs, deps.Cipher),
			Events:    handler.NewEventHandler(deps.Stores.Events),
		},
		issuer,
		hub,
		a.logger,
	)

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(runCtx)
	})

	// The position tracker always runs; it needs no credentials.
	tracker := engine.NewTracker(deps.Stores.Positions, exchanges.ReadOnly(), deps.PriceCache, engineCfg.PositionInterval, a.logger)
	if err := sup.Start(runCtx, engine.Key{Kind: engine.KindPositions}, "", tracker.Run); err != nil {
		return fmt.Errorf("app: start position tracker: %w", err)
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(runCtx)
		})
	}

	// With auto_execute and a wallet, the fund engine comes up on boot.
	if a.cfg.Engine.AutoExecute && a.cfg.HasWallet() {
		if err := engines.StartFund(runCtx, false); err != nil {
			a.logger.Warn("fund engine autostart", "error", err)
		}
	}

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), shutdownGrace)
		defer cancel()

		sup.StopAll(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.Info("application started", "port", a.cfg.Server.Port, "owner", owner)

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		return context.Canceled
	}
	return err
}

// bootstrapOwner derives the owner address from the wallet key, upserts the
// account with the owner role, whitelists it, and claims rows recorded
// before multi-user support under the legacy placeholder address.
func (a *App) bootstrapOwner(ctx context.Context, deps *Dependencies) (string, error) {
	if deps.Signer == nil {
		a.logger.Warn("no wallet configured, running read-only without an owner account")
		return "", nil
	}

	owner := strings.ToLower(deps.Signer.Address().Hex())
	if _, err := deps.Users.UpsertUser(ctx, owner, domain.RoleOwner); err != nil {
		return "", fmt.Errorf("app: bootstrap owner: %w", err)
	}
	if err := deps.Users.AddWhitelist(ctx, owner, "system"); err != nil {
		return "", fmt.Errorf("app: whitelist owner: %w", err)
	}
	if err := deps.Users.ClaimLegacyData(ctx, owner); err != nil {
		return "", fmt.Errorf("app: claim legacy data: %w", err)
	}

	a.logger.Info("owner bootstrapped", "address", owner)
	return owner, nil
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
