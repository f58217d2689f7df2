package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/engine"
)

// ExchangeProvider hands out venue clients. ForUser builds one from the
// user's stored credentials, falling back to the server wallet when the user
// has none; the empty user means the server wallet itself. ReadOnly returns
// an unauthenticated client good for price lookups only.
type ExchangeProvider interface {
	ForUser(ctx context.Context, user string) (engine.Exchange, error)
	ReadOnly() engine.Exchange
}

// EngineConfig carries the worker parameters the API cannot override.
type EngineConfig struct {
	CopyDefaults     domain.CopyDefaults
	ArbParams        engine.ArbParams
	PollInterval     time.Duration
	PositionInterval time.Duration
	// TradersFile optionally seeds a user's follow list on copy start.
	TradersFile string
}

// EngineService starts and stops the per-user trading engines through the
// supervisor. Live engines without credentials are refused; dry runs fall
// back to a read-only venue client since they never submit orders.
type EngineService struct {
	sup       *engine.Supervisor
	stores    engine.Stores
	feed      engine.TradeFeed
	markets   engine.MarketSource
	exchanges ExchangeProvider
	notifier  engine.Notifier
	cfg       EngineConfig
	logger    *slog.Logger
}

// NewEngineService wires an EngineService. notifier may be nil.
func NewEngineService(sup *engine.Supervisor, stores engine.Stores, feed engine.TradeFeed, markets engine.MarketSource, exchanges ExchangeProvider, notifier engine.Notifier, cfg EngineConfig, logger *slog.Logger) *EngineService {
	if notifier == nil {
		notifier = engine.NopNotifier{}
	}
	return &EngineService{
		sup:       sup,
		stores:    stores,
		feed:      feed,
		markets:   markets,
		exchanges: exchanges,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// StartCopy launches the caller's copy engine.
func (s *EngineService) StartCopy(ctx context.Context, user string, dryRun bool) error {
	exchange, err := s.exchangeFor(ctx, user, dryRun)
	if err != nil {
		return err
	}
	if err := s.seedTraders(ctx, user); err != nil {
		s.logger.Warn("seed traders", "user", user, "error", err)
	}

	eng := engine.NewCopyEngine(user, s.cfg.CopyDefaults, s.cfg.PollInterval, dryRun,
		s.feed, exchange, s.stores, s.notifier, s.logger)
	return s.sup.Start(ctx, engine.Key{User: user, Kind: engine.KindCopy}, domain.StrategyCopy, eng.Run)
}

// StopCopy cancels the caller's copy engine.
func (s *EngineService) StopCopy(user string) error {
	return s.sup.Stop(engine.Key{User: user, Kind: engine.KindCopy})
}

// StartArb launches the caller's arbitrage engine.
func (s *EngineService) StartArb(ctx context.Context, user string, dryRun bool) error {
	exchange, err := s.exchangeFor(ctx, user, dryRun)
	if err != nil {
		return err
	}

	eng := engine.NewArbEngine(user, s.cfg.ArbParams, s.cfg.PollInterval, dryRun,
		exchange, s.markets, s.stores, s.notifier, s.logger)
	return s.sup.Start(ctx, engine.Key{User: user, Kind: engine.KindArbitrage}, domain.StrategyArbitrage, eng.Run)
}

// StopArb cancels the caller's arbitrage engine.
func (s *EngineService) StopArb(user string) error {
	return s.sup.Stop(engine.Key{User: user, Kind: engine.KindArbitrage})
}

// StartFund launches the global fund engine on the server wallet.
func (s *EngineService) StartFund(ctx context.Context, dryRun bool) error {
	exchange, err := s.exchangeFor(ctx, "", dryRun)
	if err != nil {
		return err
	}

	eng := engine.NewFundEngine(s.cfg.CopyDefaults, s.cfg.PollInterval, dryRun,
		s.feed, exchange, s.stores, s.notifier, s.logger)
	return s.sup.Start(ctx, engine.Key{Kind: engine.KindFund}, domain.StrategyFund, eng.Run)
}

// StopFund cancels the global fund engine.
func (s *EngineService) StopFund() error {
	return s.sup.Stop(engine.Key{Kind: engine.KindFund})
}

// Status snapshots the caller's worker slots plus the global ones.
func (s *EngineService) Status(user string) []engine.WorkerStatus {
	return s.sup.StatusFor(user)
}

// exchangeFor resolves the venue client for an engine start. Missing
// credentials abort a live start but downgrade a dry run to read-only.
func (s *EngineService) exchangeFor(ctx context.Context, user string, dryRun bool) (engine.Exchange, error) {
	exchange, err := s.exchanges.ForUser(ctx, user)
	if err == nil {
		return exchange, nil
	}
	if dryRun && errors.Is(err, domain.ErrNoCredentials) {
		return s.exchanges.ReadOnly(), nil
	}
	return nil, err
}

// seedTraders loads follow addresses from the configured traders file, one
// address per line with an optional alias after it. Lines starting with #
// are skipped. Already-followed addresses are left alone.
func (s *EngineService) seedTraders(ctx context.Context, user string) error {
	if s.cfg.TradersFile == "" {
		return nil
	}

	f, err := os.Open(s.cfg.TradersFile)
	if err != nil {
		return fmt.Errorf("service: open traders file: %w", err)
	}
	defer f.Close()

	added := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		address := fields[0]
		alias := ""
		if len(fields) > 1 {
			alias = strings.Join(fields[1:], " ")
		}

		created, err := s.stores.Traders.AddFollow(ctx, user, address, alias)
		if err != nil {
			s.logger.Warn("seed trader", "address", address, "error", err)
			continue
		}
		if created {
			added++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("service: read traders file: %w", err)
	}

	if added > 0 {
		s.logger.Info("traders seeded", "user", user, "added", added)
	}
	return nil
}
