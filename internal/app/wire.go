package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/polybacker/polybacker/internal/blob/s3"
	"github.com/polybacker/polybacker/internal/cache/redis"
	"github.com/polybacker/polybacker/internal/config"
	"github.com/polybacker/polybacker/internal/crypto"
	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/engine"
	"github.com/polybacker/polybacker/internal/notify"
	"github.com/polybacker/polybacker/internal/platform/polymarket"
	"github.com/polybacker/polybacker/internal/store/sqlite"
)

// Dependencies bundles everything the application needs to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Users  domain.UserStore
	Prefs  domain.PrefStore
	Stores engine.Stores

	Data  *polymarket.DataClient
	Gamma *polymarket.GammaClient

	// Signer is nil when no wallet private key is configured; engines then
	// refuse live starts.
	Signer *crypto.Signer
	// Cipher is nil when no creds_key is configured; storing per-user venue
	// credentials is then refused.
	Cipher *crypto.CredsCipher

	Notifier *notify.Notifier

	// PriceCache is nil when redis is not configured.
	PriceCache engine.PriceCache
	// Archiver is nil when no archive bucket is configured.
	Archiver *s3blob.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- SQLite ---
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
	}
	closers = append(closers, func() { _ = db.Close() })

	if err := db.RunMigrations(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: sqlite migrations: %w", err)
	}

	trades := sqlite.NewTradeStore(db)
	events := sqlite.NewEventStore(db)
	deps.Users = sqlite.NewUserStore(db)
	deps.Prefs = sqlite.NewPrefStore(db)
	deps.Stores = engine.Stores{
		Trades:    trades,
		Traders:   sqlite.NewTraderStore(db),
		Dedup:     sqlite.NewDedupStore(db),
		Positions: sqlite.NewPositionStore(db),
		Funds:     sqlite.NewFundStore(db),
		Events:    events,
	}

	// --- Venue clients ---
	deps.Data, err = polymarket.NewDataClient(cfg.Polymarket.DataHost, cfg.Polymarket.ProxyURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: data client: %w", err)
	}
	deps.Gamma, err = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, cfg.Polymarket.ProxyURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: gamma client: %w", err)
	}

	// --- Wallet ---
	if cfg.HasWallet() {
		deps.Signer, err = crypto.NewSigner(cfg.Wallet.PrivateKey, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
	}
	if cfg.Wallet.CredsKey != "" {
		deps.Cipher, err = crypto.NewCredsCipher(cfg.Wallet.CredsKey)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: creds cipher: %w", err)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Redis price cache (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			// The cache is an optimization; run without it.
			logger.Warn("redis unavailable, price cache disabled", "error", err)
		} else {
			closers = append(closers, func() { _ = redisClient.Close() })
			deps.PriceCache = redis.NewPriceCache(redisClient, 0, logger)
		}
	}

	// --- S3 archiver (optional) ---
	if cfg.Archive.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			trades,
			events,
			time.Duration(cfg.Archive.RetentionDays)*24*time.Hour,
			time.Duration(cfg.Archive.IntervalHours)*time.Hour,
			logger,
		)
	}

	return deps, cleanup, nil
}
