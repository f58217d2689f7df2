package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYBACKER_* environment variable overrides,
// and returns the final Config. A missing file is not an error; the defaults
// plus environment are used. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYBACKER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYBACKER_PRIVATE_KEY")
	setInt(&cfg.Wallet.SignatureType, "POLYBACKER_SIGNATURE_TYPE")
	setStr(&cfg.Wallet.Funder, "POLYBACKER_FUNDER")
	setStr(&cfg.Wallet.CredsKey, "POLYBACKER_CREDS_KEY")

	// ── Auth ──
	setStr(&cfg.Auth.JWTSecret, "POLYBACKER_JWT_SECRET")
	setInt(&cfg.Auth.JWTExpiryHours, "POLYBACKER_JWT_EXPIRY_HOURS")

	// ── Copy trading ──
	setFloat(&cfg.Copy.CopyPercentage, "POLYBACKER_COPY_PERCENTAGE")
	setFloat(&cfg.Copy.MinCopySize, "POLYBACKER_MIN_COPY_SIZE")
	setFloat(&cfg.Copy.MaxCopySize, "POLYBACKER_MAX_COPY_SIZE")
	setFloat(&cfg.Copy.MaxDailySpend, "POLYBACKER_MAX_DAILY_SPEND")
	setInt(&cfg.Copy.MaxTradeAgeSec, "POLYBACKER_MAX_TRADE_AGE")
	setStr(&cfg.Copy.OrderMode, "POLYBACKER_ORDER_MODE")
	setFloat(&cfg.Copy.MaxSlippage, "POLYBACKER_MAX_SLIPPAGE")
	setStr(&cfg.Copy.TradersFile, "POLYBACKER_TRADERS_FILE")

	// ── Arbitrage ──
	setFloat(&cfg.Arbitrage.MinProfitPct, "POLYBACKER_MIN_PROFIT_PCT")
	setFloat(&cfg.Arbitrage.TradeAmount, "POLYBACKER_TRADE_AMOUNT")
	setFloat(&cfg.Arbitrage.MaxPositionSize, "POLYBACKER_MAX_POSITION_SIZE")

	// ── Engine ──
	setInt(&cfg.Engine.PollIntervalSec, "POLYBACKER_POLL_INTERVAL")
	setInt(&cfg.Engine.PositionIntervalSec, "POLYBACKER_POSITION_INTERVAL")
	setBool(&cfg.Engine.AutoExecute, "POLYBACKER_AUTO_EXECUTE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYBACKER_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYBACKER_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "POLYBACKER_DATA_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYBACKER_CHAIN_ID")
	setStr(&cfg.Polymarket.ProxyURL, "POLYBACKER_PROXY_URL")

	// ── Database ──
	setStr(&cfg.Database.Path, "POLYBACKER_DB_PATH")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYBACKER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYBACKER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYBACKER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "POLYBACKER_REDIS_TLS_ENABLED")

	// ── Archive ──
	setStr(&cfg.Archive.Endpoint, "POLYBACKER_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "POLYBACKER_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "POLYBACKER_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "POLYBACKER_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "POLYBACKER_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.ForcePathStyle, "POLYBACKER_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "POLYBACKER_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "POLYBACKER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramBotToken, "POLYBACKER_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYBACKER_TELEGRAM_CHAT_ID")

	setStr(&cfg.LogLevel, "POLYBACKER_LOG_LEVEL")

	// The private key may arrive with a 0x prefix; normalize it away so the
	// signer and owner derivation see raw hex.
	cfg.Wallet.PrivateKey = strings.TrimPrefix(
		strings.TrimPrefix(cfg.Wallet.PrivateKey, "0x"), "0X")
}

func setStr(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, env string) {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
