// Package config defines the top-level configuration for polybacker and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYBACKER_* environment
// variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Auth       AuthConfig       `toml:"auth"`
	Copy       CopyConfig       `toml:"copy"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Engine     EngineConfig     `toml:"engine"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the server-level trading wallet.
type WalletConfig struct {
	PrivateKey    string `toml:"private_key"`
	SignatureType int    `toml:"signature_type"`
	Funder        string `toml:"funder"`
	// CredsKey encrypts per-user API credentials at rest. Required when
	// users store their own venue credentials.
	CredsKey string `toml:"creds_key"`
}

// AuthConfig holds SIWE/JWT parameters.
type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	JWTExpiryHours int    `toml:"jwt_expiry_hours"`
}

// CopyConfig holds user-level copy trading defaults.
type CopyConfig struct {
	CopyPercentage float64 `toml:"copy_percentage"`
	MinCopySize    float64 `toml:"min_copy_size"`
	MaxCopySize    float64 `toml:"max_copy_size"`
	MaxDailySpend  float64 `toml:"max_daily_spend"`
	MaxTradeAgeSec int     `toml:"max_trade_age"`
	OrderMode      string  `toml:"order_mode"` // "market" or "limit"
	MaxSlippage    float64 `toml:"max_slippage"`
	// TradersFile optionally seeds follow lists on engine start.
	TradersFile string `toml:"traders_file"`
}

// ArbitrageConfig holds YES/NO pair arbitrage parameters.
type ArbitrageConfig struct {
	MinProfitPct    float64 `toml:"min_profit_pct"`
	TradeAmount     float64 `toml:"trade_amount"`
	MaxPositionSize float64 `toml:"max_position_size"`
	MarketLimit     int     `toml:"market_limit"`
}

// EngineConfig holds shared worker-loop parameters.
type EngineConfig struct {
	PollIntervalSec     int  `toml:"poll_interval"`
	PositionIntervalSec int  `toml:"position_interval"`
	AutoExecute         bool `toml:"auto_execute"`
}

// PolymarketConfig holds venue endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	DataHost  string `toml:"data_host"`
	ChainID   int    `toml:"chain_id"`
	ProxyURL  string `toml:"proxy_url"`
}

// DatabaseConfig holds the embedded SQLite store location.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds the optional midpoint price cache. The cache is disabled
// when Addr is empty.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ArchiveConfig holds the optional S3 trade/event archiver. Disabled when
// Bucket is empty.
type ArchiveConfig struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
	IntervalHours  int    `toml:"interval_hours"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramBotToken  string   `toml:"telegram_bot_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			JWTExpiryHours: 72,
		},
		Copy: CopyConfig{
			CopyPercentage: 0.10,
			MinCopySize:    5.0,
			MaxCopySize:    100.0,
			MaxDailySpend:  500.0,
			MaxTradeAgeSec: 300,
			OrderMode:      "limit",
			MaxSlippage:    0.02,
		},
		Arbitrage: ArbitrageConfig{
			MinProfitPct:    1.0,
			TradeAmount:     10.0,
			MaxPositionSize: 100.0,
			MarketLimit:     50,
		},
		Engine: EngineConfig{
			PollIntervalSec:     15,
			PositionIntervalSec: 30,
			AutoExecute:         true,
		},
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			DataHost:  "https://data-api.polymarket.com",
			ChainID:   137,
		},
		Database: DatabaseConfig{
			Path: "polybacker.db",
		},
		Archive: ArchiveConfig{
			Region:        "us-east-1",
			RetentionDays: 90,
			IntervalHours: 24,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_detected", "trade_executed", "trade_failed", "partial_arbitrage"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid values and returns a combined
// error describing every problem found.
func (c *Config) Validate() error {
	var problems []string

	if !validLogLevels[c.LogLevel] {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug/info/warn/error", c.LogLevel))
	}
	if c.Copy.OrderMode != "market" && c.Copy.OrderMode != "limit" {
		problems = append(problems, fmt.Sprintf("copy.order_mode %q is not market or limit", c.Copy.OrderMode))
	}
	if c.Copy.CopyPercentage <= 0 || c.Copy.CopyPercentage > 1 {
		problems = append(problems, "copy.copy_percentage must be in (0, 1]")
	}
	if c.Copy.MinCopySize > c.Copy.MaxCopySize {
		problems = append(problems, "copy.min_copy_size exceeds copy.max_copy_size")
	}
	if c.Copy.MaxSlippage < 0 || c.Copy.MaxSlippage > 0.5 {
		problems = append(problems, "copy.max_slippage must be in [0, 0.5]")
	}
	if c.Arbitrage.MinProfitPct < 0 {
		problems = append(problems, "arbitrage.min_profit_pct must be >= 0")
	}
	if c.Engine.PollIntervalSec <= 0 {
		problems = append(problems, "engine.poll_interval must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// HasWallet reports whether a server-level trading key is configured.
func (c *Config) HasWallet() bool {
	return strings.TrimSpace(c.Wallet.PrivateKey) != ""
}
