// Package config defines the top-level configuration for the hourly trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HOURLYBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Binance    BinanceConfig    `toml:"binance"`
	Market     MarketConfig     `toml:"market"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Risk       RiskConfig       `toml:"risk"`
	Execution  ExecutionConfig  `toml:"execution"`
	Rollover   RolloverConfig   `toml:"rollover"`
	Engine     EngineConfig     `toml:"engine"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	FunderAddress    string `toml:"funder_address"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// BinanceConfig holds the oracle price feed connection parameters.
type BinanceConfig struct {
	WsHost string `toml:"ws_host"`
	Symbol string `toml:"symbol"`
}

// MarketConfig describes which recurring hourly market the bot trades.
type MarketConfig struct {
	Asset        string `toml:"asset"`
	SlugTemplate string `toml:"slug_template"`
	Timezone     string `toml:"timezone"`
	Outcome      string `toml:"outcome"`
}

// StrategyConfig holds entry and exit parameters for the early-entry strategy.
type StrategyConfig struct {
	Name                   string  `toml:"name"`
	MinMinutesSinceOpen    float64 `toml:"min_minutes_since_open"`
	MaxMinutesUntilClose   float64 `toml:"max_minutes_until_close"`
	MinEntryPrice          float64 `toml:"min_entry_price"`
	MaxEntryPrice          float64 `toml:"max_entry_price"`
	SideSelection          string  `toml:"side_selection"`
	MaxConcurrentPositions int     `toml:"max_concurrent_positions"`
	ProfitTargetPct        float64 `toml:"profit_target_pct"`
	StopLossPct            float64 `toml:"stop_loss_pct"`
	ExitBufferMinutes      float64 `toml:"exit_buffer_minutes"`
	// StopTightening maps minutes-until-close thresholds to tighter stop
	// percentages, e.g. {"30" = 15.0, "15" = 10.0, "5" = 5.0}.
	StopTightening map[string]float64 `toml:"stop_tightening"`
}

// StopThreshold pairs a minutes-until-close bound with the stop percentage
// that applies inside it.
type StopThreshold struct {
	MinutesUntilClose float64
	StopPct           float64
}

// StopTable returns the stop-tightening schedule sorted by ascending
// minutes-until-close. Keys that fail to parse are skipped; Validate reports
// them separately.
func (s StrategyConfig) StopTable() []StopThreshold {
	out := make([]StopThreshold, 0, len(s.StopTightening))
	for k, pct := range s.StopTightening {
		mins, err := parseThreshold(k)
		if err != nil {
			continue
		}
		out = append(out, StopThreshold{MinutesUntilClose: mins, StopPct: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MinutesUntilClose < out[j].MinutesUntilClose
	})
	return out
}

func parseThreshold(k string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(k), 64)
}

// RiskConfig holds the gatekeeper limits.
type RiskConfig struct {
	InitialCapital    float64  `toml:"initial_capital"`
	MaxTotalExposure  float64  `toml:"max_total_exposure"`
	MaxPositionSize   float64  `toml:"max_position_size"`
	MaxDrawdownPct    float64  `toml:"max_drawdown_pct"`
	MaxSlippagePct    float64  `toml:"max_slippage_pct"`
	TradeCooldown     duration `toml:"trade_cooldown"`
	MaxTradesPerMin   int      `toml:"max_trades_per_min"`
	EntryCutoffMins   float64  `toml:"entry_cutoff_mins"`
	KillSwitchOnStart bool     `toml:"kill_switch_on_start"`
}

// ExecutionConfig holds order lifecycle parameters.
type ExecutionConfig struct {
	DryRun        bool     `toml:"dry_run"`
	OrderTimeout  duration `toml:"order_timeout"`
	PollInterval  duration `toml:"poll_interval"`
	DryRunLatency duration `toml:"dry_run_latency"`
}

// RolloverConfig controls the switch between consecutive hourly instruments.
type RolloverConfig struct {
	LeadTime       duration `toml:"lead_time"`
	CarryPositions bool     `toml:"carry_positions"`
	CheckInterval  duration `toml:"check_interval"`
}

// EngineConfig holds control-loop timing parameters.
type EngineConfig struct {
	TickInterval     duration `toml:"tick_interval"`
	SnapshotInterval duration `toml:"snapshot_interval"`
	StaleThreshold   duration `toml:"stale_threshold"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	ForcePathStyle bool     `toml:"force_path_style"`
	RetentionDays  int      `toml:"retention_days"`
	ArchiveEvery   duration `toml:"archive_every"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:       137,
			SignatureType: 1,
		},
		Binance: BinanceConfig{
			WsHost: "wss://stream.binance.com:9443",
			Symbol: "btcusdt",
		},
		Market: MarketConfig{
			Asset:        "BTC",
			SlugTemplate: "bitcoin-up-or-down",
			Timezone:     "America/New_York",
			Outcome:      "YES",
		},
		Strategy: StrategyConfig{
			Name:                   "early_entry",
			MinMinutesSinceOpen:    5,
			MaxMinutesUntilClose:   10,
			MinEntryPrice:          0.05,
			MaxEntryPrice:          0.50,
			SideSelection:          "cheapest",
			MaxConcurrentPositions: 1,
			ProfitTargetPct:        10,
			StopLossPct:            20,
			ExitBufferMinutes:      5,
			StopTightening: map[string]float64{
				"30": 15,
				"15": 10,
				"5":  5,
			},
		},
		Risk: RiskConfig{
			InitialCapital:   1000,
			MaxTotalExposure: 200,
			MaxPositionSize:  50,
			MaxDrawdownPct:   25,
			MaxSlippagePct:   2,
			TradeCooldown:    duration{10 * time.Second},
			MaxTradesPerMin:  6,
			EntryCutoffMins:  10,
		},
		Execution: ExecutionConfig{
			DryRun:        true,
			OrderTimeout:  duration{30 * time.Second},
			PollInterval:  duration{500 * time.Millisecond},
			DryRunLatency: duration{50 * time.Millisecond},
		},
		Rollover: RolloverConfig{
			LeadTime:       duration{2 * time.Minute},
			CarryPositions: false,
			CheckInterval:  duration{15 * time.Second},
		},
		Engine: EngineConfig{
			TickInterval:     duration{time.Second},
			SnapshotInterval: duration{5 * time.Second},
			StaleThreshold:   duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "hourlybot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hourlybot-data",
			ForcePathStyle: true,
			RetentionDays:  30,
			ArchiveEvery:   duration{6 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "position_closed", "kill_switch", "error"},
		},
		Mode:     "sim",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"sim":   true,
	"trade": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSideSelections enumerates the accepted values for
// StrategyConfig.SideSelection.
var validSideSelections = map[string]bool{
	"cheapest": true,
	"yes":      true,
	"no":       true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: sim, trade)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet credentials are only required when live trading.
	live := strings.ToLower(c.Mode) == "trade" && !c.Execution.DryRun
	if live {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for live trading")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	if c.Binance.WsHost == "" {
		errs = append(errs, "binance: ws_host must not be empty")
	}
	if c.Binance.Symbol == "" {
		errs = append(errs, "binance: symbol must not be empty")
	}

	if c.Market.Asset == "" {
		errs = append(errs, "market: asset must not be empty")
	}
	if c.Market.SlugTemplate == "" {
		errs = append(errs, "market: slug_template must not be empty")
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("market: invalid timezone %q", c.Market.Timezone))
	}

	if c.Strategy.MinEntryPrice <= 0 || c.Strategy.MinEntryPrice >= 1 {
		errs = append(errs, "strategy: min_entry_price must be in (0, 1)")
	}
	if c.Strategy.MaxEntryPrice <= 0 || c.Strategy.MaxEntryPrice > 1 {
		errs = append(errs, "strategy: max_entry_price must be in (0, 1]")
	}
	if c.Strategy.MinEntryPrice >= c.Strategy.MaxEntryPrice {
		errs = append(errs, "strategy: min_entry_price must be below max_entry_price")
	}
	if !validSideSelections[strings.ToLower(c.Strategy.SideSelection)] {
		errs = append(errs, fmt.Sprintf("strategy: unknown side_selection %q (valid: cheapest, yes, no)", c.Strategy.SideSelection))
	}
	if c.Strategy.MaxConcurrentPositions < 1 {
		errs = append(errs, "strategy: max_concurrent_positions must be >= 1")
	}
	if c.Strategy.ProfitTargetPct <= 0 {
		errs = append(errs, "strategy: profit_target_pct must be > 0")
	}
	if c.Strategy.StopLossPct <= 0 {
		errs = append(errs, "strategy: stop_loss_pct must be > 0")
	}
	for k := range c.Strategy.StopTightening {
		if _, err := parseThreshold(k); err != nil {
			errs = append(errs, fmt.Sprintf("strategy: stop_tightening key %q is not a number", k))
		}
	}

	if c.Risk.InitialCapital <= 0 {
		errs = append(errs, "risk: initial_capital must be > 0")
	}
	if c.Risk.MaxTotalExposure <= 0 {
		errs = append(errs, "risk: max_total_exposure must be > 0")
	}
	if c.Risk.MaxPositionSize <= 0 {
		errs = append(errs, "risk: max_position_size must be > 0")
	}
	if c.Risk.MaxPositionSize > c.Risk.MaxTotalExposure {
		errs = append(errs, "risk: max_position_size must not exceed max_total_exposure")
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct > 100 {
		errs = append(errs, "risk: max_drawdown_pct must be in (0, 100]")
	}
	if c.Risk.MaxSlippagePct < 0 {
		errs = append(errs, "risk: max_slippage_pct must be >= 0")
	}
	if c.Risk.MaxTradesPerMin < 1 {
		errs = append(errs, "risk: max_trades_per_min must be >= 1")
	}

	if c.Execution.OrderTimeout.Duration <= 0 {
		errs = append(errs, "execution: order_timeout must be > 0")
	}
	if c.Execution.PollInterval.Duration <= 0 {
		errs = append(errs, "execution: poll_interval must be > 0")
	}

	if c.Rollover.LeadTime.Duration < 0 {
		errs = append(errs, "rollover: lead_time must be >= 0")
	}

	if c.Engine.TickInterval.Duration <= 0 {
		errs = append(errs, "engine: tick_interval must be > 0")
	}
	if c.Engine.SnapshotInterval.Duration < c.Engine.TickInterval.Duration {
		errs = append(errs, "engine: snapshot_interval must be >= tick_interval")
	}

	// Infra is only required in trade mode; sim runs with mocks and no stores.
	if strings.ToLower(c.Mode) == "trade" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.S3.Enabled {
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when enabled")
			}
			if c.S3.RetentionDays < 1 {
				errs = append(errs, "s3: retention_days must be >= 1 when enabled")
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
