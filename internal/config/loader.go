package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HOURLYBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HOURLYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "HOURLYBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "HOURLYBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "HOURLYBOT_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.FunderAddress, "HOURLYBOT_WALLET_FUNDER_ADDRESS")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "HOURLYBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "HOURLYBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "HOURLYBOT_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "HOURLYBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "HOURLYBOT_POLYMARKET_SIGNATURE_TYPE")
	setStr(&cfg.Polymarket.ApiKey, "HOURLYBOT_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "HOURLYBOT_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "HOURLYBOT_POLYMARKET_API_PASSPHRASE")

	// ── Binance ──
	setStr(&cfg.Binance.WsHost, "HOURLYBOT_BINANCE_WS_HOST")
	setStr(&cfg.Binance.Symbol, "HOURLYBOT_BINANCE_SYMBOL")

	// ── Market ──
	setStr(&cfg.Market.Asset, "HOURLYBOT_MARKET_ASSET")
	setStr(&cfg.Market.SlugTemplate, "HOURLYBOT_MARKET_SLUG_TEMPLATE")
	setStr(&cfg.Market.Timezone, "HOURLYBOT_MARKET_TIMEZONE")
	setStr(&cfg.Market.Outcome, "HOURLYBOT_MARKET_OUTCOME")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "HOURLYBOT_STRATEGY_NAME")
	setFloat64(&cfg.Strategy.MinMinutesSinceOpen, "HOURLYBOT_STRATEGY_MIN_MINUTES_SINCE_OPEN")
	setFloat64(&cfg.Strategy.MaxMinutesUntilClose, "HOURLYBOT_STRATEGY_MAX_MINUTES_UNTIL_CLOSE")
	setFloat64(&cfg.Strategy.MinEntryPrice, "HOURLYBOT_STRATEGY_MIN_ENTRY_PRICE")
	setFloat64(&cfg.Strategy.MaxEntryPrice, "HOURLYBOT_STRATEGY_MAX_ENTRY_PRICE")
	setStr(&cfg.Strategy.SideSelection, "HOURLYBOT_STRATEGY_SIDE_SELECTION")
	setInt(&cfg.Strategy.MaxConcurrentPositions, "HOURLYBOT_STRATEGY_MAX_CONCURRENT_POSITIONS")
	setFloat64(&cfg.Strategy.ProfitTargetPct, "HOURLYBOT_STRATEGY_PROFIT_TARGET_PCT")
	setFloat64(&cfg.Strategy.StopLossPct, "HOURLYBOT_STRATEGY_STOP_LOSS_PCT")
	setFloat64(&cfg.Strategy.ExitBufferMinutes, "HOURLYBOT_STRATEGY_EXIT_BUFFER_MINUTES")

	// ── Risk ──
	setFloat64(&cfg.Risk.InitialCapital, "HOURLYBOT_RISK_INITIAL_CAPITAL")
	setFloat64(&cfg.Risk.MaxTotalExposure, "HOURLYBOT_RISK_MAX_TOTAL_EXPOSURE")
	setFloat64(&cfg.Risk.MaxPositionSize, "HOURLYBOT_RISK_MAX_POSITION_SIZE")
	setFloat64(&cfg.Risk.MaxDrawdownPct, "HOURLYBOT_RISK_MAX_DRAWDOWN_PCT")
	setFloat64(&cfg.Risk.MaxSlippagePct, "HOURLYBOT_RISK_MAX_SLIPPAGE_PCT")
	setDuration(&cfg.Risk.TradeCooldown, "HOURLYBOT_RISK_TRADE_COOLDOWN")
	setInt(&cfg.Risk.MaxTradesPerMin, "HOURLYBOT_RISK_MAX_TRADES_PER_MIN")
	setFloat64(&cfg.Risk.EntryCutoffMins, "HOURLYBOT_RISK_ENTRY_CUTOFF_MINS")
	setBool(&cfg.Risk.KillSwitchOnStart, "HOURLYBOT_RISK_KILL_SWITCH_ON_START")

	// ── Execution ──
	setBool(&cfg.Execution.DryRun, "HOURLYBOT_EXECUTION_DRY_RUN")
	setDuration(&cfg.Execution.OrderTimeout, "HOURLYBOT_EXECUTION_ORDER_TIMEOUT")
	setDuration(&cfg.Execution.PollInterval, "HOURLYBOT_EXECUTION_POLL_INTERVAL")

	// ── Rollover ──
	setDuration(&cfg.Rollover.LeadTime, "HOURLYBOT_ROLLOVER_LEAD_TIME")
	setBool(&cfg.Rollover.CarryPositions, "HOURLYBOT_ROLLOVER_CARRY_POSITIONS")
	setDuration(&cfg.Rollover.CheckInterval, "HOURLYBOT_ROLLOVER_CHECK_INTERVAL")

	// ── Engine ──
	setDuration(&cfg.Engine.TickInterval, "HOURLYBOT_ENGINE_TICK_INTERVAL")
	setDuration(&cfg.Engine.SnapshotInterval, "HOURLYBOT_ENGINE_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Engine.StaleThreshold, "HOURLYBOT_ENGINE_STALE_THRESHOLD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HOURLYBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HOURLYBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HOURLYBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HOURLYBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HOURLYBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HOURLYBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HOURLYBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HOURLYBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HOURLYBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HOURLYBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HOURLYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HOURLYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HOURLYBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HOURLYBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HOURLYBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HOURLYBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HOURLYBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HOURLYBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HOURLYBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "HOURLYBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HOURLYBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HOURLYBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "HOURLYBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "HOURLYBOT_S3_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HOURLYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HOURLYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HOURLYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HOURLYBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HOURLYBOT_MODE")
	setStr(&cfg.LogLevel, "HOURLYBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
