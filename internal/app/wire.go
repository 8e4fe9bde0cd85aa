package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/mmitache88/polymarket-bots/internal/blob/s3"
	"github.com/mmitache88/polymarket-bots/internal/cache/redis"
	"github.com/mmitache88/polymarket-bots/internal/config"
	"github.com/mmitache88/polymarket-bots/internal/domain"
	"github.com/mmitache88/polymarket-bots/internal/notify"
	"github.com/mmitache88/polymarket-bots/internal/store/postgres"
)

// priceCacheTTL bounds how long a stale cached price can be served.
const priceCacheTTL = 5 * time.Minute

// Dependencies bundles the infrastructure the modes need. In sim mode the
// stores, caches, and blob fields stay nil; the engine treats each nil as a
// disabled concern.
type Dependencies struct {
	Positions domain.PositionStore
	Trades    domain.TradeStore
	Snapshots domain.SnapshotStore

	Prices domain.PriceCache
	Bus    domain.EventBus

	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	Notifier *notify.Notifier
}

// Wire constructs the infrastructure for the configured mode and returns it
// with a cleanup function releasing the connections.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	trade := strings.ToLower(cfg.Mode) == "trade"

	var snapStore *postgres.SnapshotStore
	var tradeStore *postgres.TradeStore

	if trade {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		snapStore = postgres.NewSnapshotStore(pool)
		tradeStore = postgres.NewTradeStore(pool)
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Trades = tradeStore
		deps.Snapshots = snapStore

		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Prices = redis.NewPriceCache(redisClient, priceCacheTTL)
		deps.Bus = redis.NewEventBus(redisClient, logger)
	}

	if trade && cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, snapStore, tradeStore, logger)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
