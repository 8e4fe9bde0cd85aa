package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmitache88/polymarket-bots/internal/aggregator"
	"github.com/mmitache88/polymarket-bots/internal/crypto"
	"github.com/mmitache88/polymarket-bots/internal/domain"
	"github.com/mmitache88/polymarket-bots/internal/engine"
	"github.com/mmitache88/polymarket-bots/internal/execution"
	"github.com/mmitache88/polymarket-bots/internal/feed"
	"github.com/mmitache88/polymarket-bots/internal/platform/polymarket"
	"github.com/mmitache88/polymarket-bots/internal/risk"
	"github.com/mmitache88/polymarket-bots/internal/rollover"
	"github.com/mmitache88/polymarket-bots/internal/strategy"
)

// simOracleBase seeds the mock oracle's random walk.
const simOracleBase = 65_000.0

// SimMode runs the full decision loop against synthetic feeds with execution
// forced into dry-run. No external service is touched.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sim mode")

	agg := aggregator.New(a.tradedOutcome(), a.logger)

	marketFeed := feed.NewMockMarketFeed(nil, a.cfg.Engine.TickInterval.Duration, time.Now().UnixNano(), agg.OnMarketUpdate, a.logger)
	oracleFeed := feed.NewMockOracleFeed(a.cfg.Market.Asset, simOracleBase, a.cfg.Engine.TickInterval.Duration, time.Now().UnixNano(), agg.OnOracleUpdate, a.logger)

	execCfg := a.cfg.Execution
	execCfg.DryRun = true
	execSvc := execution.NewService(execCfg, nil, a.logger)

	resolver := &simResolver{template: a.cfg.Market.SlugTemplate}

	eng, err := a.buildEngine(agg, execSvc, resolver, marketFeed, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return marketFeed.Run(ctx) })
	g.Go(func() error { return oracleFeed.Run(ctx) })
	g.Go(func() error { return eng.Run(ctx) })
	return g.Wait()
}

// TradeMode runs against Polymarket and Binance. Orders are simulated when
// execution.dry_run is set; otherwise they are signed and placed on the CLOB.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("dry_run", a.cfg.Execution.DryRun),
	)

	agg := aggregator.New(a.tradedOutcome(), a.logger)

	marketFeed := feed.NewPolymarketFeed(a.cfg.Polymarket.WsHost, nil, agg.OnMarketUpdate, a.logger)
	oracleFeed := feed.NewBinanceFeed(a.cfg.Binance.WsHost, a.cfg.Binance.Symbol, a.cfg.Market.Asset, agg.OnOracleUpdate, a.logger)

	var orderAPI execution.OrderAPI
	if !a.cfg.Execution.DryRun {
		clob, err := a.buildClobClient(ctx)
		if err != nil {
			return err
		}
		orderAPI = clob
	}
	execSvc := execution.NewService(a.cfg.Execution, orderAPI, a.logger)

	gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)
	resolver, err := polymarket.NewHourlyResolver(gamma, a.cfg.Market.SlugTemplate, a.cfg.Market.Timezone, a.logger)
	if err != nil {
		return fmt.Errorf("app: build resolver: %w", err)
	}

	eng, err := a.buildEngine(agg, execSvc, resolver, marketFeed, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return marketFeed.Run(ctx) })
	g.Go(func() error { return oracleFeed.Run(ctx) })
	g.Go(func() error { return eng.Run(ctx) })
	if deps.Archiver != nil {
		g.Go(func() error { return a.runArchiver(ctx, deps) })
	}
	return g.Wait()
}

// buildEngine assembles the strategy, gatekeeper, and rollover controller
// around the shared infrastructure.
func (a *App) buildEngine(
	agg *aggregator.Aggregator,
	execSvc *execution.Service,
	resolver rollover.InstrumentResolver,
	marketFeed feed.MarketDataPort,
	deps *Dependencies,
) (*engine.Engine, error) {
	reg := strategy.NewRegistry()
	reg.Register("early_entry", strategy.NewEarlyEntry(a.cfg.Strategy, a.cfg.Risk, a.logger))

	strat, err := reg.Get(a.cfg.Strategy.Name)
	if err != nil {
		return nil, fmt.Errorf("app: select strategy: %w", err)
	}

	gate := risk.NewGatekeeper(a.cfg.Risk, a.logger)
	roll := rollover.NewController(a.cfg.Rollover, resolver, a.logger)

	return engine.New(a.cfg.Engine, a.cfg.Rollover, engine.Deps{
		Aggregator: agg,
		Strategy:   strat,
		Gatekeeper: gate,
		Execution:  execSvc,
		Rollover:   roll,
		Resolver:   resolver,
		MarketFeed: marketFeed,
		Positions:  deps.Positions,
		Trades:     deps.Trades,
		Snapshots:  deps.Snapshots,
		Prices:     deps.Prices,
		Bus:        deps.Bus,
		Notifier:   deps.Notifier,
	}, a.logger), nil
}

// buildClobClient resolves the wallet key, builds the EIP-712 signer, and
// prepares HMAC credentials, deriving an API key when none is configured.
func (a *App) buildClobClient(ctx context.Context) (*polymarket.ClobClient, error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: load wallet key: %w", err)
	}

	signer, err := crypto.NewSigner(key, a.cfg.Polymarket.ChainID)
	if err != nil {
		return nil, fmt.Errorf("app: build signer: %w", err)
	}

	var hmac *crypto.HMACAuth
	if a.cfg.Polymarket.ApiKey != "" {
		hmac = &crypto.HMACAuth{
			Key:        a.cfg.Polymarket.ApiKey,
			Secret:     a.cfg.Polymarket.ApiSecret,
			Passphrase: a.cfg.Polymarket.ApiPassphrase,
		}
	}

	clob := polymarket.NewClobClient(
		a.cfg.Polymarket.ClobHost,
		signer,
		hmac,
		a.cfg.Polymarket.SignatureType,
		a.cfg.Wallet.FunderAddress,
	)
	if hmac == nil {
		if err := clob.DeriveAPIKey(ctx); err != nil {
			return nil, fmt.Errorf("app: derive api key: %w", err)
		}
	}
	return clob, nil
}

// runArchiver periodically moves aged snapshots and trades to object storage
// and prunes archived snapshot rows from the database.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.S3.ArchiveEvery.Duration
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -a.cfg.S3.RetentionDays)

			n, err := deps.Archiver.ArchiveSnapshots(ctx, cutoff)
			if err != nil {
				a.logger.Warn("snapshot archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				if _, err := deps.Snapshots.DeleteBefore(ctx, cutoff); err != nil {
					a.logger.Warn("snapshot prune failed", slog.String("error", err.Error()))
				}
			}

			if _, err := deps.Archiver.ArchiveTrades(ctx, cutoff); err != nil {
				a.logger.Warn("trade archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// tradedOutcome parses the configured outcome, defaulting to YES.
func (a *App) tradedOutcome() domain.Outcome {
	if strings.EqualFold(a.cfg.Market.Outcome, string(domain.OutcomeNo)) {
		return domain.OutcomeNo
	}
	return domain.OutcomeYes
}

// simResolver fabricates one instrument per wall-clock hour so the sim loop
// exercises rollover without touching the Gamma API.
type simResolver struct {
	template string
}

var _ rollover.InstrumentResolver = (*simResolver)(nil)

func (r *simResolver) Resolve(_ context.Context, at time.Time) (domain.Instrument, error) {
	open := at.Truncate(time.Hour)
	slug := fmt.Sprintf("%s-sim-%s", r.template, open.UTC().Format("2006-01-02-15"))
	return domain.Instrument{
		Slug:       slug,
		Question:   "Simulated hourly window " + slug,
		TokenIDs:   [2]string{slug + "-yes", slug + "-no"},
		Outcomes:   [2]string{"Yes", "No"},
		OpenTime:   open,
		ExpiryTime: open.Add(time.Hour),
	}, nil
}
