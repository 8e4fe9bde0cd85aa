package feed

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// MockMarketFeed generates synthetic orderbook updates for sim mode. The mid
// price follows a slow sine wave with random noise so entry and exit paths
// both get exercised over a session.
type MockMarketFeed struct {
	interval time.Duration
	onBook   MarketUpdateHandler
	logger   *slog.Logger
	rng      *rand.Rand

	mu       sync.Mutex
	tokenIDs []string

	closeOnce sync.Once
	done      chan struct{}
}

var _ MarketDataPort = (*MockMarketFeed)(nil)

// NewMockMarketFeed creates a synthetic book feed emitting at the given
// interval. seed fixes the noise sequence so sim runs are reproducible.
func NewMockMarketFeed(tokenIDs []string, interval time.Duration, seed int64, onBook MarketUpdateHandler, logger *slog.Logger) *MockMarketFeed {
	return &MockMarketFeed{
		interval: interval,
		onBook:   onBook,
		logger:   logger.With(slog.String("component", "mock_market_feed")),
		rng:      rand.New(rand.NewSource(seed)),
		tokenIDs: append([]string(nil), tokenIDs...),
		done:     make(chan struct{}),
	}
}

// Run emits a book per token per interval until ctx is cancelled.
func (f *MockMarketFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Info("mock market feed started")
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case now := <-ticker.C:
			f.mu.Lock()
			tokens := append([]string(nil), f.tokenIDs...)
			f.mu.Unlock()
			for i, token := range tokens {
				upd := f.synthBook(token, i, now.Sub(start))
				if f.onBook != nil {
					f.onBook(upd)
				}
			}
		}
	}
}

// synthBook builds a two-level book around a drifting mid. The second token
// (NO side) mirrors the first so YES+NO stays near 1.
func (f *MockMarketFeed) synthBook(tokenID string, idx int, elapsed time.Duration) domain.MarketUpdate {
	mid := 0.35 + 0.15*math.Sin(elapsed.Seconds()/120) + f.rng.Float64()*0.02
	if idx == 1 {
		mid = 1 - mid
	}
	if mid < 0.02 {
		mid = 0.02
	}
	if mid > 0.98 {
		mid = 0.98
	}
	spread := 0.01 + f.rng.Float64()*0.01
	now := time.Now()
	book := domain.NewOrderBook(tokenID,
		[]domain.BookLevel{
			{Price: mid - spread/2, Size: 400 + f.rng.Float64()*200},
			{Price: mid - spread, Size: 800},
		},
		[]domain.BookLevel{
			{Price: mid + spread/2, Size: 400 + f.rng.Float64()*200},
			{Price: mid + spread, Size: 800},
		},
		now,
	)
	return domain.MarketUpdate{TokenID: tokenID, Book: book, Timestamp: now}
}

// SetAssets swaps the synthetic token set at rollover.
func (f *MockMarketFeed) SetAssets(ctx context.Context, tokenIDs []string) error {
	f.mu.Lock()
	f.tokenIDs = append([]string(nil), tokenIDs...)
	f.mu.Unlock()
	return nil
}

// Close stops the feed.
func (f *MockMarketFeed) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

// MockOracleFeed generates a synthetic reference price as a random walk
// around a base value.
type MockOracleFeed struct {
	asset    string
	base     float64
	interval time.Duration
	onOracle OracleUpdateHandler
	logger   *slog.Logger
	rng      *rand.Rand

	closeOnce sync.Once
	done      chan struct{}
}

var _ OraclePort = (*MockOracleFeed)(nil)

// NewMockOracleFeed creates a synthetic oracle feed starting at base.
func NewMockOracleFeed(asset string, base float64, interval time.Duration, seed int64, onOracle OracleUpdateHandler, logger *slog.Logger) *MockOracleFeed {
	return &MockOracleFeed{
		asset:    asset,
		base:     base,
		interval: interval,
		onOracle: onOracle,
		logger:   logger.With(slog.String("component", "mock_oracle_feed")),
		rng:      rand.New(rand.NewSource(seed)),
		done:     make(chan struct{}),
	}
}

// Run emits a price per interval until ctx is cancelled.
func (f *MockOracleFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Info("mock oracle feed started", slog.String("asset", f.asset))
	price := f.base
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-ticker.C:
			price += price * (f.rng.Float64() - 0.5) * 0.0004
			if f.onOracle != nil {
				f.onOracle(domain.OracleUpdate{
					Asset:     f.asset,
					Price:     price,
					Timestamp: time.Now(),
				})
			}
		}
	}
}

// Close stops the feed.
func (f *MockOracleFeed) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}
