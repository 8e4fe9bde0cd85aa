package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

func collectUpdates(t *testing.T, run func(context.Context) error, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !done() {
		select {
		case <-deadline:
			t.Fatal("no updates before deadline")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-errCh
}

func TestMockMarketFeedEmitsSaneBooks(t *testing.T) {
	var mu sync.Mutex
	var updates []domain.MarketUpdate

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewMockMarketFeed([]string{"yes-tok", "no-tok"}, time.Millisecond, 42, func(u domain.MarketUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}, logger)

	collectUpdates(t, feed.Run, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) >= 4
	})

	mu.Lock()
	defer mu.Unlock()

	seen := map[string]bool{}
	for _, u := range updates {
		seen[u.TokenID] = true
		bid, ask := u.Book.BestBid(), u.Book.BestAsk()
		require.Greater(t, bid, 0.0)
		require.Greater(t, ask, bid)
		require.Less(t, ask, 1.0)
	}
	assert.True(t, seen["yes-tok"])
	assert.True(t, seen["no-tok"])
}

func TestMockMarketFeedSetAssetsSwapsTokens(t *testing.T) {
	var mu sync.Mutex
	var tokens []string

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewMockMarketFeed([]string{"old-tok"}, time.Millisecond, 1, func(u domain.MarketUpdate) {
		mu.Lock()
		tokens = append(tokens, u.TokenID)
		mu.Unlock()
	}, logger)

	require.NoError(t, feed.SetAssets(context.Background(), []string{"new-tok"}))

	collectUpdates(t, feed.Run, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(tokens) >= 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "new-tok", tokens[0])
}

func TestMockOracleFeedWalksAroundBase(t *testing.T) {
	var mu sync.Mutex
	var prices []float64

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewMockOracleFeed("BTC", 65000, time.Millisecond, 7, func(u domain.OracleUpdate) {
		mu.Lock()
		prices = append(prices, u.Price)
		mu.Unlock()
		assert.Equal(t, "BTC", u.Asset)
	}, logger)

	collectUpdates(t, feed.Run, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(prices) >= 3
	})

	mu.Lock()
	defer mu.Unlock()
	for _, p := range prices {
		assert.InDelta(t, 65000, p, 65000*0.05)
	}
}

func TestMockFeedCloseStopsRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewMockMarketFeed([]string{"tok"}, time.Millisecond, 1, nil, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- feed.Run(context.Background()) }()

	require.NoError(t, feed.Close())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after Close")
	}
}
