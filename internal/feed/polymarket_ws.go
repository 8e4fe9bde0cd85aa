package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/domain"
	"github.com/mmitache88/polymarket-bots/internal/platform/polymarket"
)

// PolymarketFeed connects to the Polymarket CLOB WebSocket, subscribes to the
// book channel for the active instrument's tokens, and pushes each snapshot
// into the handler. It reconnects with backoff on disconnect.
type PolymarketFeed struct {
	wsURL  string
	onBook MarketUpdateHandler
	logger *slog.Logger
	client *polymarket.WSClient

	mu       sync.Mutex
	tokenIDs []string

	closeOnce sync.Once
	done      chan struct{}
}

var _ MarketDataPort = (*PolymarketFeed)(nil)

// NewPolymarketFeed creates a feed that will subscribe to the given token IDs
// once Run connects.
func NewPolymarketFeed(wsURL string, tokenIDs []string, onBook MarketUpdateHandler, logger *slog.Logger) *PolymarketFeed {
	return &PolymarketFeed{
		wsURL:    wsURL,
		tokenIDs: append([]string(nil), tokenIDs...),
		onBook:   onBook,
		logger:   logger.With(slog.String("component", "polymarket_feed")),
		done:     make(chan struct{}),
	}
}

// Run connects, subscribes, and blocks until ctx is cancelled or Close is
// called. Reconnects with a fixed delay on disconnect.
func (f *PolymarketFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("polymarket ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *PolymarketFeed) runConnection(ctx context.Context) error {
	client := polymarket.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnBook(func(upd domain.MarketUpdate) {
		if f.onBook != nil {
			f.onBook(upd)
		}
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.client = client
	tokens := append([]string(nil), f.tokenIDs...)
	f.mu.Unlock()

	if len(tokens) > 0 {
		if err := client.Subscribe(ctx, tokens); err != nil {
			return err
		}
		f.logger.Info("polymarket ws subscribed", slog.Int("tokens", len(tokens)))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	case <-client.Done():
		return domain.ErrWSDisconnect
	}
}

// SetAssets swaps the book subscription to a new token set. Called by the
// engine at rollover.
func (f *PolymarketFeed) SetAssets(ctx context.Context, tokenIDs []string) error {
	f.mu.Lock()
	old := f.tokenIDs
	f.tokenIDs = append([]string(nil), tokenIDs...)
	client := f.client
	f.mu.Unlock()

	if client == nil {
		return nil
	}
	if len(old) > 0 {
		if err := client.Unsubscribe(ctx, old); err != nil {
			f.logger.Warn("unsubscribe old tokens failed", slog.String("error", err.Error()))
		}
	}
	if err := client.Subscribe(ctx, tokenIDs); err != nil {
		return err
	}
	f.logger.Info("polymarket ws resubscribed", slog.Int("tokens", len(tokenIDs)))
	return nil
}

// Close stops the feed.
func (f *PolymarketFeed) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}
