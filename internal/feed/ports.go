// Package feed connects external market data sources to the engine. Each
// port pushes its latest observation into a handler; the aggregator keeps
// only the most recent value per source, so a slow tick never blocks a feed.
package feed

import (
	"context"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// MarketUpdateHandler receives each orderbook update from a market data port.
type MarketUpdateHandler func(upd domain.MarketUpdate)

// OracleUpdateHandler receives each reference price update from an oracle
// port.
type OracleUpdateHandler func(upd domain.OracleUpdate)

// MarketDataPort streams orderbook state for the active instrument's tokens.
// SetAssets swaps the subscription at rollover without dropping the
// connection.
type MarketDataPort interface {
	Run(ctx context.Context) error
	SetAssets(ctx context.Context, tokenIDs []string) error
	Close() error
}

// OraclePort streams the underlying asset's reference price.
type OraclePort interface {
	Run(ctx context.Context) error
	Close() error
}
