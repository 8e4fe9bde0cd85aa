// Package strategy contains the trading strategies evaluated by the control
// loop once per tick.
package strategy

import (
	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// Strategy defines the contract for trading strategies. Evaluate must be
// side-effect-free and deterministic given its inputs; it returns nil when
// the strategy wants to do nothing this tick.
type Strategy interface {
	Name() string
	Evaluate(snap domain.MarketSnapshot, inv *domain.Inventory) *domain.TradeIntent
}
