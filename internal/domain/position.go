package domain

import "time"

// Position is an open holding in one token. Positions are owned exclusively
// by the Inventory: they are created on entry fills and removed on exit
// fills, always from the control loop.
type Position struct {
	ID         string
	TokenID    string
	Outcome    Outcome
	Shares     float64
	EntryPrice float64
	EntryTime  time.Time
}

// CostBasis returns the dollars paid to open the position.
func (p Position) CostBasis() float64 {
	return p.Shares * p.EntryPrice
}

// UnrealizedPnL returns the mark-to-market profit at the given current price.
func (p Position) UnrealizedPnL(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) * p.Shares
}

// UnrealizedPnLPct returns the mark-to-market profit as a percentage of cost
// basis.
func (p Position) UnrealizedPnLPct(currentPrice float64) float64 {
	basis := p.CostBasis()
	if basis <= 0 {
		return 0
	}
	return p.UnrealizedPnL(currentPrice) / basis * 100
}

// Inventory is the set of open positions plus cumulative realized P&L and
// total dollar exposure. It has a single writer: the control loop mutates it
// synchronously between ticks, so no locking is needed.
type Inventory struct {
	Positions     []Position
	TotalExposure float64
	RealizedPnL   float64
}

// Position returns the open position for the given token, or nil.
func (inv *Inventory) Position(tokenID string) *Position {
	for i := range inv.Positions {
		if inv.Positions[i].TokenID == tokenID {
			return &inv.Positions[i]
		}
	}
	return nil
}

// Open appends a freshly filled position and adds its cost basis to the
// total exposure.
func (inv *Inventory) Open(p Position) {
	inv.Positions = append(inv.Positions, p)
	inv.TotalExposure += p.CostBasis()
}

// Close removes the position for tokenID, books the realized P&L against the
// exit price, and returns the closed position with the realized amount.
// The second return is false when no position exists for the token.
func (inv *Inventory) Close(tokenID string, exitPrice float64) (Position, float64, bool) {
	for i := range inv.Positions {
		if inv.Positions[i].TokenID != tokenID {
			continue
		}
		p := inv.Positions[i]
		pnl := (exitPrice - p.EntryPrice) * p.Shares
		inv.Positions = append(inv.Positions[:i], inv.Positions[i+1:]...)
		inv.TotalExposure -= p.CostBasis()
		inv.RealizedPnL += pnl
		return p, pnl, true
	}
	return Position{}, 0, false
}

// Clear drops every open position for the given token without booking P&L.
// Used at rollover when positions do not carry across instruments.
func (inv *Inventory) Clear(tokenID string) int {
	kept := inv.Positions[:0]
	dropped := 0
	for _, p := range inv.Positions {
		if p.TokenID == tokenID {
			inv.TotalExposure -= p.CostBasis()
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	inv.Positions = kept
	return dropped
}

// UnrealizedPnL sums mark-to-market profit across open positions at the
// given price-per-token lookup. Tokens with no known price contribute zero.
func (inv *Inventory) UnrealizedPnL(prices map[string]float64) float64 {
	var total float64
	for _, p := range inv.Positions {
		if price, ok := prices[p.TokenID]; ok {
			total += p.UnrealizedPnL(price)
		}
	}
	return total
}

// TotalPnL is realized plus unrealized P&L.
func (inv *Inventory) TotalPnL(prices map[string]float64) float64 {
	return inv.RealizedPnL + inv.UnrealizedPnL(prices)
}
