package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pos(id, token string, shares, entry float64) Position {
	return Position{
		ID:         id,
		TokenID:    token,
		Outcome:    OutcomeYes,
		Shares:     shares,
		EntryPrice: entry,
		EntryTime:  time.Now(),
	}
}

func TestInventoryOpenTracksExposure(t *testing.T) {
	inv := &Inventory{}

	inv.Open(pos("a", "tok-1", 100, 0.40))
	inv.Open(pos("b", "tok-2", 50, 0.20))

	assert.InDelta(t, 50.0, inv.TotalExposure, 1e-9)
	require.NotNil(t, inv.Position("tok-1"))
	assert.Nil(t, inv.Position("tok-3"))
}

func TestInventoryCloseBooksRealizedPnL(t *testing.T) {
	inv := &Inventory{}
	inv.Open(pos("a", "tok-1", 100, 0.40))

	closed, pnl, ok := inv.Close("tok-1", 0.46)
	require.True(t, ok)
	assert.Equal(t, "a", closed.ID)
	assert.InDelta(t, 6.0, pnl, 1e-9)
	assert.InDelta(t, 6.0, inv.RealizedPnL, 1e-9)
	assert.InDelta(t, 0.0, inv.TotalExposure, 1e-9)
	assert.Empty(t, inv.Positions)

	_, _, ok = inv.Close("tok-1", 0.50)
	assert.False(t, ok)
}

func TestInventoryClearDropsWithoutPnL(t *testing.T) {
	inv := &Inventory{}
	inv.Open(pos("a", "tok-1", 100, 0.40))
	inv.Open(pos("b", "tok-2", 10, 0.50))

	dropped := inv.Clear("tok-1")
	assert.Equal(t, 1, dropped)
	assert.InDelta(t, 0.0, inv.RealizedPnL, 1e-9)
	assert.InDelta(t, 5.0, inv.TotalExposure, 1e-9)
	require.Len(t, inv.Positions, 1)
	assert.Equal(t, "tok-2", inv.Positions[0].TokenID)
}

func TestInventoryTotalPnL(t *testing.T) {
	inv := &Inventory{RealizedPnL: 3}
	inv.Open(pos("a", "tok-1", 100, 0.40))

	total := inv.TotalPnL(map[string]float64{"tok-1": 0.45})
	assert.InDelta(t, 3+5.0, total, 1e-9)

	// Unknown tokens contribute zero unrealized.
	assert.InDelta(t, 3.0, inv.TotalPnL(nil), 1e-9)
}

func TestPositionPnLPct(t *testing.T) {
	p := pos("a", "tok", 100, 0.40)
	assert.InDelta(t, 12.5, p.UnrealizedPnLPct(0.45), 1e-9)
	assert.InDelta(t, -25.0, p.UnrealizedPnLPct(0.30), 1e-9)
}
