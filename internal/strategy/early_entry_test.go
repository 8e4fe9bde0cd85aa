package strategy

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmitache88/polymarket-bots/internal/config"
	"github.com/mmitache88/polymarket-bots/internal/domain"
)

func newEarlyEntry(mutate func(*config.Config)) *EarlyEntry {
	cfg := config.Defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewEarlyEntry(cfg.Strategy, cfg.Risk, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2026, 8, 30, 14, 10, 0, 0, time.UTC) }
	return s
}

func midSnapshot(bid, ask float64) domain.MarketSnapshot {
	mid := (bid + ask) / 2
	spread := 0.0
	if bid > 0 && ask > 0 {
		spread = (ask - bid) / mid * 100
	}
	return domain.MarketSnapshot{
		TokenID:           "yes-tok",
		PairTokenID:       "no-tok",
		Outcome:           domain.OutcomeYes,
		BestBid:           bid,
		BestAsk:           ask,
		MidPrice:          mid,
		SpreadPct:         spread,
		OraclePrice:       65000,
		MinutesSinceOpen:  10,
		MinutesUntilClose: 50,
		Session:           domain.SessionEarly,
		Timestamp:         time.Now(),
	}
}

func TestEntryBuysTrackedSide(t *testing.T) {
	s := newEarlyEntry(nil)
	snap := midSnapshot(0.40, 0.44)

	intent := s.Evaluate(snap, &domain.Inventory{})
	require.NotNil(t, intent)

	assert.Equal(t, domain.ActionEnter, intent.Action)
	assert.Equal(t, domain.SideBuy, intent.Side)
	assert.Equal(t, "yes-tok", intent.TokenID)
	assert.Equal(t, domain.OutcomeYes, intent.Outcome)
	assert.Equal(t, 0.44, intent.Price)
	assert.Equal(t, 50.0, intent.Size)
	// 0.5 base plus 0.1 for spread under 10%.
	assert.InDelta(t, 0.6, intent.Confidence, 1e-9)
	assert.Equal(t, "early_entry", intent.Strategy)
}

func TestEntryBuysCheaperComplement(t *testing.T) {
	s := newEarlyEntry(nil)
	snap := midSnapshot(0.60, 0.64)

	intent := s.Evaluate(snap, &domain.Inventory{})
	require.NotNil(t, intent)

	assert.Equal(t, "no-tok", intent.TokenID)
	assert.Equal(t, domain.OutcomeNo, intent.Outcome)
	// Complement ask is one minus the tracked bid.
	assert.InDelta(t, 0.40, intent.Price, 1e-9)
}

func TestEntryFixedSide(t *testing.T) {
	s := newEarlyEntry(func(c *config.Config) { c.Strategy.SideSelection = "no" })
	snap := midSnapshot(0.55, 0.59)

	intent := s.Evaluate(snap, &domain.Inventory{})
	require.NotNil(t, intent)
	assert.Equal(t, domain.OutcomeNo, intent.Outcome)
	assert.InDelta(t, 0.45, intent.Price, 1e-9)
}

func TestEntryTimingGuards(t *testing.T) {
	s := newEarlyEntry(nil)

	early := midSnapshot(0.40, 0.44)
	early.MinutesSinceOpen = 3
	assert.Nil(t, s.Evaluate(early, &domain.Inventory{}))

	late := midSnapshot(0.40, 0.44)
	late.MinutesUntilClose = 8
	assert.Nil(t, s.Evaluate(late, &domain.Inventory{}))
}

func TestEntrySkipsAreLoggedWithReason(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := config.Defaults()
	s := NewEarlyEntry(cfg.Strategy, cfg.Risk, logger)

	// Price above the entry band.
	dear := midSnapshot(0.52, 0.56)
	dear.MidPrice = 0.49
	require.Nil(t, s.Evaluate(dear, &domain.Inventory{}))
	assert.Contains(t, buf.String(), "price outside entry band")

	buf.Reset()
	early := midSnapshot(0.40, 0.44)
	early.MinutesSinceOpen = 3
	require.Nil(t, s.Evaluate(early, &domain.Inventory{}))
	assert.Contains(t, buf.String(), "window too young")

	buf.Reset()
	spent := &domain.Inventory{TotalExposure: cfg.Risk.MaxTotalExposure}
	require.Nil(t, s.Evaluate(midSnapshot(0.40, 0.44), spent))
	assert.Contains(t, buf.String(), "exposure budget exhausted")
}

func TestEntryPriceBand(t *testing.T) {
	s := newEarlyEntry(nil)

	tooCheap := midSnapshot(0.01, 0.03)
	assert.Nil(t, s.Evaluate(tooCheap, &domain.Inventory{}))

	tooDear := midSnapshot(0.46, 0.52)
	assert.Nil(t, s.Evaluate(tooDear, &domain.Inventory{}))
}

func TestEntrySizeRespectsRemainingBudget(t *testing.T) {
	s := newEarlyEntry(nil)
	snap := midSnapshot(0.40, 0.44)

	intent := s.Evaluate(snap, &domain.Inventory{TotalExposure: 170})
	require.NotNil(t, intent)
	assert.InDelta(t, 30.0, intent.Size, 1e-9)

	assert.Nil(t, s.Evaluate(snap, &domain.Inventory{TotalExposure: 200}))
}

func TestEntryConcurrencyCap(t *testing.T) {
	s := newEarlyEntry(nil)
	snap := midSnapshot(0.40, 0.44)

	inv := &domain.Inventory{}
	inv.Open(domain.Position{ID: "a", TokenID: "other-tok", Shares: 10, EntryPrice: 0.3})

	assert.Nil(t, s.Evaluate(snap, inv))
}

func TestExitProfitTarget(t *testing.T) {
	s := newEarlyEntry(nil)
	snap := midSnapshot(0.45, 0.49)

	inv := &domain.Inventory{}
	inv.Open(domain.Position{ID: "a", TokenID: "yes-tok", Outcome: domain.OutcomeYes, Shares: 100, EntryPrice: 0.40})

	intent := s.Evaluate(snap, inv)
	require.NotNil(t, intent)

	assert.Equal(t, domain.ActionExit, intent.Action)
	assert.Equal(t, domain.SideSell, intent.Side)
	assert.Equal(t, "yes-tok", intent.TokenID)
	assert.Equal(t, 0.45, intent.Price)
	assert.InDelta(t, 45.0, intent.Size, 1e-9)
	assert.Contains(t, intent.Reason, "profit target")
}

func TestExitStopTightensNearClose(t *testing.T) {
	s := newEarlyEntry(nil)

	inv := &domain.Inventory{}
	inv.Open(domain.Position{ID: "a", TokenID: "yes-tok", Outcome: domain.OutcomeYes, Shares: 100, EntryPrice: 0.40})

	// Down 15%: inside the 30-minute bucket the stop is 15% and fires.
	snap := midSnapshot(0.34, 0.38)
	snap.MinutesUntilClose = 25
	intent := s.Evaluate(snap, inv)
	require.NotNil(t, intent)
	assert.Contains(t, intent.Reason, "stop loss")

	// Far from close the base 20% stop applies, so the same loss holds.
	snap.MinutesUntilClose = 40
	assert.Nil(t, s.Evaluate(snap, inv))
}

func TestExitBufferBeforeExpiry(t *testing.T) {
	s := newEarlyEntry(nil)

	inv := &domain.Inventory{}
	inv.Open(domain.Position{ID: "a", TokenID: "yes-tok", Outcome: domain.OutcomeYes, Shares: 100, EntryPrice: 0.40})

	snap := midSnapshot(0.41, 0.45)
	snap.MinutesUntilClose = 4
	intent := s.Evaluate(snap, inv)
	require.NotNil(t, intent)
	assert.Contains(t, intent.Reason, "expiry buffer")
}

func TestExitComplementUsesDerivedBid(t *testing.T) {
	s := newEarlyEntry(nil)

	inv := &domain.Inventory{}
	inv.Open(domain.Position{ID: "a", TokenID: "no-tok", Outcome: domain.OutcomeNo, Shares: 100, EntryPrice: 0.50})

	// Complement bid is one minus the tracked ask: 1 - 0.44 = 0.56, +12%.
	snap := midSnapshot(0.40, 0.44)
	intent := s.Evaluate(snap, inv)
	require.NotNil(t, intent)
	assert.Equal(t, "no-tok", intent.TokenID)
	assert.InDelta(t, 0.56, intent.Price, 1e-9)
	assert.Contains(t, intent.Reason, "profit target")
}

func TestConfidenceBoosts(t *testing.T) {
	s := newEarlyEntry(nil)

	assert.InDelta(t, 0.9, s.confidence(0.15, 3), 1e-9)
	assert.InDelta(t, 0.8, s.confidence(0.30, 4), 1e-9)
	assert.InDelta(t, 0.7, s.confidence(0.15, 12), 1e-9)
	assert.InDelta(t, 0.5, s.confidence(0.45, 15), 1e-9)
}

func TestDynamicStopTable(t *testing.T) {
	s := newEarlyEntry(nil)

	assert.Equal(t, 5.0, s.dynamicStop(3))
	assert.Equal(t, 10.0, s.dynamicStop(12))
	assert.Equal(t, 15.0, s.dynamicStop(25))
	assert.Equal(t, 20.0, s.dynamicStop(45))
}
