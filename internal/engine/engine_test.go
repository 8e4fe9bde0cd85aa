package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmitache88/polymarket-bots/internal/aggregator"
	"github.com/mmitache88/polymarket-bots/internal/config"
	"github.com/mmitache88/polymarket-bots/internal/domain"
	"github.com/mmitache88/polymarket-bots/internal/execution"
	"github.com/mmitache88/polymarket-bots/internal/risk"
	"github.com/mmitache88/polymarket-bots/internal/rollover"
	"github.com/mmitache88/polymarket-bots/internal/strategy"
)

// fixedResolver hands out a preset sequence of instruments.
type fixedResolver struct {
	instruments []domain.Instrument
	idx         int
}

func (r *fixedResolver) Resolve(context.Context, time.Time) (domain.Instrument, error) {
	if r.idx >= len(r.instruments) {
		return r.instruments[len(r.instruments)-1], nil
	}
	inst := r.instruments[r.idx]
	r.idx++
	return inst, nil
}

// stubFeed records subscription swaps.
type stubFeed struct {
	assets [][]string
}

func (f *stubFeed) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *stubFeed) SetAssets(_ context.Context, tokenIDs []string) error {
	f.assets = append(f.assets, append([]string(nil), tokenIDs...))
	return nil
}

func (f *stubFeed) Close() error { return nil }

// fakeBus captures published events and stream appends in memory.
type fakeBus struct {
	published map[string][][]byte
	appended  map[string][][]byte
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if b.appended == nil {
		b.appended = map[string][][]byte{}
	}
	b.appended[stream] = append(b.appended[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func windowInstrument(slug string, open time.Time) domain.Instrument {
	return domain.Instrument{
		Slug:       slug,
		TokenIDs:   [2]string{slug + "-yes", slug + "-no"},
		Outcomes:   [2]string{"Yes", "No"},
		OpenTime:   open,
		ExpiryTime: open.Add(time.Hour),
	}
}

func feedBook(agg *aggregator.Aggregator, tokenID string, bid, ask float64, ts time.Time) {
	agg.OnMarketUpdate(domain.MarketUpdate{
		TokenID: tokenID,
		Book: domain.NewOrderBook(tokenID,
			[]domain.BookLevel{{Price: bid, Size: 100}},
			[]domain.BookLevel{{Price: ask, Size: 100}},
			ts,
		),
		Timestamp: ts,
	})
}

type engineFixture struct {
	eng  *Engine
	agg  *aggregator.Aggregator
	feed *stubFeed
	inst domain.Instrument
	now  time.Time
}

func newEngineFixture(t *testing.T, next ...domain.Instrument) *engineFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Defaults()
	cfg.Execution.DryRunLatency.Duration = time.Millisecond
	cfg.Risk.TradeCooldown.Duration = 0

	now := time.Now()
	inst := windowInstrument("window-a", now.Add(-10*time.Minute))

	agg := aggregator.New(domain.OutcomeYes, logger)
	strat := strategy.NewEarlyEntry(cfg.Strategy, cfg.Risk, logger)
	gate := risk.NewGatekeeper(cfg.Risk, logger)
	execSvc := execution.NewService(cfg.Execution, nil, logger)

	resolver := &fixedResolver{instruments: append([]domain.Instrument{inst}, next...)}
	roll := rollover.NewController(cfg.Rollover, resolver, logger)
	feed := &stubFeed{}

	eng := New(cfg.Engine, cfg.Rollover, Deps{
		Aggregator: agg,
		Strategy:   strat,
		Gatekeeper: gate,
		Execution:  execSvc,
		Rollover:   roll,
		Resolver:   resolver,
		MarketFeed: feed,
	}, logger)

	require.NoError(t, eng.bootstrap(context.Background()))
	return &engineFixture{eng: eng, agg: agg, feed: feed, inst: inst, now: now}
}

func TestBootstrapSubscribesInstrument(t *testing.T) {
	fx := newEngineFixture(t)

	got, ok := fx.agg.Instrument()
	require.True(t, ok)
	assert.Equal(t, "window-a", got.Slug)

	require.Len(t, fx.feed.assets, 1)
	assert.Equal(t, []string{"window-a-yes", "window-a-no"}, fx.feed.assets[0])
}

func TestTickEntersAndExits(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	feedBook(fx.agg, "window-a-yes", 0.40, 0.44, time.Now())
	fx.agg.OnOracleUpdate(domain.OracleUpdate{Asset: "BTC", Price: 65000, Timestamp: time.Now()})

	fx.eng.tick(ctx)

	inv := fx.eng.Inventory()
	require.Len(t, inv.Positions, 1)
	assert.Equal(t, "window-a-yes", inv.Positions[0].TokenID)
	assert.InDelta(t, 0.44, inv.Positions[0].EntryPrice, 1e-9)
	assert.InDelta(t, 50.0/0.44, inv.Positions[0].Shares, 1e-6)
	assert.InDelta(t, 50.0, inv.TotalExposure, 1e-6)

	// Price runs up past the profit target; the next tick exits.
	feedBook(fx.agg, "window-a-yes", 0.50, 0.54, time.Now())
	fx.agg.OnOracleUpdate(domain.OracleUpdate{Asset: "BTC", Price: 65500, Timestamp: time.Now()})

	fx.eng.tick(ctx)

	assert.Empty(t, inv.Positions)
	assert.InDelta(t, (0.50-0.44)*(50.0/0.44), inv.RealizedPnL, 1e-6)
}

func TestTickPinsStrikeFromOracle(t *testing.T) {
	fx := newEngineFixture(t)

	feedBook(fx.agg, "window-a-yes", 0.40, 0.44, time.Now())
	fx.agg.OnOracleUpdate(domain.OracleUpdate{Asset: "BTC", Price: 64321, Timestamp: time.Now()})

	fx.eng.tick(context.Background())

	got, ok := fx.agg.Instrument()
	require.True(t, ok)
	assert.Equal(t, 64321.0, got.StrikePrice)
}

func TestTickWithoutDataIsNoOp(t *testing.T) {
	fx := newEngineFixture(t)
	assert.NoError(t, fx.eng.tick(context.Background()))
	assert.Empty(t, fx.eng.Inventory().Positions)
}

func TestTickKillSwitchIsTerminal(t *testing.T) {
	fx := newEngineFixture(t)
	fx.eng.deps.Gatekeeper.ActivateKillSwitch("manual stop")

	err := fx.eng.tick(context.Background())
	assert.ErrorIs(t, err, domain.ErrKillSwitchActive)
}

func TestRunStopsWhenKillSwitchTrips(t *testing.T) {
	fx := newEngineFixture(t)
	fx.eng.cfg.TickInterval.Duration = 5 * time.Millisecond
	fx.eng.deps.Gatekeeper.ActivateKillSwitch("drawdown breach")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := fx.eng.Run(ctx)
	require.ErrorIs(t, err, domain.ErrKillSwitchActive)
	assert.NoError(t, ctx.Err(), "engine must halt on its own, not via the deadline")
}

func TestTickPublishesSnapshotOnBus(t *testing.T) {
	fx := newEngineFixture(t)
	bus := &fakeBus{}
	fx.eng.deps.Bus = bus

	feedBook(fx.agg, "window-a-yes", 0.40, 0.44, time.Now())
	fx.agg.OnOracleUpdate(domain.OracleUpdate{Asset: "BTC", Price: 65000, Timestamp: time.Now()})

	require.NoError(t, fx.eng.tick(context.Background()))

	require.NotEmpty(t, bus.published[ChannelSnapshots])
	var snap domain.MarketSnapshot
	require.NoError(t, json.Unmarshal(bus.published[ChannelSnapshots][0], &snap))
	assert.Equal(t, "window-a-yes", snap.TokenID)
	assert.InDelta(t, 0.42, snap.MidPrice, 1e-9)
}

func TestCheckRolloverSwapsWindowAndDropsPositions(t *testing.T) {
	now := time.Now()
	nextInst := windowInstrument("window-b", now.Truncate(time.Hour).Add(time.Hour))
	fx := newEngineFixture(t, nextInst)

	// Force the active window to the edge of expiry.
	dying := fx.inst
	dying.ExpiryTime = now.Add(time.Minute)
	fx.agg.SetInstrument(dying)

	inv := fx.eng.Inventory()
	inv.Open(domain.Position{ID: "p1", TokenID: "window-a-yes", Shares: 100, EntryPrice: 0.4})

	fx.eng.checkRollover(context.Background())

	got, ok := fx.agg.Instrument()
	require.True(t, ok)
	assert.Equal(t, "window-b", got.Slug)
	assert.Empty(t, inv.Positions)
	assert.Zero(t, inv.TotalExposure)

	// Bootstrap subscription plus the rollover resubscription.
	require.Len(t, fx.feed.assets, 2)
	assert.Equal(t, []string{"window-b-yes", "window-b-no"}, fx.feed.assets[1])
}

func TestCheckRolloverFarFromExpiryKeepsWindow(t *testing.T) {
	fx := newEngineFixture(t)

	fx.eng.checkRollover(context.Background())

	got, _ := fx.agg.Instrument()
	assert.Equal(t, "window-a", got.Slug)
	assert.Len(t, fx.feed.assets, 1)
}
