// Package engine runs the control loop: every tick it fuses the latest
// market state into a snapshot, asks the strategy for an intent, passes it
// through the risk gatekeeper, and hands approved orders to execution. It is
// the single writer of the inventory; fills mutate it before the next tick.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmitache88/polymarket-bots/internal/aggregator"
	"github.com/mmitache88/polymarket-bots/internal/config"
	"github.com/mmitache88/polymarket-bots/internal/domain"
	"github.com/mmitache88/polymarket-bots/internal/execution"
	"github.com/mmitache88/polymarket-bots/internal/feed"
	"github.com/mmitache88/polymarket-bots/internal/notify"
	"github.com/mmitache88/polymarket-bots/internal/risk"
	"github.com/mmitache88/polymarket-bots/internal/rollover"
	"github.com/mmitache88/polymarket-bots/internal/strategy"
)

// Event bus channels and streams.
const (
	ChannelFills      = "events.fills"
	ChannelRejections = "events.rejections"
	ChannelLifecycle  = "events.lifecycle"
	ChannelSnapshots  = "events.snapshots"
	StreamDecisions   = "decisions"
)

// Deps carries everything the engine wires together. Stores, cache, bus, and
// notifier are optional; a nil value disables that concern.
type Deps struct {
	Aggregator *aggregator.Aggregator
	Strategy   strategy.Strategy
	Gatekeeper *risk.Gatekeeper
	Execution  *execution.Service
	Rollover   *rollover.Controller
	Resolver   rollover.InstrumentResolver
	MarketFeed feed.MarketDataPort

	Positions domain.PositionStore
	Trades    domain.TradeStore
	Snapshots domain.SnapshotStore
	Prices    domain.PriceCache
	Bus       domain.EventBus
	Notifier  *notify.Notifier
}

// Engine is the control loop. All state transitions happen synchronously
// inside tick, so the inventory needs no locking.
type Engine struct {
	cfg  config.EngineConfig
	roll config.RolloverConfig
	deps Deps

	inv    *domain.Inventory
	logger *slog.Logger
	now    func() time.Time

	lastSnapshotAt time.Time
	lastRollCheck  time.Time
}

// New creates an Engine.
func New(cfg config.EngineConfig, roll config.RolloverConfig, deps Deps, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		roll:   roll,
		deps:   deps,
		inv:    &domain.Inventory{},
		logger: logger.With(slog.String("component", "engine")),
		now:    time.Now,
	}
}

// Inventory exposes the open positions for status reporting. Callers must
// treat the result as read-only.
func (e *Engine) Inventory() *domain.Inventory {
	return e.inv
}

// Run bootstraps the engine and ticks until ctx is cancelled or the kill
// switch trips. Either way it cancels any in-flight orders before returning;
// a kill-switch halt surfaces as domain.ErrKillSwitchActive.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(e.cfg.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.shutdown()
				return fmt.Errorf("engine: %w", err)
			}
		}
	}
}

// bootstrap restores persisted positions and resolves the instrument for the
// current hour.
func (e *Engine) bootstrap(ctx context.Context) error {
	if e.deps.Positions != nil {
		open, err := e.deps.Positions.ListOpen(ctx)
		if err != nil {
			return fmt.Errorf("engine: restore positions: %w", err)
		}
		for _, p := range open {
			e.inv.Open(p)
		}
		if len(open) > 0 {
			e.logger.Info("positions restored",
				slog.Int("count", len(open)),
				slog.Float64("exposure", e.inv.TotalExposure),
			)
		}
	}

	inst, err := e.deps.Resolver.Resolve(ctx, e.now())
	if err != nil {
		return fmt.Errorf("engine: resolve initial instrument: %w", err)
	}
	e.deps.Aggregator.SetInstrument(inst)
	if err := e.deps.MarketFeed.SetAssets(ctx, inst.TokenIDs[:]); err != nil {
		return fmt.Errorf("engine: subscribe instrument tokens: %w", err)
	}

	e.logger.Info("engine started",
		slog.String("slug", inst.Slug),
		slog.String("strategy", e.deps.Strategy.Name()),
		slog.Time("expiry", inst.ExpiryTime),
	)
	return nil
}

// shutdown cancels in-flight orders on a fresh context so a cancelled ctx
// cannot strand them on the exchange.
func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if n := e.deps.Execution.CancelAll(ctx); n > 0 {
		e.logger.Info("pending orders cancelled on shutdown", slog.Int("count", n))
	}
	e.logger.Info("engine stopped",
		slog.Float64("realized_pnl", e.inv.RealizedPnL),
		slog.Int("open_positions", len(e.inv.Positions)),
	)
}

// tick runs one decision cycle. A non-nil error is terminal: the run loop
// shuts the engine down instead of ticking again.
func (e *Engine) tick(ctx context.Context) error {
	if e.deps.Gatekeeper.KillSwitchActive() {
		e.logger.Error("kill switch active, halting")
		e.publish(ctx, ChannelLifecycle, map[string]any{
			"event": "kill_switch",
			"at":    e.now().Format(time.RFC3339),
		})
		return domain.ErrKillSwitchActive
	}

	if e.now().Sub(e.lastRollCheck) >= e.roll.CheckInterval.Duration {
		e.lastRollCheck = e.now()
		e.checkRollover(ctx)
	}

	snap, err := e.deps.Aggregator.BuildSnapshot(e.cfg.StaleThreshold.Duration)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoInstrument), errors.Is(err, domain.ErrNoSnapshot):
			e.logger.Debug("waiting for data")
		case errors.Is(err, domain.ErrStaleData):
			e.logger.Warn("market data stale", slog.String("error", err.Error()))
		default:
			e.logger.Error("snapshot build failed", slog.String("error", err.Error()))
		}
		return nil
	}

	// Markets discovered without a strike use the first oracle reading of
	// the window as reference.
	if snap.StrikePrice == 0 && e.deps.Aggregator.PinStrike(snap.OraclePrice) {
		snap.StrikePrice = snap.OraclePrice
	}

	e.persistSnapshot(ctx, snap)

	intent := e.deps.Strategy.Evaluate(snap, e.inv)

	req, rej := e.deps.Gatekeeper.Validate(intent, e.inv, snap)
	if rej != nil {
		e.logger.Warn("intent rejected",
			slog.String("action", string(rej.Intent.Action)),
			slog.String("reason", string(rej.Reason)),
			slog.String("detail", rej.Detail),
		)
		e.publish(ctx, ChannelRejections, rej)
		return nil
	}
	if req == nil {
		return nil
	}

	rep := e.deps.Execution.Execute(ctx, *req)
	e.applyReport(ctx, rep)
	return nil
}

// applyReport books a terminal execution report into the inventory and the
// stores. Risk accounting only advances on an actual fill.
func (e *Engine) applyReport(ctx context.Context, rep domain.ExecutionReport) {
	intent := rep.Request.Intent

	if rep.Status != domain.OrderFilled {
		e.logger.Warn("order did not fill",
			slog.String("status", string(rep.Status)),
			slog.String("action", string(intent.Action)),
			slog.String("error", rep.Error),
		)
		if e.deps.Notifier != nil {
			e.deps.Notifier.Notify(ctx, notify.EventOrderFailed, "Order "+string(rep.Status), rep.Error)
		}
		return
	}

	e.deps.Gatekeeper.RecordTrade()

	shares := 0.0
	if rep.FilledPrice > 0 {
		shares = rep.FilledSize / rep.FilledPrice
	}

	trade := domain.Trade{
		ID:         uuid.NewString(),
		OrderID:    rep.OrderID,
		TokenID:    intent.TokenID,
		Outcome:    intent.Outcome,
		Side:       intent.Side,
		Price:      rep.FilledPrice,
		Shares:     shares,
		SizeUSD:    rep.FilledSize,
		Strategy:   intent.Strategy,
		ExecutedAt: rep.FilledAt,
	}

	switch intent.Action {
	case domain.ActionEnter:
		pos := domain.Position{
			ID:         intent.ID,
			TokenID:    intent.TokenID,
			Outcome:    intent.Outcome,
			Shares:     shares,
			EntryPrice: rep.FilledPrice,
			EntryTime:  rep.FilledAt,
		}
		e.inv.Open(pos)
		if e.deps.Positions != nil {
			if err := e.deps.Positions.Create(ctx, pos); err != nil {
				e.logger.Error("persist position failed", slog.String("error", err.Error()))
			}
		}
		e.logger.Info("position opened",
			slog.String("outcome", string(pos.Outcome)),
			slog.Float64("shares", pos.Shares),
			slog.Float64("price", pos.EntryPrice),
			slog.Float64("exposure", e.inv.TotalExposure),
		)
		if e.deps.Notifier != nil {
			e.deps.Notifier.OrderFilled(ctx, rep)
		}

	case domain.ActionExit:
		pos, pnl, ok := e.inv.Close(intent.TokenID, rep.FilledPrice)
		if !ok {
			e.logger.Error("exit filled for unknown position", slog.String("token_id", intent.TokenID))
			break
		}
		trade.RealizedPL = pnl
		if e.deps.Positions != nil {
			if err := e.deps.Positions.Close(ctx, pos.ID, rep.FilledPrice, pnl, rep.FilledAt); err != nil {
				e.logger.Error("persist close failed", slog.String("error", err.Error()))
			}
		}
		e.logger.Info("position closed",
			slog.String("reason", intent.Reason),
			slog.Float64("exit_price", rep.FilledPrice),
			slog.Float64("pnl", pnl),
			slog.Float64("realized_total", e.inv.RealizedPnL),
		)
		if e.deps.Notifier != nil {
			e.deps.Notifier.PositionClosed(ctx, pos, rep.FilledPrice, pnl)
		}
	}

	if e.deps.Trades != nil {
		if err := e.deps.Trades.Insert(ctx, trade); err != nil {
			e.logger.Error("persist trade failed", slog.String("error", err.Error()))
		}
	}
	e.publish(ctx, ChannelFills, trade)
	e.appendDecision(ctx, rep)
}

// checkRollover swaps to the next hourly instrument near expiry. Open
// positions in the dying window are dropped unless configured to carry; a
// binary that expired worthless settles on-chain, not through the book.
func (e *Engine) checkRollover(ctx context.Context) {
	current, ok := e.deps.Aggregator.Instrument()
	if !ok {
		return
	}

	next, err := e.deps.Rollover.Check(ctx, current)
	if err != nil {
		e.logger.Warn("rollover check failed", slog.String("error", err.Error()))
		return
	}
	if next == nil {
		return
	}

	if n := e.deps.Execution.CancelAll(ctx); n > 0 {
		e.logger.Info("pending orders cancelled at rollover", slog.Int("count", n))
	}

	if !e.roll.CarryPositions {
		e.dropWindowPositions(ctx, current)
	}

	e.deps.Aggregator.SetInstrument(*next)
	if err := e.deps.MarketFeed.SetAssets(ctx, next.TokenIDs[:]); err != nil {
		e.logger.Error("resubscribe after rollover failed", slog.String("error", err.Error()))
	}

	e.logger.Info("rolled to next window",
		slog.String("from", current.Slug),
		slog.String("to", next.Slug),
	)
	if e.deps.Notifier != nil {
		e.deps.Notifier.Rollover(ctx, *next)
	}
	e.publish(ctx, ChannelLifecycle, map[string]any{
		"event": "rollover",
		"from":  current.Slug,
		"to":    next.Slug,
		"at":    e.now().Format(time.RFC3339),
	})
}

// dropWindowPositions abandons open positions belonging to the expiring
// instrument's tokens.
func (e *Engine) dropWindowPositions(ctx context.Context, inst domain.Instrument) {
	for _, tokenID := range inst.TokenIDs {
		var ids []string
		for _, p := range e.inv.Positions {
			if p.TokenID == tokenID {
				ids = append(ids, p.ID)
			}
		}
		if dropped := e.inv.Clear(tokenID); dropped > 0 {
			e.logger.Warn("positions dropped at rollover",
				slog.String("token_id", tokenID),
				slog.Int("count", dropped),
			)
		}
		if e.deps.Positions == nil {
			continue
		}
		for _, id := range ids {
			if err := e.deps.Positions.Delete(ctx, id); err != nil {
				e.logger.Error("delete rolled position failed",
					slog.String("position_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// persistSnapshot refreshes the price cache every tick and, on the configured
// interval, writes the snapshot to the store and publishes it on the bus.
// All of it is best-effort.
func (e *Engine) persistSnapshot(ctx context.Context, snap domain.MarketSnapshot) {
	if e.deps.Prices != nil {
		if err := e.deps.Prices.SetPrice(ctx, snap.TokenID, snap.MidPrice, snap.Timestamp); err != nil {
			e.logger.Warn("price cache update failed", slog.String("error", err.Error()))
		}
		if err := e.deps.Prices.SetPrice(ctx, snap.OracleAsset, snap.OraclePrice, snap.Timestamp); err != nil {
			e.logger.Warn("price cache update failed", slog.String("error", err.Error()))
		}
	}

	if snap.Timestamp.Sub(e.lastSnapshotAt) < e.cfg.SnapshotInterval.Duration {
		return
	}
	if e.deps.Snapshots != nil {
		if err := e.deps.Snapshots.Insert(ctx, snap); err != nil {
			e.logger.Warn("persist snapshot failed", slog.String("error", err.Error()))
			return
		}
	}
	e.publish(ctx, ChannelSnapshots, snap)
	e.lastSnapshotAt = snap.Timestamp
}

// publish sends v as JSON on the event bus. No-op without a bus.
func (e *Engine) publish(ctx context.Context, channel string, v any) {
	if e.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := e.deps.Bus.Publish(ctx, channel, payload); err != nil {
		e.logger.Warn("publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// appendDecision records the terminal report on the durable decision stream.
func (e *Engine) appendDecision(ctx context.Context, rep domain.ExecutionReport) {
	if e.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		e.logger.Error("marshal decision failed", slog.String("error", err.Error()))
		return
	}
	if err := e.deps.Bus.StreamAppend(ctx, StreamDecisions, payload); err != nil {
		e.logger.Warn("append decision failed", slog.String("error", err.Error()))
	}
}
