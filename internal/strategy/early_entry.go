package strategy

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmitache88/polymarket-bots/internal/config"
	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// EarlyEntry buys the cheaper outcome of an hourly binary market early in
// the window and manages the position with a profit target, a stop loss
// that tightens toward expiry, and a hard exit shortly before close.
type EarlyEntry struct {
	cfg       config.StrategyConfig
	risk      config.RiskConfig
	stopTable []config.StopThreshold
	logger    *slog.Logger
	now       func() time.Time
}

var _ Strategy = (*EarlyEntry)(nil)

// NewEarlyEntry creates the strategy. The stop-tightening table is parsed
// once up front.
func NewEarlyEntry(cfg config.StrategyConfig, risk config.RiskConfig, logger *slog.Logger) *EarlyEntry {
	return &EarlyEntry{
		cfg:       cfg,
		risk:      risk,
		stopTable: cfg.StopTable(),
		logger:    logger.With(slog.String("strategy", "early_entry")),
		now:       time.Now,
	}
}

// Name returns the strategy identifier.
func (s *EarlyEntry) Name() string { return "early_entry" }

// Evaluate runs the exit path when a position is open and the entry path
// otherwise. Returns nil when neither path fires.
func (s *EarlyEntry) Evaluate(snap domain.MarketSnapshot, inv *domain.Inventory) *domain.TradeIntent {
	if pos := openPosition(inv, snap); pos != nil {
		return s.evaluateExit(snap, *pos)
	}
	return s.evaluateEntry(snap, inv)
}

// openPosition finds the open position on either token of the active
// instrument.
func openPosition(inv *domain.Inventory, snap domain.MarketSnapshot) *domain.Position {
	if p := inv.Position(snap.TokenID); p != nil {
		return p
	}
	return inv.Position(snap.PairTokenID)
}

func (s *EarlyEntry) evaluateEntry(snap domain.MarketSnapshot, inv *domain.Inventory) *domain.TradeIntent {
	if snap.MinutesSinceOpen < s.cfg.MinMinutesSinceOpen {
		s.logger.Debug("entry skipped",
			slog.String("reason", "window too young"),
			slog.Float64("minutes_since_open", snap.MinutesSinceOpen),
			slog.Float64("min_required", s.cfg.MinMinutesSinceOpen),
		)
		return nil
	}
	if snap.MinutesUntilClose < s.cfg.MaxMinutesUntilClose {
		s.logger.Debug("entry skipped",
			slog.String("reason", "too close to expiry"),
			slog.Float64("minutes_until_close", snap.MinutesUntilClose),
		)
		return nil
	}
	if len(inv.Positions) >= s.cfg.MaxConcurrentPositions {
		s.logger.Debug("entry skipped",
			slog.String("reason", "position limit reached"),
			slog.Int("open_positions", len(inv.Positions)),
		)
		return nil
	}

	outcome, price := s.selectSide(snap)
	if price <= 0 {
		s.logger.Debug("entry skipped", slog.String("reason", "no tradable ask"))
		return nil
	}
	if price < s.cfg.MinEntryPrice || price > s.cfg.MaxEntryPrice {
		s.logger.Debug("entry skipped",
			slog.String("reason", "price outside entry band"),
			slog.Float64("price", price),
			slog.Float64("min", s.cfg.MinEntryPrice),
			slog.Float64("max", s.cfg.MaxEntryPrice),
		)
		return nil
	}

	budget := s.risk.MaxTotalExposure - inv.TotalExposure
	size := s.risk.MaxPositionSize
	if budget < size {
		size = budget
	}
	if size <= 0 {
		s.logger.Debug("entry skipped",
			slog.String("reason", "exposure budget exhausted"),
			slog.Float64("exposure", inv.TotalExposure),
		)
		return nil
	}

	tokenID := snap.TokenID
	if outcome != snap.Outcome {
		tokenID = snap.PairTokenID
	}

	intent := &domain.TradeIntent{
		ID:         uuid.NewString(),
		Action:     domain.ActionEnter,
		TokenID:    tokenID,
		Outcome:    outcome,
		Side:       domain.SideBuy,
		Price:      price,
		Size:       size,
		Reason:     fmt.Sprintf("early entry: %s at %.3f, %.1fm into window", outcome, price, snap.MinutesSinceOpen),
		Strategy:   s.Name(),
		Confidence: s.confidence(price, snap.SpreadPct),
		CreatedAt:  s.now(),
	}
	s.logger.Info("entry intent",
		slog.String("outcome", string(outcome)),
		slog.Float64("price", price),
		slog.Float64("size", size),
		slog.Float64("confidence", intent.Confidence),
	)
	return intent
}

// selectSide picks the outcome to buy and its tradable entry price (always
// an ask). The complement outcome's ask is one minus the tracked bid.
func (s *EarlyEntry) selectSide(snap domain.MarketSnapshot) (domain.Outcome, float64) {
	trackedAsk := snap.BestAsk
	pairAsk := 0.0
	if snap.BestBid > 0 {
		pairAsk = 1 - snap.BestBid
	}

	switch strings.ToLower(s.cfg.SideSelection) {
	case "yes":
		return s.fixedSide(domain.OutcomeYes, snap, trackedAsk, pairAsk)
	case "no":
		return s.fixedSide(domain.OutcomeNo, snap, trackedAsk, pairAsk)
	default: // cheapest
		if snap.MidPrice <= 0.5 {
			return snap.Outcome, trackedAsk
		}
		return snap.Outcome.Opposite(), pairAsk
	}
}

func (s *EarlyEntry) fixedSide(want domain.Outcome, snap domain.MarketSnapshot, trackedAsk, pairAsk float64) (domain.Outcome, float64) {
	if snap.Outcome == want {
		return want, trackedAsk
	}
	return want, pairAsk
}

// confidence starts at 0.5 and is boosted for a cheap entry and a tight
// spread, capped at 1.
func (s *EarlyEntry) confidence(price, spreadPct float64) float64 {
	c := 0.5
	switch {
	case price < 0.20:
		c += 0.2
	case price < 0.35:
		c += 0.1
	}
	switch {
	case spreadPct > 0 && spreadPct < 5:
		c += 0.2
	case spreadPct > 0 && spreadPct < 10:
		c += 0.1
	}
	if c > 1 {
		c = 1
	}
	return c
}

func (s *EarlyEntry) evaluateExit(snap domain.MarketSnapshot, pos domain.Position) *domain.TradeIntent {
	exitPrice := s.exitPrice(snap, pos)
	if exitPrice <= 0 {
		return nil
	}
	pnlPct := pos.UnrealizedPnLPct(exitPrice)

	var reason string
	switch {
	case pnlPct >= s.cfg.ProfitTargetPct:
		reason = fmt.Sprintf("profit target: %.1f%% >= %.1f%%", pnlPct, s.cfg.ProfitTargetPct)
	case pnlPct <= -s.dynamicStop(snap.MinutesUntilClose):
		reason = fmt.Sprintf("stop loss: %.1f%% <= -%.1f%% (%.0fm left)", pnlPct, s.dynamicStop(snap.MinutesUntilClose), snap.MinutesUntilClose)
	case snap.MinutesUntilClose <= s.cfg.ExitBufferMinutes:
		reason = fmt.Sprintf("expiry buffer: %.1fm until close", snap.MinutesUntilClose)
	default:
		return nil
	}

	intent := &domain.TradeIntent{
		ID:         uuid.NewString(),
		Action:     domain.ActionExit,
		TokenID:    pos.TokenID,
		Outcome:    pos.Outcome,
		Side:       domain.SideSell,
		Price:      exitPrice,
		Size:       pos.Shares * exitPrice,
		Reason:     reason,
		Strategy:   s.Name(),
		Confidence: 1,
		CreatedAt:  s.now(),
	}
	s.logger.Info("exit intent",
		slog.String("reason", reason),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl_pct", pnlPct),
	)
	return intent
}

// exitPrice is the realistic liquidation price for the position: the best
// bid of its token, never the mid.
func (s *EarlyEntry) exitPrice(snap domain.MarketSnapshot, pos domain.Position) float64 {
	if pos.TokenID == snap.TokenID {
		return snap.BestBid
	}
	// Complement token: its bid is one minus the tracked ask.
	if snap.BestAsk > 0 {
		return 1 - snap.BestAsk
	}
	return 0
}

// dynamicStop returns the stop percentage for the remaining minutes: the
// first table threshold at or above the remaining time wins, otherwise the
// configured base stop.
func (s *EarlyEntry) dynamicStop(minutesUntilClose float64) float64 {
	for _, t := range s.stopTable {
		if minutesUntilClose <= t.MinutesUntilClose {
			return t.StopPct
		}
	}
	return s.cfg.StopLossPct
}
