// Package risk validates trade intents against account-level limits before
// they reach execution.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/config"
	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// Gatekeeper runs the ordered risk checks over every intent. Validation is
// side-effect-free except for the equity peak, which tracks continuously
// regardless of the outcome, and the kill switch, which a drawdown breach
// latches. The trade timestamp and per-minute counter move only when the
// caller reports a successful execution via RecordTrade.
//
// All methods are called from the control loop; the mutex exists for the
// kill-switch control surface, which may be flipped from outside the loop.
type Gatekeeper struct {
	cfg    config.RiskConfig
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	killSwitch  bool
	killReason  string
	lastTradeAt time.Time
	windowStart time.Time
	windowCount int
	peakEquity  float64
}

// NewGatekeeper creates a Gatekeeper with the peak equity seeded from the
// configured initial capital.
func NewGatekeeper(cfg config.RiskConfig, logger *slog.Logger) *Gatekeeper {
	return &Gatekeeper{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "risk")),
		now:        time.Now,
		killSwitch: cfg.KillSwitchOnStart,
		peakEquity: cfg.InitialCapital,
	}
}

// Validate runs the checks in a fixed order and returns either an approved
// OrderRequest or a Rejection carrying the first check that failed. HOLD
// intents produce neither: they are a no-op for the caller to filter.
func (g *Gatekeeper) Validate(intent *domain.TradeIntent, inv *domain.Inventory, snap domain.MarketSnapshot) (*domain.OrderRequest, *domain.Rejection) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	equity := g.equity(inv, snap)
	if equity > g.peakEquity {
		g.peakEquity = equity
	}

	var passed []string
	reject := func(reason domain.RejectionReason, detail string) (*domain.OrderRequest, *domain.Rejection) {
		g.logger.Info("intent rejected",
			slog.String("reason", string(reason)),
			slog.String("detail", detail),
			slog.String("token_id", intent.TokenID),
			slog.Float64("price", intent.Price),
			slog.Float64("size", intent.Size),
		)
		return nil, &domain.Rejection{Intent: *intent, Reason: reason, Detail: detail, At: now}
	}

	// Kill switch outranks everything, including the HOLD filter; a HOLD
	// still produces no rejection record because there is nothing to reject.
	if g.killSwitch {
		if intent == nil || intent.Action == domain.ActionHold {
			return nil, nil
		}
		return reject(domain.RejectKillSwitch, g.killReason)
	}
	if intent == nil || intent.Action == domain.ActionHold {
		return nil, nil
	}
	passed = append(passed, "kill_switch")

	if !g.lastTradeAt.IsZero() {
		if since := now.Sub(g.lastTradeAt); since < g.cfg.TradeCooldown.Duration {
			return reject(domain.RejectCooldown, fmt.Sprintf("%s since last trade, cooldown %s", since.Round(time.Millisecond), g.cfg.TradeCooldown.Duration))
		}
	}
	passed = append(passed, "cooldown")

	// The rolling window resets when a full minute has elapsed since it
	// started, not on clock boundaries.
	if now.Sub(g.windowStart) >= time.Minute {
		g.windowStart = now
		g.windowCount = 0
	}
	if g.windowCount >= g.cfg.MaxTradesPerMin {
		return reject(domain.RejectRateLimit, fmt.Sprintf("%d trades in current window, limit %d/min", g.windowCount, g.cfg.MaxTradesPerMin))
	}
	passed = append(passed, "rate_limit")

	// Exits reduce risk and skip the remaining entry-side checks.
	if intent.Action == domain.ActionEnter {
		if intent.Size > g.cfg.MaxPositionSize {
			return reject(domain.RejectMaxExposure, fmt.Sprintf("size %.2f exceeds per-position limit %.2f", intent.Size, g.cfg.MaxPositionSize))
		}
		if inv.TotalExposure+intent.Size > g.cfg.MaxTotalExposure {
			return reject(domain.RejectMaxExposure, fmt.Sprintf("exposure %.2f + %.2f exceeds limit %.2f", inv.TotalExposure, intent.Size, g.cfg.MaxTotalExposure))
		}
		passed = append(passed, "exposure")

		if g.peakEquity > 0 {
			drawdownPct := (g.peakEquity - equity) / g.peakEquity * 100
			if drawdownPct >= g.cfg.MaxDrawdownPct {
				detail := fmt.Sprintf("drawdown %.1f%% of peak %.2f exceeds %.1f%%", drawdownPct, g.peakEquity, g.cfg.MaxDrawdownPct)
				// A drawdown breach latches the kill switch so the engine
				// halts instead of retrying every tick.
				g.tripLocked(detail)
				return reject(domain.RejectMaxDrawdown, detail)
			}
		}
		passed = append(passed, "drawdown")

		if snap.MinutesUntilClose < g.cfg.EntryCutoffMins {
			return reject(domain.RejectMarketTiming, fmt.Sprintf("%.1fm until close, entry cutoff %.1fm", snap.MinutesUntilClose, g.cfg.EntryCutoffMins))
		}
		passed = append(passed, "market_timing")
	}

	if ref := g.referencePrice(intent, snap); ref > 0 && intent.Price > 0 && g.cfg.MaxSlippagePct > 0 {
		// Only adverse movement counts: the ask running above a buy, the bid
		// falling below a sell. Price improvement always passes.
		slippagePct := (ref - intent.Price) / intent.Price * 100
		if intent.Side == domain.SideSell {
			slippagePct = -slippagePct
		}
		if slippagePct > g.cfg.MaxSlippagePct {
			return reject(domain.RejectPriceSlippage, fmt.Sprintf("tradable %.3f moved %.1f%% against price %.3f, limit %.1f%%", ref, slippagePct, intent.Price, g.cfg.MaxSlippagePct))
		}
	}
	passed = append(passed, "slippage")

	return &domain.OrderRequest{
		Intent:       *intent,
		ApprovedSize: intent.Size,
		ChecksPassed: passed,
		ApprovedAt:   now,
	}, nil
}

// referencePrice returns the current tradable price for the intent's token
// and side, or 0 when the snapshot does not cover it.
func (g *Gatekeeper) referencePrice(intent *domain.TradeIntent, snap domain.MarketSnapshot) float64 {
	tracked := intent.TokenID == snap.TokenID
	switch {
	case tracked && intent.Side == domain.SideBuy:
		return snap.BestAsk
	case tracked:
		return snap.BestBid
	case intent.TokenID == snap.PairTokenID && intent.Side == domain.SideBuy:
		if snap.BestBid > 0 {
			return 1 - snap.BestBid
		}
	case intent.TokenID == snap.PairTokenID:
		if snap.BestAsk > 0 {
			return 1 - snap.BestAsk
		}
	}
	return 0
}

// equity is initial capital plus realized and mark-to-market P&L, priced at
// the snapshot's tradable exits. Caller holds g.mu.
func (g *Gatekeeper) equity(inv *domain.Inventory, snap domain.MarketSnapshot) float64 {
	prices := map[string]float64{}
	if snap.BestBid > 0 {
		prices[snap.TokenID] = snap.BestBid
	}
	if snap.BestAsk > 0 {
		prices[snap.PairTokenID] = 1 - snap.BestAsk
	}
	return g.cfg.InitialCapital + inv.TotalPnL(prices)
}

// RecordTrade advances the cooldown timestamp and the per-minute counter.
// Call only after a successful execution.
func (g *Gatekeeper) RecordTrade() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if now.Sub(g.windowStart) >= time.Minute {
		g.windowStart = now
		g.windowCount = 0
	}
	g.windowCount++
	g.lastTradeAt = now
}

// ActivateKillSwitch blocks all further trading until deactivated.
func (g *Gatekeeper) ActivateKillSwitch(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tripLocked(reason)
}

// tripLocked flips the kill switch. Caller holds g.mu.
func (g *Gatekeeper) tripLocked(reason string) {
	if !g.killSwitch {
		g.logger.Warn("kill switch activated", slog.String("reason", reason))
	}
	g.killSwitch = true
	g.killReason = reason
}

// DeactivateKillSwitch re-enables trading.
func (g *Gatekeeper) DeactivateKillSwitch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.killSwitch {
		g.logger.Warn("kill switch deactivated")
	}
	g.killSwitch = false
	g.killReason = ""
}

// KillSwitchActive reports whether the kill switch is tripped.
func (g *Gatekeeper) KillSwitchActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killSwitch
}

// PeakEquity returns the highest equity observed so far.
func (g *Gatekeeper) PeakEquity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peakEquity
}
