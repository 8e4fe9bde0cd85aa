// Package aggregator fuses orderbook and oracle updates into point-in-time
// market snapshots for strategy evaluation.
package aggregator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// Session boundaries within an hourly trading window.
const (
	earlySessionMins = 15
	lateSessionMins  = 15
)

// Aggregator keeps the latest observation per source and builds immutable
// snapshots on demand. Feeds write concurrently; the control loop reads once
// per tick. Only the most recent book per token is retained, so a burst of
// updates between ticks costs nothing.
type Aggregator struct {
	logger *slog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	instrument *domain.Instrument
	outcome    domain.Outcome
	books      map[string]domain.OrderBook
	lastBookAt time.Time

	oracleMu     sync.RWMutex
	oracleAsset  string
	oraclePrice  float64
	lastOracleAt time.Time
}

// New creates an Aggregator tracking the given outcome's token of whatever
// instrument is active.
func New(outcome domain.Outcome, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		logger:  logger.With(slog.String("component", "aggregator")),
		now:     time.Now,
		outcome: outcome,
		books:   map[string]domain.OrderBook{},
	}
}

// SetInstrument swaps the active instrument. Book state is cleared because
// the new instrument's tokens have no history yet; oracle state is kept, the
// underlying asset does not change at rollover.
func (a *Aggregator) SetInstrument(inst domain.Instrument) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instrument = &inst
	a.books = map[string]domain.OrderBook{}
	a.lastBookAt = time.Time{}
	a.logger.Info("instrument set",
		slog.String("slug", inst.Slug),
		slog.Time("expiry", inst.ExpiryTime),
	)
}

// PinStrike fixes the active instrument's strike price when discovery did
// not provide one. The first oracle reading after the window opens becomes
// the strike. Returns false when no instrument is set or a strike already
// exists.
func (a *Aggregator) PinStrike(price float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.instrument == nil || a.instrument.StrikePrice > 0 || price <= 0 {
		return false
	}
	a.instrument.StrikePrice = price
	a.logger.Info("strike pinned",
		slog.String("slug", a.instrument.Slug),
		slog.Float64("strike", price),
	)
	return true
}

// Instrument returns the active instrument, or false when none is set.
func (a *Aggregator) Instrument() (domain.Instrument, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.instrument == nil {
		return domain.Instrument{}, false
	}
	return *a.instrument, true
}

// OnMarketUpdate stores the latest book for the update's token. Updates for
// tokens outside the active instrument are dropped; they belong to the
// previous window and arrive briefly after a rollover.
func (a *Aggregator) OnMarketUpdate(upd domain.MarketUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.instrument == nil || !a.tracks(upd.TokenID) {
		return
	}
	a.books[upd.TokenID] = upd.Book
	a.lastBookAt = upd.Timestamp
}

// OnOracleUpdate stores the latest reference price.
func (a *Aggregator) OnOracleUpdate(upd domain.OracleUpdate) {
	a.oracleMu.Lock()
	defer a.oracleMu.Unlock()
	a.oracleAsset = upd.Asset
	a.oraclePrice = upd.Price
	a.lastOracleAt = upd.Timestamp
}

// tracks reports whether tokenID belongs to the active instrument. Caller
// holds a.mu.
func (a *Aggregator) tracks(tokenID string) bool {
	return tokenID == a.instrument.TokenIDs[0] || tokenID == a.instrument.TokenIDs[1]
}

// BuildSnapshot fuses the latest book and oracle state into a fresh snapshot.
// It fails until both sources have delivered at least once, and when either
// source has gone stale past maxAge (maxAge <= 0 disables the check).
func (a *Aggregator) BuildSnapshot(maxAge time.Duration) (domain.MarketSnapshot, error) {
	now := a.now()

	a.mu.RLock()
	inst := a.instrument
	var book domain.OrderBook
	var haveBook bool
	if inst != nil {
		book, haveBook = a.books[inst.TradedTokenID(a.outcome)]
	}
	lastBookAt := a.lastBookAt
	a.mu.RUnlock()

	a.oracleMu.RLock()
	oracleAsset := a.oracleAsset
	oraclePrice := a.oraclePrice
	lastOracleAt := a.lastOracleAt
	a.oracleMu.RUnlock()

	if inst == nil {
		return domain.MarketSnapshot{}, domain.ErrNoInstrument
	}
	if !haveBook || oraclePrice <= 0 {
		return domain.MarketSnapshot{}, domain.ErrNoSnapshot
	}
	if maxAge > 0 {
		if age := now.Sub(lastBookAt); age > maxAge {
			return domain.MarketSnapshot{}, fmt.Errorf("aggregator: book age %s: %w", age.Round(time.Millisecond), domain.ErrStaleData)
		}
		if age := now.Sub(lastOracleAt); age > maxAge {
			return domain.MarketSnapshot{}, fmt.Errorf("aggregator: oracle age %s: %w", age.Round(time.Millisecond), domain.ErrStaleData)
		}
	}

	sinceOpen := inst.MinutesSinceOpen(now)
	untilClose := inst.MinutesUntilExpiry(now)

	snap := domain.MarketSnapshot{
		TokenID:           inst.TradedTokenID(a.outcome),
		Outcome:           a.outcome,
		PairTokenID:       inst.TradedTokenID(a.outcome.Opposite()),
		BestBid:           book.BestBid(),
		BestAsk:           book.BestAsk(),
		MidPrice:          book.MidPrice(),
		SpreadPct:         book.SpreadPct(),
		BidLiquidity:      book.BidLiquidity(),
		AskLiquidity:      book.AskLiquidity(),
		OracleAsset:       oracleAsset,
		OraclePrice:       oraclePrice,
		StrikePrice:       inst.StrikePrice,
		MinutesSinceOpen:  sinceOpen,
		MinutesUntilClose: untilClose,
		Session:           classifySession(sinceOpen, untilClose),
		Timestamp:         now,
	}

	if total := snap.BidLiquidity + snap.AskLiquidity; total > 0 {
		snap.OrderFlowImbalance = (snap.BidLiquidity - snap.AskLiquidity) / total
	}
	if inst.StrikePrice > 0 {
		snap.DistanceToStrikePct = (oraclePrice - inst.StrikePrice) / inst.StrikePrice * 100
	}

	return snap, nil
}

// classifySession buckets the snapshot by window phase. LATE wins when the
// window is shorter than the two boundaries combined.
func classifySession(sinceOpen, untilClose float64) domain.MarketSession {
	switch {
	case untilClose <= lateSessionMins:
		return domain.SessionLate
	case sinceOpen <= earlySessionMins:
		return domain.SessionEarly
	default:
		return domain.SessionMid
	}
}
