package domain

import "time"

// MarketSession buckets a snapshot by how far into the trading window it was
// taken.
type MarketSession string

const (
	SessionEarly MarketSession = "EARLY"
	SessionMid   MarketSession = "MID"
	SessionLate  MarketSession = "LATE"
)

// MarketSnapshot is the fused, point-in-time view of book, oracle, and timing
// state that strategies evaluate. It is built fresh every tick and never
// mutated. Price fields use 0 to mean "absent": tradable prices live in
// (0, 1].
type MarketSnapshot struct {
	TokenID string
	Outcome Outcome

	// PairTokenID is the complement outcome's token. Its tradable prices are
	// derived as 1 minus the opposite side of the tracked book.
	PairTokenID string

	// Book-derived fields.
	BestBid      float64
	BestAsk      float64
	MidPrice     float64
	SpreadPct    float64
	BidLiquidity float64
	AskLiquidity float64

	// Oracle fields.
	OracleAsset string
	OraclePrice float64
	StrikePrice float64

	// Derived metrics, recomputed on every build.
	OrderFlowImbalance  float64 // (bid-ask)/(bid+ask) liquidity
	DistanceToStrikePct float64 // signed % of oracle price vs strike

	// Session timing.
	MinutesSinceOpen  float64
	MinutesUntilClose float64
	Session           MarketSession

	Timestamp time.Time
}

// ImpliedProbability is the market's implied probability of the tracked
// outcome, which for a binary contract is just the mid price.
func (s MarketSnapshot) ImpliedProbability() float64 {
	return s.MidPrice
}
