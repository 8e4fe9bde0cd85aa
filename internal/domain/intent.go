package domain

import "time"

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Outcome is one side of a binary contract.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Opposite returns the complement outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Action is what a strategy wants to do this tick.
type Action string

const (
	ActionEnter Action = "ENTER"
	ActionExit  Action = "EXIT"
	ActionHold  Action = "HOLD"
)

// TradeIntent is a strategy's proposal for this tick. It is produced fresh
// on every evaluation and never persisted by the strategy itself.
type TradeIntent struct {
	ID         string
	Action     Action
	TokenID    string
	Outcome    Outcome
	Side       Side
	Price      float64
	Size       float64 // dollars
	Reason     string
	Strategy   string
	Confidence float64 // 0..1
	CreatedAt  time.Time
}

// RejectionReason is the closed set of reasons the risk gatekeeper can
// reject an intent with.
type RejectionReason string

const (
	RejectMaxExposure   RejectionReason = "MAX_EXPOSURE"
	RejectMaxDrawdown   RejectionReason = "MAX_DRAWDOWN"
	RejectCooldown      RejectionReason = "COOLDOWN"
	RejectRateLimit     RejectionReason = "RATE_LIMIT"
	RejectKillSwitch    RejectionReason = "KILL_SWITCH"
	RejectMarketTiming  RejectionReason = "MARKET_TIMING"
	RejectPriceSlippage RejectionReason = "PRICE_SLIPPAGE"
)

// OrderRequest is an approved intent ready for execution. ApprovedSize may
// be less than the requested size.
type OrderRequest struct {
	Intent       TradeIntent
	ApprovedSize float64
	ChecksPassed []string
	ApprovedAt   time.Time
}

// Rejection is a denied intent with the first check that failed.
type Rejection struct {
	Intent TradeIntent
	Reason RejectionReason
	Detail string
	At     time.Time
}
