package domain

import "time"

// OrderStatus is the terminal state of an executed order.
type OrderStatus string

const (
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
)

// ExecutionReport is the immutable outcome of driving one OrderRequest
// through its lifecycle. OrderID is empty when the order was rejected before
// submission.
type ExecutionReport struct {
	OrderID     string
	Request     OrderRequest
	Status      OrderStatus
	FilledSize  float64
	FilledPrice float64
	FilledAt    time.Time
	Error       string
	Timestamp   time.Time
}

// Trade is a persisted fill, the unit the trade store records.
type Trade struct {
	ID         string
	OrderID    string
	TokenID    string
	Outcome    Outcome
	Side       Side
	Price      float64
	Shares     float64
	SizeUSD    float64
	RealizedPL float64 // zero for entries
	Strategy   string
	ExecutedAt time.Time
}
