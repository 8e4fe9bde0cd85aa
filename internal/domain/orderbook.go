package domain

import (
	"sort"
	"time"
)

// neutralMid is the mid-price fallback when the book has neither side.
const neutralMid = 0.5

// BookLevel is a single price+size entry in an orderbook.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a point-in-time view of bids and asks for one token.
// Bids are sorted descending and asks ascending by price; NewOrderBook
// enforces this regardless of the order the feed delivered the levels in.
type OrderBook struct {
	TokenID   string
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp time.Time
}

// NewOrderBook builds an OrderBook from raw feed levels. The input slices are
// copied and re-sorted; feed ordering is never trusted.
func NewOrderBook(tokenID string, bids, asks []BookLevel, ts time.Time) OrderBook {
	b := make([]BookLevel, len(bids))
	copy(b, bids)
	a := make([]BookLevel, len(asks))
	copy(a, asks)

	sort.Slice(b, func(i, j int) bool { return b[i].Price > b[j].Price })
	sort.Slice(a, func(i, j int) bool { return a[i].Price < a[j].Price })

	return OrderBook{
		TokenID:   tokenID,
		Bids:      b,
		Asks:      a,
		Timestamp: ts,
	}
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// MidPrice returns the average of best bid and best ask when both sides are
// present, whichever side exists when only one does, and a neutral 0.5
// when the book is empty.
func (ob OrderBook) MidPrice() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	case ask > 0:
		return ask
	default:
		return neutralMid
	}
}

// SpreadPct returns (ask-bid)/mid as a percentage, or 0 when either side is
// missing.
func (ob OrderBook) SpreadPct() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	mid := ob.MidPrice()
	if mid <= 0 {
		return 0
	}
	return (ask - bid) / mid * 100
}

// BidLiquidity returns the total size resting on the bid side.
func (ob OrderBook) BidLiquidity() float64 {
	var total float64
	for _, lvl := range ob.Bids {
		total += lvl.Size
	}
	return total
}

// AskLiquidity returns the total size resting on the ask side.
func (ob OrderBook) AskLiquidity() float64 {
	var total float64
	for _, lvl := range ob.Asks {
		total += lvl.Size
	}
	return total
}

// MarketUpdate is the event a market-data port delivers on every book change.
type MarketUpdate struct {
	TokenID   string
	Book      OrderBook
	Timestamp time.Time
}

// OracleUpdate is the event an oracle port delivers on every reference-price
// tick. Asset identifies the underlying (e.g. "BTCUSDT"), not the traded
// token.
type OracleUpdate struct {
	Asset     string
	Price     float64
	Timestamp time.Time
}
