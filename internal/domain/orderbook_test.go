package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderBookSortsLevels(t *testing.T) {
	book := NewOrderBook("tok",
		[]BookLevel{{Price: 0.38, Size: 10}, {Price: 0.42, Size: 5}, {Price: 0.40, Size: 7}},
		[]BookLevel{{Price: 0.48, Size: 3}, {Price: 0.44, Size: 9}, {Price: 0.46, Size: 2}},
		time.Now(),
	)

	require.Len(t, book.Bids, 3)
	require.Len(t, book.Asks, 3)

	// Bids descending, asks ascending: index 0 is always the best level.
	assert.Equal(t, 0.42, book.Bids[0].Price)
	assert.Equal(t, 0.38, book.Bids[2].Price)
	assert.Equal(t, 0.44, book.Asks[0].Price)
	assert.Equal(t, 0.48, book.Asks[2].Price)

	assert.Equal(t, 0.42, book.BestBid())
	assert.Equal(t, 0.44, book.BestAsk())
}

func TestOrderBookDerivedPrices(t *testing.T) {
	book := NewOrderBook("tok",
		[]BookLevel{{Price: 0.40, Size: 100}},
		[]BookLevel{{Price: 0.44, Size: 50}},
		time.Now(),
	)

	assert.InDelta(t, 0.42, book.MidPrice(), 1e-9)
	assert.InDelta(t, (0.44-0.40)/0.42*100, book.SpreadPct(), 1e-9)
	assert.Equal(t, 100.0, book.BidLiquidity())
	assert.Equal(t, 50.0, book.AskLiquidity())
}

func TestOrderBookOneSidedAndEmpty(t *testing.T) {
	bidOnly := NewOrderBook("tok", []BookLevel{{Price: 0.30, Size: 1}}, nil, time.Now())
	assert.Equal(t, 0.30, bidOnly.MidPrice())
	assert.Equal(t, 0.0, bidOnly.BestAsk())
	assert.Equal(t, 0.0, bidOnly.SpreadPct())

	askOnly := NewOrderBook("tok", nil, []BookLevel{{Price: 0.70, Size: 1}}, time.Now())
	assert.Equal(t, 0.70, askOnly.MidPrice())

	empty := NewOrderBook("tok", nil, nil, time.Now())
	assert.Equal(t, 0.5, empty.MidPrice())
	assert.Equal(t, 0.0, empty.BestBid())
}
