package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

func TestHourlySlug(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, 8, 30, 15, 10, 0, 0, et), "bitcoin-up-or-down-august-30-3pm-et"},
		{time.Date(2026, 8, 30, 0, 5, 0, 0, et), "bitcoin-up-or-down-august-30-12am-et"},
		{time.Date(2026, 8, 30, 12, 0, 0, 0, et), "bitcoin-up-or-down-august-30-12pm-et"},
		{time.Date(2026, 1, 2, 9, 59, 0, 0, et), "bitcoin-up-or-down-january-2-9am-et"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HourlySlug("bitcoin-up-or-down", c.at))
	}
}

func TestAPIMarketToInstrument(t *testing.T) {
	m := APIMarket{
		Slug:         "bitcoin-up-or-down-august-30-3pm-et",
		Question:     "Bitcoin Up or Down - August 30, 3PM ET",
		Outcomes:     `["Up","Down"]`,
		ClobTokenIDs: `["111","222"]`,
		StartDateISO: "2026-08-30T19:00:00Z",
		EndDateISO:   "2026-08-30T20:00:00Z",
	}

	inst, err := m.ToInstrument()
	require.NoError(t, err)

	assert.Equal(t, [2]string{"111", "222"}, inst.TokenIDs)
	assert.Equal(t, [2]string{"Up", "Down"}, inst.Outcomes)
	assert.Equal(t, time.Date(2026, 8, 30, 19, 0, 0, 0, time.UTC), inst.OpenTime.UTC())
	assert.Equal(t, time.Date(2026, 8, 30, 20, 0, 0, 0, time.UTC), inst.ExpiryTime.UTC())
	assert.Zero(t, inst.StrikePrice)
}

func TestAPIMarketToInstrumentBadTokenJSON(t *testing.T) {
	m := APIMarket{ClobTokenIDs: "not json"}
	_, err := m.ToInstrument()
	assert.Error(t, err)
}

func TestFlexBool(t *testing.T) {
	var m APIMarket
	require.NoError(t, json.Unmarshal([]byte(`{"active": true}`), &m))
	assert.True(t, bool(m.Active))

	require.NoError(t, json.Unmarshal([]byte(`{"active": "false"}`), &m))
	assert.False(t, bool(m.Active))

	require.NoError(t, json.Unmarshal([]byte(`{"active": "1"}`), &m))
	assert.True(t, bool(m.Active))
}

func TestGetMarketBySlug(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bitcoin-up-or-down-august-30-3pm-et", r.URL.Query().Get("slug"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"slug":"bitcoin-up-or-down-august-30-3pm-et","clobTokenIds":"[\"111\",\"222\"]","outcomes":"[\"Up\",\"Down\"]"}]`))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	market, err := g.GetMarketBySlug(context.Background(), "bitcoin-up-or-down-august-30-3pm-et")
	require.NoError(t, err)
	assert.Equal(t, "bitcoin-up-or-down-august-30-3pm-et", market.Slug)
}

func TestGetMarketBySlugNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	_, err := g.GetMarketBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHourlyResolverFillsWindowBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"clobTokenIds":"[\"111\",\"222\"]","outcomes":"[\"Up\",\"Down\"]"}]`))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := NewHourlyResolver(NewGammaClient(srv.URL), "bitcoin-up-or-down", "America/New_York", logger)
	require.NoError(t, err)

	et, _ := time.LoadLocation("America/New_York")
	at := time.Date(2026, 8, 30, 15, 25, 0, 0, et)

	inst, err := r.Resolve(context.Background(), at)
	require.NoError(t, err)

	assert.Equal(t, "bitcoin-up-or-down-august-30-3pm-et", inst.Slug)
	assert.Equal(t, time.Date(2026, 8, 30, 15, 0, 0, 0, et).Unix(), inst.OpenTime.Unix())
	assert.Equal(t, time.Date(2026, 8, 30, 16, 0, 0, 0, et).Unix(), inst.ExpiryTime.Unix())
}

func TestBookMessageToMarketUpdate(t *testing.T) {
	msg := BookMessage{
		AssetID:   "111",
		Bids:      []WSPriceLevel{{Price: "0.40", Size: "100"}, {Price: "bad", Size: "1"}},
		Asks:      []WSPriceLevel{{Price: "0.44", Size: "50"}, {Price: "0.45", Size: "0"}},
		Timestamp: "1700000000000",
	}

	upd := msg.ToMarketUpdate()
	assert.Equal(t, "111", upd.TokenID)
	assert.Equal(t, time.UnixMilli(1700000000000).Unix(), upd.Timestamp.Unix())
	assert.Equal(t, 0.40, upd.Book.BestBid())
	assert.Equal(t, 0.44, upd.Book.BestAsk())
	require.Len(t, upd.Book.Bids, 1)
	require.Len(t, upd.Book.Asks, 1)
}
