package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	TransactID  string `json:"transactID,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// APIOrder is the subset of the CLOB order response the bot reads when
// polling status.
type APIOrder struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AssetID     string `json:"asset_id"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	SizeMatched string `json:"size_matched"`
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is the subset of the Gamma market response instrument discovery
// needs.
type APIMarket struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	ConditionID  string   `json:"condition_id"`
	Slug         string   `json:"slug"`
	Active       flexBool `json:"active"`
	Closed       bool     `json:"closed"`
	Outcomes     string   `json:"outcomes"`       // JSON-encoded, e.g. "[\"Up\",\"Down\"]"
	ClobTokenIDs string   `json:"clobTokenIds"`   // JSON-encoded, e.g. "[\"123\",\"456\"]"
	StartDateISO string   `json:"startDateIso"`
	EndDateISO   string   `json:"endDateIso"`
}

// ToInstrument converts a Gamma market into a domain instrument. The strike
// price is unknown at discovery time; the engine pins it from the oracle at
// window open.
func (m *APIMarket) ToInstrument() (domain.Instrument, error) {
	inst := domain.Instrument{
		Slug:     m.Slug,
		Question: m.Question,
	}

	var tokenIDs []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.Instrument{}, err
	}
	var outcomes []string
	if m.Outcomes != "" {
		if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
			return domain.Instrument{}, err
		}
	}
	for i := 0; i < 2 && i < len(tokenIDs); i++ {
		inst.TokenIDs[i] = tokenIDs[i]
	}
	for i := 0; i < 2 && i < len(outcomes); i++ {
		inst.Outcomes[i] = outcomes[i]
	}

	if t, err := time.Parse(time.RFC3339, m.StartDateISO); err == nil {
		inst.OpenTime = t
	}
	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		inst.ExpiryTime = t
	}
	return inst, nil
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is a subscribe/unsubscribe frame sent to the market channel.
type WSCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Assets  []string `json:"assets_ids"`
}

// BookMessage is a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// ToMarketUpdate converts a book frame into a domain update. Unparseable
// levels are skipped rather than failing the whole frame.
func (b *BookMessage) ToMarketUpdate() domain.MarketUpdate {
	ts := time.Now()
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil && ms > 0 {
		ts = time.UnixMilli(ms)
	}
	bids := parseLevels(b.Bids)
	asks := parseLevels(b.Asks)
	return domain.MarketUpdate{
		TokenID:   b.AssetID,
		Book:      domain.NewOrderBook(b.AssetID, bids, asks, ts),
		Timestamp: ts,
	}
}

func parseLevels(raw []WSPriceLevel) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		size, err := strconv.ParseFloat(lvl.Size, 64)
		if err != nil || size <= 0 {
			continue
		}
		out = append(out, domain.BookLevel{Price: price, Size: size})
	}
	return out
}
