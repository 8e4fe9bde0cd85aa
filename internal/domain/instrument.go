package domain

import "time"

// Instrument is one tradable binary contract instance: one hourly window of
// a recurring market, with its own tokens, strike reference, and expiry.
type Instrument struct {
	Slug        string
	Question    string
	TokenIDs    [2]string // [YES, NO]
	Outcomes    [2]string
	StrikePrice float64
	OpenTime    time.Time
	ExpiryTime  time.Time
}

// TradedTokenID returns the token the bot quotes and trades for the given
// outcome.
func (i Instrument) TradedTokenID(outcome Outcome) string {
	if outcome == OutcomeNo {
		return i.TokenIDs[1]
	}
	return i.TokenIDs[0]
}

// MinutesUntilExpiry returns the remaining lifetime of the instrument at t.
func (i Instrument) MinutesUntilExpiry(t time.Time) float64 {
	return i.ExpiryTime.Sub(t).Minutes()
}

// MinutesSinceOpen returns how long the instrument has been trading at t.
func (i Instrument) MinutesSinceOpen(t time.Time) float64 {
	return t.Sub(i.OpenTime).Minutes()
}
