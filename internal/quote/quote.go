// Package quote standardizes market data payloads shared between the gateway,
// pricing, surface, and lifecycle layers.
package quote

import "math"

// Kind identifies the option contract class of an instrument.
type Kind string

const (
	// Calls selects the call side of a chain.
	Calls Kind = "calls"
	// Puts selects the put side of a chain.
	Puts Kind = "puts"
)

// Valid reports whether the kind is one of the two supported classes.
func (k Kind) Valid() bool { return k == Calls || k == Puts }

// Quote holds one strike's market snapshot. IV fields are zero until the
// lifecycle backs them out from the quoted prices.
type Quote struct {
	Strike       float64
	Bid          float64
	Ask          float64
	Mid          float64
	OpenInterest float64
	BidIV        float64
	AskIV        float64
	MidIV        float64
}

// Mid rounds a bid/ask pair to the 3-decimal mid used throughout the bot.
func Mid(bid, ask float64) float64 {
	return math.Round((bid+ask)/2*1000) / 1000
}

// Chain is an option chain for one underlying and expiry, sorted by strike.
type Chain []Quote

// Strikes returns the strike column of the chain.
func (c Chain) Strikes() []float64 {
	out := make([]float64, len(c))
	for i, q := range c {
		out[i] = q.Strike
	}
	return out
}

// MarketContext carries the pricing inputs held fixed within a single cycle.
type MarketContext struct {
	Spot          float64
	Rate          float64
	DividendYield float64
	TimeToExpiry  float64
	Kind          Kind
}

// OptionLeg is one held option position on the underlying.
type OptionLeg struct {
	Symbol   string
	Strike   float64
	Kind     Kind
	Quantity float64 // signed contracts, short negative
}

// Position is the account's exposure to one underlying: signed shares plus
// any option legs.
type Position struct {
	Shares float64
	Legs   []OptionLeg
}
