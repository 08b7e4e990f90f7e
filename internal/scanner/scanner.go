// Package scanner maps a fitted smile back to fair prices and scores each
// strike's observed-vs-fair deviation to pick short-sale entries.
package scanner

import (
	"optionskiller-go/internal/pricing"
	"optionskiller-go/internal/quote"
	"optionskiller-go/internal/surface"
)

// Candidate is one scored strike.
type Candidate struct {
	Strike       float64
	Bid          float64
	Ask          float64
	Mid          float64
	OpenInterest float64
	FairIV       float64
	FairPrice    float64
	Mispricing   float64 // observed mid minus fair price
}

// Scan scores every retained strike against the fitted smile. Strikes with a
// zero bid or open interest under minOpenInterest are skipped. All pricing
// inputs come from the cycle's MarketContext so observed and fair prices are
// consistent.
func Scan(chain quote.Chain, fit *surface.Fit, mc quote.MarketContext, minOpenInterest float64) []Candidate {
	out := make([]Candidate, 0, len(chain))
	for _, q := range chain {
		if q.Bid == 0 || q.OpenInterest < minOpenInterest {
			continue
		}
		fairIV := fit.IVForStrike(q.Strike)
		fairPrice := pricing.Price(mc.Spot, q.Strike, mc.TimeToExpiry, mc.Rate, fairIV, mc.DividendYield, mc.Kind)
		out = append(out, Candidate{
			Strike:       q.Strike,
			Bid:          q.Bid,
			Ask:          q.Ask,
			Mid:          q.Mid,
			OpenInterest: q.OpenInterest,
			FairIV:       fairIV,
			FairPrice:    fairPrice,
			Mispricing:   q.Mid - fairPrice,
		})
	}
	return out
}

// SelectEntry picks the best short-sale candidate: among strikes overpriced
// by more than minOverpriced, the one maximizing open interest times
// mispricing. Ties keep the first candidate in strike order. The second
// return is false when no strike clears the threshold.
func SelectEntry(candidates []Candidate, minOverpriced float64) (Candidate, bool) {
	var best Candidate
	bestScore := 0.0
	found := false
	for _, c := range candidates {
		if c.Mispricing <= minOverpriced {
			continue
		}
		score := c.OpenInterest * c.Mispricing
		if !found || score > bestScore {
			best = c
			bestScore = score
			found = true
		}
	}
	return best, found
}
