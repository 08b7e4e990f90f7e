// Package risk encodes guard-rails for how much size the trading loop may
// take on. Zero-valued limits disable the corresponding check.
package risk

// Limits caps order sizes independently of the strategy's own thresholds.
type Limits struct {
	// MaxHedgeShares bounds a single hedge adjustment. A runaway delta
	// estimate should never turn into an unbounded share order.
	MaxHedgeShares float64 `yaml:"max_hedge_shares"`
	// MinEntryCredit rejects entries whose resting limit price collects
	// less premium than the commissions they would incur.
	MinEntryCredit float64 `yaml:"min_entry_credit"`
}

// AllowHedge reports whether a hedge of the given share quantity is in bounds.
func (l Limits) AllowHedge(qty int) bool {
	return l.MaxHedgeShares <= 0 || float64(qty) <= l.MaxHedgeShares
}

// AllowEntry reports whether an entry collecting the given credit is worth
// submitting.
func (l Limits) AllowEntry(credit float64) bool {
	return credit >= l.MinEntryCredit
}
