package lifecycle

import (
	"time"

	"optionskiller-go/internal/quote"
)

// Instrument is one configured underlying in the rotation. Its State is
// written only by the cycle that owns it.
type Instrument struct {
	Ticker          string
	ExpiryIndex     int
	Kind            quote.Kind
	MinOverpriced   float64
	MinOpenInterest float64

	// Resolved once at startup.
	Expiry        time.Time
	DividendYield float64

	State State
}

// Ring rotates over a fixed set of instruments, one per wake.
type Ring struct {
	instruments []*Instrument
	next        int
}

// NewRing builds a rotation over the given instruments.
func NewRing(instruments []*Instrument) *Ring {
	return &Ring{instruments: instruments}
}

// Len reports the rotation size.
func (r *Ring) Len() int { return len(r.instruments) }

// Next returns the next instrument round-robin.
func (r *Ring) Next() *Instrument {
	if len(r.instruments) == 0 {
		return nil
	}
	inst := r.instruments[r.next]
	r.next = (r.next + 1) % len(r.instruments)
	return inst
}

// ExitPolicy decides when an instrument's position counts as closed. The
// trigger is external (expiration, assignment, manual close), so the policy
// only inspects synced account state.
type ExitPolicy interface {
	ShouldExit(pos quote.Position) bool
}

// FlatPositionExit closes the lifecycle once no option legs remain and the
// share hedge has been fully unwound.
type FlatPositionExit struct{}

// ShouldExit implements ExitPolicy.
func (FlatPositionExit) ShouldExit(pos quote.Position) bool {
	return len(pos.Legs) == 0 && pos.Shares == 0
}
