// Package surface fits an arbitrage-aware volatility smile to an option
// chain: a rational parametric model blended with a radial-basis interpolant,
// both in log space over min-max normalized strikes.
package surface

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"optionskiller-go/internal/quote"
)

const spreadEpsilon = 1e-8

// Config tunes the smile fit. Callers start from DefaultConfig and override
// fields from YAML.
type Config struct {
	MinQuotes int     `yaml:"min_quotes"`
	MinMidIV  float64 `yaml:"min_mid_iv"`
	NumStdev  float64 `yaml:"num_stdev"`
	GridSize  int     `yaml:"grid_size"`
	WeightRFV float64 `yaml:"weight_rfv"`
	WeightRBF float64 `yaml:"weight_rbf"`
	Epsilon   float64 `yaml:"epsilon"`   // 0 derives from mean strike spacing
	Smoothing float64 `yaml:"smoothing"` // ridge term on the RBF kernel
}

// DefaultConfig returns the production fit settings.
func DefaultConfig() Config {
	return Config{
		MinQuotes: 20,
		MinMidIV:  0.005,
		NumStdev:  1.25,
		GridSize:  800,
		WeightRFV: 0.75,
		WeightRBF: 0.25,
		Smoothing: 1e-12,
	}
}

// Validate checks the blend weights sum to one and the sizes are sane.
func (c Config) Validate() error {
	if c.MinQuotes <= 0 {
		return fmt.Errorf("min_quotes must be positive, got %d", c.MinQuotes)
	}
	if c.GridSize < 2 {
		return fmt.Errorf("grid_size must be at least 2, got %d", c.GridSize)
	}
	if c.WeightRFV < 0 || c.WeightRBF < 0 {
		return fmt.Errorf("blend weights must be non-negative")
	}
	if math.Abs(c.WeightRFV+c.WeightRBF-1) > 1e-9 {
		return fmt.Errorf("blend weights must sum to 1, got %v", c.WeightRFV+c.WeightRBF)
	}
	return nil
}

// SelectStrikes keeps strikes within numStdev population standard deviations
// of the spot. The deviation is taken over the full input array, not the
// filtered one.
func SelectStrikes(strikes []float64, spot, numStdev float64) []float64 {
	if len(strikes) == 0 {
		return nil
	}
	stdev := stat.PopStdDev(strikes, nil)
	lower := spot - numStdev*stdev
	upper := spot + numStdev*stdev

	out := make([]float64, 0, len(strikes))
	for _, k := range strikes {
		if k >= lower && k <= upper {
			out = append(out, k)
		}
	}
	return out
}

// Fit is one cycle's fitted smile: the training points it was built from and
// the blended fair-IV curve evaluated on a fixed fine grid over the observed
// strike range.
type Fit struct {
	Strikes []float64 // qualifying training strikes, in chain order
	MidIVs  []float64 // training mid IVs

	GridStrikes []float64
	GridIVs     []float64 // blended curve
	RFV         RFVParams

	minStrike float64
	maxStrike float64
	rfvCurve  []float64
	rbfCurve  []float64
}

// Build fits the smile from a chain whose IV fields are already populated.
// It reports false when fewer than cfg.MinQuotes strikes qualify (non-zero
// bid, mid IV above the floor) or when the fit is numerically degenerate;
// the surface is then unavailable for the cycle.
func Build(chain quote.Chain, cfg Config) (*Fit, bool) {
	var strikes, midIVs, bidIVs, askIVs []float64
	for _, q := range chain {
		if q.Bid == 0 || q.MidIV <= cfg.MinMidIV {
			continue
		}
		strikes = append(strikes, q.Strike)
		midIVs = append(midIVs, q.MidIV)
		bidIVs = append(bidIVs, q.BidIV)
		askIVs = append(askIVs, q.AskIV)
	}
	if len(strikes) < cfg.MinQuotes {
		return nil, false
	}

	// Chain sortedness is a convention, not a guarantee; take the true range.
	minStrike := floats.Min(strikes)
	maxStrike := floats.Max(strikes)
	if maxStrike <= minStrike {
		return nil, false
	}
	span := maxStrike - minStrike

	// Min-max scale into [0,1], then shift by +0.5 so every value stays
	// positive under the log transform.
	logMoneyness := make([]float64, len(strikes))
	weights := make([]float64, len(strikes))
	for i, k := range strikes {
		logMoneyness[i] = math.Log((k-minStrike)/span + 0.5)
		weights[i] = 1 / (askIVs[i] - bidIVs[i] + spreadEpsilon)
	}

	params := fitRFV(logMoneyness, midIVs, weights)
	interp, err := newRBF(logMoneyness, midIVs, cfg.Epsilon, cfg.Smoothing)
	if err != nil {
		return nil, false
	}

	fit := &Fit{
		Strikes:     strikes,
		MidIVs:      midIVs,
		GridStrikes: make([]float64, cfg.GridSize),
		GridIVs:     make([]float64, cfg.GridSize),
		RFV:         params,
		minStrike:   minStrike,
		maxStrike:   maxStrike,
		rfvCurve:    make([]float64, cfg.GridSize),
		rbfCurve:    make([]float64, cfg.GridSize),
	}

	grid := floats.Span(make([]float64, cfg.GridSize), 0.5, 1.5)
	for i, normalized := range grid {
		lk := math.Log(normalized)
		fit.rfvCurve[i] = params.Eval(lk)
		fit.rbfCurve[i] = interp.Eval(lk)
		fit.GridIVs[i] = cfg.WeightRFV*fit.rfvCurve[i] + cfg.WeightRBF*fit.rbfCurve[i]
		fit.GridStrikes[i] = minStrike + (normalized-0.5)*span
	}
	return fit, true
}

func (f *Fit) gridIndex(strike float64) int {
	span := f.maxStrike - f.minStrike
	idx := int(math.Round((strike - f.minStrike) / span * float64(len(f.GridIVs)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > len(f.GridIVs)-1 {
		idx = len(f.GridIVs) - 1
	}
	return idx
}

// IVForStrike returns the blended fair IV at the grid point nearest to the
// strike. Strikes outside the fitted range clamp to the grid edges.
func (f *Fit) IVForStrike(strike float64) float64 {
	return f.GridIVs[f.gridIndex(strike)]
}
