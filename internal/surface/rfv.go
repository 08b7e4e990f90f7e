package surface

import (
	"gonum.org/v1/gonum/optimize"
)

// RFVParams holds the five coefficients of the rational smile model
// rfv(k) = (a + b*k + c*k^2) / (1 + d*k + e*k^2) in log-moneyness k.
type RFVParams struct {
	A, B, C, D, E float64
}

// Eval returns the model implied volatility at log-moneyness k.
func (p RFVParams) Eval(k float64) float64 {
	num := p.A + p.B*k + p.C*k*k
	den := 1 + p.D*k + p.E*k*k
	return num / den
}

var rfvInitialGuess = []float64{0.2, 0.3, 0.1, 0.2, 0.1}

// fitRFV minimizes the spread-weighted sum of squared residuals against the
// observed mid IVs with a quasi-Newton (L-BFGS) search, unbounded in all five
// parameters. On optimizer failure the best iterate seen so far is used.
func fitRFV(k, y, weights []float64) RFVParams {
	objective := func(p []float64) float64 {
		var sum float64
		for i := range k {
			num := p[0] + p[1]*k[i] + p[2]*k[i]*k[i]
			den := 1 + p[3]*k[i] + p[4]*k[i]*k[i]
			res := num/den - y[i]
			sum += weights[i] * res * res
		}
		return sum
	}

	gradient := func(grad, p []float64) {
		for j := range grad {
			grad[j] = 0
		}
		for i := range k {
			ki := k[i]
			num := p[0] + p[1]*ki + p[2]*ki*ki
			den := 1 + p[3]*ki + p[4]*ki*ki
			res := num/den - y[i]
			scale := 2 * weights[i] * res
			grad[0] += scale / den
			grad[1] += scale * ki / den
			grad[2] += scale * ki * ki / den
			grad[3] += scale * -num * ki / (den * den)
			grad[4] += scale * -num * ki * ki / (den * den)
		}
	}

	problem := optimize.Problem{Func: objective, Grad: gradient}
	initial := make([]float64, len(rfvInitialGuess))
	copy(initial, rfvInitialGuess)

	params := initial
	if result, err := optimize.Minimize(problem, initial, nil, &optimize.LBFGS{}); result != nil && (err == nil || result.X != nil) {
		params = result.X
	}
	return RFVParams{A: params[0], B: params[1], C: params[2], D: params[3], E: params[4]}
}
