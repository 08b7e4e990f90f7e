// Package pricing values American-style options with the Barone-Adesi-Whaley
// approximation and backs implied volatility out of observed prices.
//
// The package is a pure numeric core: degenerate inputs (T <= 0, sigma <= 0)
// propagate through the arithmetic as non-finite results instead of errors,
// so callers filter inputs before pricing.
package pricing

import (
	"math"

	"github.com/chobie/go-gaussian"

	"optionskiller-go/internal/quote"
)

const (
	// IVLowerBound and IVUpperBound bracket the bisection search.
	IVLowerBound = 1e-5
	IVUpperBound = 10.0

	ivMaxIterations = 100
	ivTolerance     = 1e-8
)

var stdNorm = gaussian.NewGaussian(0, 1)

// erf approximates the error function with fixed Abramowitz-Stegun
// coefficients, accurate to roughly 1e-7.
func erf(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t+a3)*t+a2)*t+a1)*t)*math.Exp(-x*x)
	return sign * y
}

func normCDF(x float64) float64 {
	return 0.5 * (1.0 + erf(x/math.Sqrt2))
}

func dTerms(s, k, t, r, sigma, q float64) (d1, d2 float64) {
	d1 = (math.Log(s/k) + (r-q+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
	d2 = d1 - sigma*math.Sqrt(t)
	return d1, d2
}

func europeanPrice(s, k, t, r, sigma, q float64, kind quote.Kind) float64 {
	d1, d2 := dTerms(s, k, t, r, sigma, q)
	if kind == quote.Calls {
		return s*math.Exp(-q*t)*normCDF(d1) - k*math.Exp(-r*t)*normCDF(d2)
	}
	return k*math.Exp(-r*t)*normCDF(-d2) - s*math.Exp(-q*t)*normCDF(-d1)
}

// Price returns the Barone-Adesi-Whaley American option price. When q >= r or
// the critical exponent root is negative no early-exercise premium applies and
// the European Black-Scholes value is returned unmodified.
func Price(s, k, t, r, sigma, q float64, kind quote.Kind) float64 {
	m := 2 * (r - q) / (sigma * sigma)
	n := 2 * (r - q - 0.5*sigma*sigma) / (sigma * sigma)
	q2 := (-(n - 1) - math.Sqrt((n-1)*(n-1)+4*m)) / 2

	european := europeanPrice(s, k, t, r, sigma, q, kind)
	if q >= r || q2 < 0 {
		return european
	}

	if kind == quote.Calls {
		sCritical := k / (1 - 1/q2)
		if s >= sCritical {
			return s - k
		}
		a2 := (sCritical - k) * math.Pow(sCritical, -q2)
		return european + a2*math.Pow(s/sCritical, q2)
	}

	sCritical := k / (1 + 1/q2)
	if s <= sCritical {
		return k - s
	}
	a2 := (k - sCritical) * math.Pow(sCritical, -q2)
	return european + a2*math.Pow(s/sCritical, q2)
}

// ImpliedVolatility inverts Price by bisection over [IVLowerBound,
// IVUpperBound], relying on the price being strictly increasing in sigma.
// If neither the price tolerance nor the bracket-width tolerance is met within
// the iteration cap, the last midpoint is returned; callers should treat
// results pinned near either bound as suspect.
func ImpliedVolatility(observed, s, k, r, t, q float64, kind quote.Kind) float64 {
	lower := IVLowerBound
	upper := IVUpperBound
	mid := (lower + upper) / 2

	for i := 0; i < ivMaxIterations; i++ {
		mid = (lower + upper) / 2
		price := Price(s, k, t, r, mid, q, kind)

		if math.Abs(price-observed) < ivTolerance {
			return mid
		}
		if price > observed {
			upper = mid
		} else {
			lower = mid
		}
		if upper-lower < ivTolerance {
			break
		}
	}
	return mid
}

// Delta returns the analytic Black-Scholes delta with continuous dividends.
func Delta(s, k, t, r, sigma, q float64, kind quote.Kind) float64 {
	d1, _ := dTerms(s, k, t, r, sigma, q)
	if kind == quote.Calls {
		return stdNorm.Cdf(d1)
	}
	return stdNorm.Cdf(d1) - 1
}
