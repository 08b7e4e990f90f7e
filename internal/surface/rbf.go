package surface

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// rbfInterpolant is a radial-basis interpolant over log-moneyness with a
// multiquadric kernel, a constant polynomial tail, and ridge smoothing on the
// kernel diagonal.
type rbfInterpolant struct {
	centers []float64
	weights []float64
	bias    float64
	epsilon float64
}

func multiquadric(r float64) float64 {
	return -math.Sqrt(1 + r*r)
}

// meanSpacing returns the average gap between sorted sample locations, the
// default kernel shape parameter when none is configured.
func meanSpacing(k []float64) float64 {
	if len(k) < 2 {
		return 1
	}
	sorted := make([]float64, len(k))
	copy(sorted, k)
	sort.Float64s(sorted)
	return (sorted[len(sorted)-1] - sorted[0]) / float64(len(sorted)-1)
}

// newRBF solves the augmented kernel system
//
//	| K + smoothing*I  1 | |w|   |y|
//	| 1^T              0 | |b| = |0|
//
// for the interpolation weights and bias.
func newRBF(k, y []float64, epsilon, smoothing float64) (*rbfInterpolant, error) {
	n := len(k)
	if n == 0 {
		return nil, errors.New("no sample points")
	}
	if epsilon <= 0 {
		epsilon = meanSpacing(k)
	}
	if epsilon <= 0 {
		return nil, errors.New("degenerate sample spacing")
	}

	a := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := multiquadric(epsilon * math.Abs(k[i]-k[j]))
			if i == j {
				v += smoothing
			}
			a.Set(i, j, v)
		}
		a.Set(i, n, 1)
		a.Set(n, i, 1)
	}

	rhs := mat.NewVecDense(n+1, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, y[i])
	}

	var solution mat.VecDense
	if err := solution.SolveVec(a, rhs); err != nil {
		return nil, err
	}

	centers := make([]float64, n)
	copy(centers, k)
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = solution.AtVec(i)
	}
	return &rbfInterpolant{
		centers: centers,
		weights: weights,
		bias:    solution.AtVec(n),
		epsilon: epsilon,
	}, nil
}

// Eval returns the interpolated value at log-moneyness x.
func (r *rbfInterpolant) Eval(x float64) float64 {
	sum := r.bias
	for i, c := range r.centers {
		sum += r.weights[i] * multiquadric(r.epsilon*math.Abs(x-c))
	}
	return sum
}
