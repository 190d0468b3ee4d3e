package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LeastSquaresRates fits the regime rates by ordinary least squares with
// everything else in v held fixed, and returns them in the units of the
// "rate" parameter. The blended rate series is linear in the rates, so
// column k of the design is the expected outcome when only regime k has
// rate 1.
//
// The result is a starting point for the sampler, nudged to satisfy the
// rate prior's support and ordering. It is not an estimate in its own right.
// HOW TO USE:
// init := m.Constrain(theta0)
// rates, err := m.LeastSquaresRates(init)
// theta, err := m.InitialPoint(Values{"rate": rates})
func (m *Model) LeastSquaresRates(v Values) ([]float64, error) {
	if m.cfg.Rate != SwitchRate {
		return nil, fmt.Errorf("%w: least-squares rates need a switch rate model", ErrConfiguration)
	}

	T := len(m.cases)
	p := m.nSwitchpoints + 1
	if T <= p {
		return nil, fmt.Errorf("%w: need more than %d observations, got %d", ErrConfiguration, p, T)
	}

	// Design matrix, one column per regime
	X := mat.NewDense(T, p, nil)
	for k := 0; k < p; k++ {
		unit := make(Values, len(v)+1)
		for name, val := range v {
			unit[name] = val
		}
		rates := make([]float64, p)
		rates[k] = 1
		unit[RateName] = rates

		col, err := m.Expected(unit)
		if err != nil {
			return nil, err
		}
		for t := 0; t < T; t++ {
			X.Set(t, k, col[t])
		}
	}
	Y := mat.NewDense(T, 1, append([]float64(nil), m.observed...))

	var B mat.Dense

	// First try: normal equations B = (X'X)^(-1) X'Y
	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err == nil {
		var xty mat.Dense
		xty.Mul(X.T(), Y)
		B.Mul(&xtxInv, &xty)
	} else {
		// X'X is singular, e.g. a regime with no cases at all.
		// Fall back to the minimum-norm least-squares solution.
		var svd mat.SVD
		if ok := svd.Factorize(X, mat.SVDFullU|mat.SVDFullV); !ok {
			return nil, fmt.Errorf("least squares failed: X'X singular and SVD factorization failed: %v", err)
		}
		rank := svd.Rank(1e-12)
		svd.SolveTo(&B, Y, rank)
	}

	rates := make([]float64, p)
	for k := range rates {
		rates[k] = B.At(k, 0)
	}

	switch m.cfg.RatePrior {
	case UniformUnit:
		for k, r := range rates {
			rates[k] = math.Min(math.Max(r, 1e-4), 1-1e-4)
		}
	default:
		for k, r := range rates {
			if math.IsNaN(r) || r < 1e-2 {
				rates[k] = 1e-2
			}
		}
		increasing(rates)
	}
	return rates, nil
}
