package sampler

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// ErrNoMode is returned when the mode search ends at a non-finite density.
var ErrNoMode = errors.New("no finite posterior mode found")

// FindMAP maximises the log density with L-BFGS, starting at init.
func FindMAP(target Target, init []float64) ([]float64, error) {
	if len(init) != target.Dim() {
		return nil, fmt.Errorf("%w: init has %d values, target dimension is %d", ErrOptions, len(init), target.Dim())
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return -target.LogDensity(x)
		},
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, target.LogDensity, x, gradSettings)
			for i := range grad {
				grad[i] = -grad[i]
			}
		},
	}

	res, err := optimize.Minimize(problem, init, nil, &optimize.LBFGS{})
	if res == nil {
		return nil, fmt.Errorf("mode search: %w", err)
	}
	if !finite(res.F) || !finiteSlice(res.X) {
		return nil, ErrNoMode
	}
	if err != nil && res.F > -target.LogDensity(init) {
		return nil, fmt.Errorf("mode search: %w", err)
	}
	return append([]float64(nil), res.X...), nil
}
