// Package switchrate builds smooth piecewise-constant rate series from
// ordered switchpoints and per-regime rates.
package switchrate

import (
	"errors"
	"fmt"
	"math"
)

// Steepness controls how sharp each regime transition is.
const Steepness = 2.0

// ErrShape is returned when the number of rates is not one more than the number of switchpoints.
var ErrShape = errors.New("switch shape mismatch")

// Layout selects which regime a rate index refers to.
type Layout int

const (
	// ReverseChronological gives rates[K] to the days before the first
	// switchpoint and rates[0] to the days after the last one. With ordered
	// rates it describes a conversion rate that falls from wave to wave.
	ReverseChronological Layout = iota
	// Chronological gives rates[0] to the days before the first switchpoint
	// and rates[K] to the days after the last one.
	Chronological
)

func (l Layout) String() string {
	switch l {
	case Chronological:
		return "chronological"
	case ReverseChronological:
		return "reverse"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout maps a layout name back to its value.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "reverse":
		return ReverseChronological, nil
	case "chronological":
		return Chronological, nil
	}
	return 0, fmt.Errorf("unknown regime layout %q", s)
}

// Sigmoid is the logistic function, written to stay finite for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Build returns the rate series over points in the default layout,
// ReverseChronological.
func Build(points, switchpoints, rates []float64) ([]float64, error) {
	return BuildLayout(points, switchpoints, rates, ReverseChronological)
}

// BuildLayout blends the K+1 regime rates across the K switchpoints.
//
// The fold starts from the most recent regime and walks the switchpoints
// from last to first, so each earlier switchpoint blends one more regime in
// front of everything already folded. Exactly at a switchpoint the two
// neighbouring regimes are mixed evenly. Switchpoints are expected in
// increasing order; that is the caller's job.
func BuildLayout(points, switchpoints, rates []float64, layout Layout) ([]float64, error) {
	K := len(switchpoints)
	if len(rates) != K+1 {
		return nil, fmt.Errorf("%w: %d switchpoints need %d rates, got %d", ErrShape, K, K+1, len(rates))
	}

	out := make([]float64, len(points))
	for t, x := range points {
		value := rates[K]
		for idx := 0; idx < K; idx++ {
			var weight float64
			switch layout {
			case Chronological:
				// near 1 before switchpoint K-idx-1
				weight = Sigmoid(Steepness * (switchpoints[K-idx-1] - x))
			default:
				// near 1 after switchpoint idx
				weight = Sigmoid(Steepness * (x - switchpoints[idx]))
			}
			value = weight*rates[K-idx-1] + (1-weight)*value
		}
		out[t] = value
	}
	return out, nil
}

// Scale divides every value by divisor in place and returns the slice.
func Scale(series []float64, divisor float64) []float64 {
	for i := range series {
		series[i] /= divisor
	}
	return series
}

// Points returns the day indices 0..n-1.
func Points(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = float64(i)
	}
	return p
}
