// Package prior declares the prior distributions and the transforms that
// map constrained parameters to the unconstrained space a sampler moves in.
package prior

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// A Prior is a univariate prior density.
type Prior interface {
	// LogProb returns the log density at x, -Inf outside the support.
	LogProb(x float64) float64

	// Support returns the open interval the density lives on.
	Support() (lo, hi float64)

	// String describes the prior, e.g. "Uniform(0, 1)".
	String() string
}

// Uniform is a flat prior on (Min, Max).
type Uniform struct {
	Min, Max float64
}

func (u Uniform) LogProb(x float64) float64 {
	return distuv.Uniform{Min: u.Min, Max: u.Max}.LogProb(x)
}

func (u Uniform) Support() (float64, float64) { return u.Min, u.Max }

func (u Uniform) String() string { return fmt.Sprintf("Uniform(%g, %g)", u.Min, u.Max) }

// Gamma is a Gamma prior with shape Alpha and rate Beta.
type Gamma struct {
	Alpha, Beta float64
}

func (g Gamma) LogProb(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return distuv.Gamma{Alpha: g.Alpha, Beta: g.Beta}.LogProb(x)
}

func (g Gamma) Support() (float64, float64) { return 0, math.Inf(1) }

func (g Gamma) String() string { return fmt.Sprintf("Gamma(%g, %g)", g.Alpha, g.Beta) }

// LogProbSum adds up the prior log density of every component of xs.
func LogProbSum(p Prior, xs []float64) float64 {
	lp := 0.0
	for _, x := range xs {
		lp += p.LogProb(x)
		if math.IsInf(lp, -1) {
			return lp
		}
	}
	return lp
}

// DefaultTransform returns the unconstraining transform matching p's support.
func DefaultTransform(p Prior) Transform {
	lo, hi := p.Support()
	switch {
	case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
		return Interval{Lo: lo, Hi: hi}
	case lo == 0 && math.IsInf(hi, 1):
		return Log{}
	default:
		return Identity{}
	}
}
