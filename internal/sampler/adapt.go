package sampler

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// dualAveraging tunes the step size toward a target acceptance probability
// (Hoffman and Gelman, 2014).
type dualAveraging struct {
	target float64
	mu     float64

	m         float64
	hBar      float64
	logEpsBar float64
}

const (
	daGamma = 0.05
	daT0    = 10
	daKappa = 0.75
)

func newDualAveraging(eps, target float64) *dualAveraging {
	return &dualAveraging{target: target, mu: math.Log(10 * eps)}
}

// update records one acceptance probability and returns the next step size.
func (d *dualAveraging) update(accept float64) float64 {
	d.m++
	w := 1 / (d.m + daT0)
	d.hBar = (1-w)*d.hBar + w*(d.target-accept)

	logEps := d.mu - math.Sqrt(d.m)/daGamma*d.hBar
	eta := math.Pow(d.m, -daKappa)
	d.logEpsBar = eta*logEps + (1-eta)*d.logEpsBar
	return math.Exp(logEps)
}

// final is the averaged step size used after tuning.
func (d *dualAveraging) final() float64 {
	if d.m == 0 {
		return math.Exp(d.mu) / 10
	}
	return math.Exp(d.logEpsBar)
}

// massWindow collects tuning positions between 15% and 75% of the tuning
// phase and estimates a diagonal inverse mass matrix from them once.
type massWindow struct {
	start, end int
	samples    [][]float64
}

func newMassWindow(dim, tune int) *massWindow {
	w := &massWindow{start: tune * 15 / 100, end: tune * 75 / 100}
	if w.end-w.start < 20 {
		// too short to estimate anything
		w.start, w.end = -1, -1
	}
	w.samples = make([][]float64, dim)
	return w
}

// add records x at iteration it and reports whether the window just closed.
func (w *massWindow) add(it int, x []float64) bool {
	if it < w.start || it >= w.end {
		return false
	}
	for i, v := range x {
		w.samples[i] = append(w.samples[i], v)
	}
	return it == w.end-1
}

// invMass is the variance per dimension, shrunk toward 1e-3 as in Stan.
func (w *massWindow) invMass() []float64 {
	out := make([]float64, len(w.samples))
	for i, s := range w.samples {
		n := float64(len(s))
		v := stat.Variance(s, nil)
		if !finite(v) || v <= 0 {
			v = 1
		}
		out[i] = (n/(n+5))*v + 1e-3*(5/(n+5))
	}
	return out
}
