package sampler

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/diff/fd"
)

// maxEnergyError flags a trajectory as divergent.
const maxEnergyError = 1000

var gradSettings = &fd.Settings{Formula: fd.Central}

// chain is the state of one Hamiltonian Monte Carlo chain.
type chain struct {
	target Target
	rng    *rand.Rand

	x    []float64
	logp float64
	grad []float64

	stepSize float64
	invMass  []float64

	// scratch
	q, p, g []float64
}

type transitionStat struct {
	acceptProb float64
	accepted   bool
	divergent  bool
}

func newChain(target Target, x0 []float64, rng *rand.Rand) *chain {
	d := len(x0)
	c := &chain{
		target:  target,
		rng:     rng,
		x:       append([]float64(nil), x0...),
		grad:    make([]float64, d),
		invMass: make([]float64, d),
		q:       make([]float64, d),
		p:       make([]float64, d),
		g:       make([]float64, d),
	}
	for i := range c.invMass {
		c.invMass[i] = 1
	}
	c.logp = target.LogDensity(c.x)
	c.gradient(c.grad, c.x)
	return c
}

func (c *chain) gradient(dst, x []float64) {
	fd.Gradient(dst, c.target.LogDensity, x, gradSettings)
}

func (c *chain) kinetic(p []float64) float64 {
	k := 0.0
	for i, v := range p {
		k += c.invMass[i] * v * v
	}
	return 0.5 * k
}

func (c *chain) sampleMomentum(p []float64) {
	for i := range p {
		p[i] = c.rng.NormFloat64() / math.Sqrt(c.invMass[i])
	}
}

// leapfrog integrates n steps of size eps from (q, p, g) in place and
// returns the log density at the end point.
func (c *chain) leapfrog(q, p, g []float64, eps float64, n int) float64 {
	lp := math.NaN()
	for s := 0; s < n; s++ {
		for i := range p {
			p[i] += 0.5 * eps * g[i]
		}
		for i := range q {
			q[i] += eps * c.invMass[i] * p[i]
		}
		lp = c.target.LogDensity(q)
		if !finite(lp) {
			return lp
		}
		c.gradient(g, q)
		for i := range p {
			p[i] += 0.5 * eps * g[i]
		}
	}
	return lp
}

// transition performs one Metropolis-corrected trajectory. The step size is
// jittered by +-10% and the number of steps follows from pathLength.
func (c *chain) transition(pathLength float64, maxSteps int) transitionStat {
	eps := c.stepSize * (0.9 + 0.2*c.rng.Float64())
	n := int(math.Ceil(pathLength / eps))
	if n < 1 {
		n = 1
	}
	if n > maxSteps {
		n = maxSteps
	}

	copy(c.q, c.x)
	copy(c.g, c.grad)
	c.sampleMomentum(c.p)
	h0 := -c.logp + c.kinetic(c.p)

	lp := c.leapfrog(c.q, c.p, c.g, eps, n)
	h1 := -lp + c.kinetic(c.p)

	if !finite(h1) || !finiteSlice(c.g) || h1-h0 > maxEnergyError {
		return transitionStat{divergent: true}
	}

	a := math.Min(1, math.Exp(h0-h1))
	if c.rng.Float64() < a {
		copy(c.x, c.q)
		copy(c.grad, c.g)
		c.logp = lp
		return transitionStat{acceptProb: a, accepted: true}
	}
	return transitionStat{acceptProb: a}
}

// findReasonableStepSize doubles or halves the step size until a single
// leapfrog step crosses an acceptance probability of one half.
func (c *chain) findReasonableStepSize() float64 {
	eps := 1.0
	if c.stepSize > 0 {
		eps = c.stepSize
	}

	try := func(eps float64) float64 {
		copy(c.q, c.x)
		copy(c.g, c.grad)
		c.sampleMomentum(c.p)
		h0 := -c.logp + c.kinetic(c.p)
		lp := c.leapfrog(c.q, c.p, c.g, eps, 1)
		h1 := -lp + c.kinetic(c.p)
		if !finite(h1) {
			return 0
		}
		return math.Min(1, math.Exp(h0-h1))
	}

	dir := 1.0
	if try(eps) < 0.5 {
		dir = -1
	}
	for k := 0; k < 50; k++ {
		a := try(eps)
		if dir > 0 && a < 0.5 || dir < 0 && a >= 0.5 {
			break
		}
		next := eps * math.Pow(2, dir)
		if next < 1e-8 || next > 1e3 {
			break
		}
		eps = next
	}
	return eps
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

func finiteSlice(x []float64) bool {
	for _, v := range x {
		if !finite(v) {
			return false
		}
	}
	return true
}
