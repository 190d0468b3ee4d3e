package prior

import (
	"math"
)

// A Transform maps a constrained vector to an unconstrained one and back.
type Transform interface {
	// Forward maps constrained values to unconstrained ones.
	Forward(x []float64) []float64

	// Backward maps unconstrained values to constrained ones and returns
	// log |det dx/dy|, the correction added to the log density.
	Backward(y []float64) (x []float64, logJac float64)
}

// Identity leaves values unchanged.
type Identity struct{}

func (Identity) Forward(x []float64) []float64 { return append([]float64(nil), x...) }

func (Identity) Backward(y []float64) ([]float64, float64) {
	return append([]float64(nil), y...), 0
}

// Log maps (0, inf) to the real line.
type Log struct{}

func (Log) Forward(x []float64) []float64 {
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = math.Log(v)
	}
	return y
}

func (Log) Backward(y []float64) ([]float64, float64) {
	x := make([]float64, len(y))
	lj := 0.0
	for i, v := range y {
		x[i] = math.Exp(v)
		lj += v
	}
	return x, lj
}

// Interval maps (Lo, Hi) to the real line with the log-odds transform.
type Interval struct {
	Lo, Hi float64
}

func (t Interval) Forward(x []float64) []float64 {
	y := make([]float64, len(x))
	for i, v := range x {
		u := (v - t.Lo) / (t.Hi - t.Lo)
		y[i] = math.Log(u) - math.Log1p(-u)
	}
	return y
}

func (t Interval) Backward(y []float64) ([]float64, float64) {
	x := make([]float64, len(y))
	width := t.Hi - t.Lo
	lj := 0.0
	for i, v := range y {
		x[i] = t.Lo + width*logistic(v)
		// log(width * s * (1-s)) = log(width) - softplus(-v) - softplus(v)
		lj += math.Log(width) - softplus(-v) - softplus(v)
	}
	return x, lj
}

// Ordered forces a vector to be strictly increasing. The first unconstrained
// component is the first value, every later one is the log of the gap to
// its predecessor. Base is then applied elementwise; it must be monotone
// increasing so that order survives.
type Ordered struct {
	Base Transform
}

func (t Ordered) base() Transform {
	if t.Base == nil {
		return Identity{}
	}
	return t.Base
}

func (t Ordered) Forward(x []float64) []float64 {
	z := t.base().Forward(x)
	y := make([]float64, len(z))
	for i := range z {
		if i == 0 {
			y[i] = z[0]
			continue
		}
		y[i] = math.Log(z[i] - z[i-1])
	}
	return y
}

func (t Ordered) Backward(y []float64) ([]float64, float64) {
	z := make([]float64, len(y))
	lj := 0.0
	for i, v := range y {
		if i == 0 {
			z[0] = v
			continue
		}
		z[i] = z[i-1] + math.Exp(v)
		lj += v
	}
	x, blj := t.base().Backward(z)
	return x, lj + blj
}

func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softplus returns log(1 + exp(x)) without overflow.
func softplus(x float64) float64 {
	if x > 30 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
