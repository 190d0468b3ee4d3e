package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// negBinomialLogProb is the log pmf of y under the mean/dispersion
// parameterisation: variance mu + mu^2/alpha.
func negBinomialLogProb(y, mu, alpha float64) float64 {
	if mu < 0 || alpha <= 0 {
		return math.Inf(-1)
	}
	if mu == 0 {
		if y == 0 {
			return 0
		}
		return math.Inf(-1)
	}
	lgya, _ := math.Lgamma(y + alpha)
	lga, _ := math.Lgamma(alpha)
	lgy1, _ := math.Lgamma(y + 1)
	lp := lgya - lga - lgy1 + alpha*(math.Log(alpha)-math.Log(mu+alpha))
	if y > 0 {
		lp += y * (math.Log(mu) - math.Log(mu+alpha))
	}
	return lp
}

// binomialLogProb is the log pmf of y successes out of n with probability p.
func binomialLogProb(y, n, p float64) float64 {
	switch {
	case p <= 0:
		if y == 0 {
			return 0
		}
		return math.Inf(-1)
	case p >= 1:
		if y == n {
			return 0
		}
		return math.Inf(-1)
	}
	return distuv.Binomial{N: math.Round(n), P: p}.LogProb(math.Round(y))
}

// negBinomialRand draws from the negative binomial as a Gamma mixture of Poissons.
func negBinomialRand(mu, alpha float64, src rand.Source) float64 {
	if mu <= 0 {
		return 0
	}
	g := distuv.Gamma{Alpha: alpha, Beta: alpha / mu, Src: src}
	lam := g.Rand()
	if lam <= 0 {
		return 0
	}
	po := distuv.Poisson{Lambda: lam, Src: src}
	return po.Rand()
}

// Predict draws one posterior-predictive series for the observed variable.
func (m *Model) Predict(v Values, src rand.Source) ([]float64, error) {
	out := make([]float64, len(m.cases))
	switch m.cfg.Likelihood {
	case Binomial:
		p, err := m.RateSeries(v)
		if err != nil {
			return nil, err
		}
		for i := range out {
			n := math.Round(m.cases[i])
			switch {
			case n == 0 || p[i] <= 0:
				out[i] = 0
			case p[i] >= 1:
				out[i] = n
			default:
				out[i] = distuv.Binomial{N: n, P: p[i], Src: src}.Rand()
			}
		}
	default:
		mu, err := m.Expected(v)
		if err != nil {
			return nil, err
		}
		alpha, err := scalar(v, SigmaName)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = negBinomialRand(mu[i], alpha, src)
		}
	}
	return out, nil
}

// linspace returns n evenly spaced values from lo to hi; a single value is lo.
func linspace(lo, hi float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// spreadInside spreads n initial guesses across r. When a guess falls
// outside (lo, hi) the whole vector is replaced by an even spread strictly
// inside the support.
func spreadInside(r [2]float64, n int, lo, hi float64) []float64 {
	x := linspace(r[0], r[1], n)
	for _, v := range x {
		if v > lo && v < hi {
			continue
		}
		for i := range x {
			if math.IsInf(hi, 1) {
				x[i] = lo + float64(i+1)
				continue
			}
			x[i] = lo + (hi-lo)*float64(i+1)/float64(n+1)
		}
		break
	}
	return x
}

// increasing nudges ties upward so that an ordered transform can represent x.
func increasing(x []float64) []float64 {
	for i := 1; i < len(x); i++ {
		if x[i] <= x[i-1] {
			x[i] = x[i-1] + 1e-3*math.Max(1, math.Abs(x[i-1]))
		}
	}
	return x
}
