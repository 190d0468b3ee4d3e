package model

import (
	"fmt"
	"math"

	"github.com/Markfds01/shine-switchpoints/internal/delay"
	"github.com/Markfds01/shine-switchpoints/internal/prior"
	"github.com/Markfds01/shine-switchpoints/internal/switchrate"
)

// Model is a declared but unfitted log-density over the named parameters,
// bound to one cases/outcome pair. Nothing in it changes after New returns,
// so one Model may be evaluated from several chains at once.
type Model struct {
	cfg      Config
	cases    []float64
	observed []float64
	points   []float64

	dm     *delay.DelayMatrix
	kernel *delay.Kernel // nil when lambda is sampled

	fixedSwitchpoints []float64
	nSwitchpoints     int

	params []Param
	dim    int
}

// New validates cfg against the series and declares the parameters.
func New(cfg Config, cases, observed []float64) (*Model, error) {
	if err := validateSeries(cfg, cases, observed); err != nil {
		return nil, err
	}

	m := &Model{
		cfg:      cfg,
		cases:    append([]float64(nil), cases...),
		observed: append([]float64(nil), observed...),
		points:   switchrate.Points(len(cases)),
	}

	if cfg.Rate == SwitchRate {
		switch cfg.Switchpoints {
		case FixedSwitchpoints:
			sp := cfg.FixedSwitchpoints
			if sp == nil {
				sp = DefaultFixedSwitchpoints
			}
			if len(sp) < 1 {
				return nil, fmt.Errorf("%w: fixed switchpoint list is empty", ErrConfiguration)
			}
			for i := 1; i < len(sp); i++ {
				if sp[i] <= sp[i-1] {
					return nil, fmt.Errorf("%w: fixed switchpoints must be increasing, got %v", ErrConfiguration, sp)
				}
			}
			// the literal list wins over the requested count
			m.fixedSwitchpoints = append([]float64(nil), sp...)
			m.nSwitchpoints = len(sp)
		case EstimatedSwitchpoints:
			if cfg.NSwitchpoints < 1 {
				return nil, fmt.Errorf("%w: need at least 1 switchpoint to estimate, got %d", ErrConfiguration, cfg.NSwitchpoints)
			}
			if cfg.SwitchpointLower >= float64(len(cases)) {
				return nil, fmt.Errorf("%w: switchpoint lower bound %v not below series length %d",
					ErrConfiguration, cfg.SwitchpointLower, len(cases))
			}
			m.nSwitchpoints = cfg.NSwitchpoints
		}
	}

	if cfg.Likelihood == NegativeBinomial {
		dm, err := delay.BuildDelayMatrix(len(cases), len(cases), 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		m.dm = dm

		switch {
		case math.IsNaN(cfg.DelayRate) || cfg.DelayRate < 0:
			return nil, fmt.Errorf("%w: delay rate must be >= 0, got %v", ErrConfiguration, cfg.DelayRate)
		case cfg.DelayRate > 0:
			k, err := delay.NewKernel(cfg.DelayRate, dm)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
			}
			m.kernel = k
		}
	}

	m.declare()
	return m, nil
}

func validateSeries(cfg Config, cases, observed []float64) error {
	if len(cases) == 0 {
		return fmt.Errorf("%w: empty cases series", ErrConfiguration)
	}
	if len(cases) != len(observed) {
		return fmt.Errorf("%w: cases has %d points, observed %s has %d",
			ErrConfiguration, len(cases), cfg.Outcome, len(observed))
	}
	for i := range cases {
		if math.IsNaN(cases[i]) || cases[i] < 0 {
			return fmt.Errorf("%w: cases[%d] = %v is not a non-negative number", ErrConfiguration, i, cases[i])
		}
		if math.IsNaN(observed[i]) || observed[i] < 0 {
			return fmt.Errorf("%w: %s[%d] = %v is not a non-negative number", ErrConfiguration, cfg.Outcome, i, observed[i])
		}
		if cfg.Likelihood == Binomial && observed[i] > cases[i] {
			return fmt.Errorf("%w: %s[%d] = %v exceeds cases %v", ErrConfiguration, cfg.Outcome, i, observed[i], cases[i])
		}
	}
	return nil
}

// declare lays out the parameter vector in declaration order.
func (m *Model) declare() {
	n := float64(len(m.cases))
	var params []Param

	if m.cfg.Rate == FixedRate {
		params = append(params, Param{
			Name:      m.cfg.Outcome.ProbabilityName(),
			Size:      1,
			Prior:     ProbabilityPrior,
			Transform: prior.DefaultTransform(ProbabilityPrior),
			Init:      []float64{0.5},
		})
	} else {
		K := m.nSwitchpoints
		if m.cfg.Switchpoints == EstimatedSwitchpoints {
			sp := prior.Uniform{Min: m.cfg.SwitchpointLower, Max: n}
			params = append(params, Param{
				Name:      SwitchpointName,
				Size:      K,
				Prior:     sp,
				Transform: prior.Ordered{Base: prior.DefaultTransform(sp)},
				Init:      spreadInside(m.cfg.SwitchpointInit, K, sp.Min, sp.Max),
			})
		}
		switch m.cfg.RatePrior {
		case UniformUnit:
			params = append(params, Param{
				Name:      RateName,
				Size:      K + 1,
				Prior:     ProbabilityPrior,
				Transform: prior.DefaultTransform(ProbabilityPrior),
				Init:      spreadInside(m.cfg.RateInit, K+1, 0, 1),
			})
		default:
			g := prior.Gamma{Alpha: rateAlpha, Beta: rateBeta}
			params = append(params, Param{
				Name:      RateName,
				Size:      K + 1,
				Prior:     g,
				Transform: prior.Ordered{Base: prior.DefaultTransform(g)},
				Init:      increasing(spreadInside(m.cfg.RateInit, K+1, 0, math.Inf(1))),
			})
		}
	}

	if m.cfg.Likelihood == NegativeBinomial {
		if m.kernel == nil {
			params = append(params, Param{
				Name:      m.cfg.Outcome.LambdaName(),
				Size:      1,
				Prior:     DelayRatePrior,
				Transform: prior.DefaultTransform(DelayRatePrior),
				Init:      []float64{midpoint(DelayRatePrior)},
			})
		}
		params = append(params, Param{
			Name:      SigmaName,
			Size:      1,
			Prior:     SigmaPrior,
			Transform: prior.DefaultTransform(SigmaPrior),
			Init:      []float64{midpoint(SigmaPrior)},
		})
	}

	off := 0
	for i := range params {
		params[i].offset = off
		off += params[i].Size
	}
	m.params = params
	m.dim = off
}

// Config returns the configuration the model was built from.
func (m *Model) Config() Config { return m.cfg }

// Len returns the series length.
func (m *Model) Len() int { return len(m.cases) }

// Cases returns a copy of the input series.
func (m *Model) Cases() []float64 { return append([]float64(nil), m.cases...) }

// Observed returns a copy of the observed outcome series.
func (m *Model) Observed() []float64 { return append([]float64(nil), m.observed...) }

// ObservedName is the name of the observed variable, "admissions" or "deaths".
func (m *Model) ObservedName() string { return m.cfg.Outcome.String() }

// NSwitchpoints is the number of switchpoints actually used.
func (m *Model) NSwitchpoints() int { return m.nSwitchpoints }

// FixedSwitchpoints returns the literal switchpoints, nil when they are sampled.
func (m *Model) FixedSwitchpoints() []float64 {
	return append([]float64(nil), m.fixedSwitchpoints...)
}

// DelayRate returns the fixed lambda, 0 when it is sampled.
func (m *Model) DelayRate() float64 {
	if m.kernel == nil {
		return 0
	}
	return m.kernel.Lambda
}

// Params returns the declared parameters.
func (m *Model) Params() []Param {
	out := make([]Param, len(m.params))
	copy(out, m.params)
	return out
}

// Dim is the length of the unconstrained parameter vector.
func (m *Model) Dim() int { return m.dim }

// Constrain maps an unconstrained vector to named parameter values.
func (m *Model) Constrain(theta []float64) Values {
	v, _ := m.constrain(theta)
	return v
}

func (m *Model) constrain(theta []float64) (Values, float64) {
	v := make(Values, len(m.params))
	lj := 0.0
	for _, p := range m.params {
		x, j := p.Transform.Backward(theta[p.offset : p.offset+p.Size])
		v[p.Name] = x
		lj += j
	}
	return v, lj
}

// Unconstrain maps named values back to an unconstrained vector.
func (m *Model) Unconstrain(v Values) ([]float64, error) {
	theta := make([]float64, m.dim)
	for _, p := range m.params {
		x, ok := v[p.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing value for %s", ErrConfiguration, p.Name)
		}
		if len(x) != p.Size {
			return nil, fmt.Errorf("%w: %s needs %d values, got %d", ErrConfiguration, p.Name, p.Size, len(x))
		}
		lo, hi := p.Prior.Support()
		for i, xi := range x {
			if xi <= lo || xi >= hi {
				return nil, fmt.Errorf("%w: %s[%d] = %v outside (%v, %v)", ErrConfiguration, p.Name, i, xi, lo, hi)
			}
			if i > 0 && isOrdered(p.Transform) && xi <= x[i-1] {
				return nil, fmt.Errorf("%w: %s must be increasing, got %v", ErrConfiguration, p.Name, x)
			}
		}
		copy(theta[p.offset:], p.Transform.Forward(x))
	}
	return theta, nil
}

// InitialPoint returns the unconstrained starting point. Entries in
// overrides replace the declared initial values of the same name; nil
// entries are ignored.
func (m *Model) InitialPoint(overrides Values) ([]float64, error) {
	v := make(Values, len(m.params))
	for _, p := range m.params {
		v[p.Name] = p.Init
		if o, ok := overrides[p.Name]; ok && o != nil {
			v[p.Name] = o
		}
	}
	return m.Unconstrain(v)
}

// LogDensity returns the joint log density of priors and likelihood at the
// unconstrained point theta, Jacobian included. Invalid points give -Inf.
func (m *Model) LogDensity(theta []float64) float64 {
	if len(theta) != m.dim {
		return math.Inf(-1)
	}
	v, lj := m.constrain(theta)

	lp := lj
	for _, p := range m.params {
		lp += prior.LogProbSum(p.Prior, v[p.Name])
		if math.IsInf(lp, -1) || math.IsNaN(lp) {
			return math.Inf(-1)
		}
	}

	ll, err := m.LogLikelihood(v)
	if err != nil {
		return math.Inf(-1)
	}
	lp += ll
	if math.IsNaN(lp) {
		return math.Inf(-1)
	}
	return lp
}

// RateSeries returns the per-day conversion rate for the given values,
// after variant scaling.
func (m *Model) RateSeries(v Values) ([]float64, error) {
	n := len(m.cases)
	if m.cfg.Rate == FixedRate {
		p, err := scalar(v, m.cfg.Outcome.ProbabilityName())
		if err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = p
		}
		return out, nil
	}

	sp := m.fixedSwitchpoints
	if sp == nil {
		sp = v[SwitchpointName]
	}
	series, err := switchrate.BuildLayout(m.points, sp, v[RateName], m.cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if m.cfg.Scaling == DivideBy100 {
		switchrate.Scale(series, RateScale)
	}
	return series, nil
}

// Expected returns the mean of the observed series under v: the delayed
// converted cases for the negative binomial variants, cases times rate for
// the binomial one.
func (m *Model) Expected(v Values) ([]float64, error) {
	rate, err := m.RateSeries(v)
	if err != nil {
		return nil, err
	}
	latent := make([]float64, len(rate))
	for i := range rate {
		latent[i] = rate[i] * m.cases[i]
	}
	if m.cfg.Likelihood == Binomial {
		return latent, nil
	}

	k := m.kernel
	if k == nil {
		lambda, err := scalar(v, m.cfg.Outcome.LambdaName())
		if err != nil {
			return nil, err
		}
		if k, err = delay.NewKernel(lambda, m.dm); err != nil {
			return nil, err
		}
	}
	return k.Apply(latent)
}

// LogLikelihood evaluates the observation model at v.
func (m *Model) LogLikelihood(v Values) (float64, error) {
	switch m.cfg.Likelihood {
	case Binomial:
		p, err := m.RateSeries(v)
		if err != nil {
			return 0, err
		}
		ll := 0.0
		for i, y := range m.observed {
			ll += binomialLogProb(y, m.cases[i], p[i])
		}
		return ll, nil
	default:
		mu, err := m.Expected(v)
		if err != nil {
			return 0, err
		}
		alpha, err := scalar(v, SigmaName)
		if err != nil {
			return 0, err
		}
		ll := 0.0
		for i, y := range m.observed {
			ll += negBinomialLogProb(y, mu[i], alpha)
		}
		return ll, nil
	}
}

func scalar(v Values, name string) (float64, error) {
	x, ok := v[name]
	if !ok || len(x) != 1 {
		return 0, fmt.Errorf("%w: %s must hold exactly one value", ErrConfiguration, name)
	}
	return x[0], nil
}

func isOrdered(t prior.Transform) bool {
	_, ok := t.(prior.Ordered)
	return ok
}

func midpoint(p prior.Prior) float64 {
	lo, hi := p.Support()
	return (lo + hi) / 2
}
