package model

import (
	"errors"
	"fmt"

	"github.com/Markfds01/shine-switchpoints/internal/prior"
	"github.com/Markfds01/shine-switchpoints/internal/switchrate"
)

var (
	// ErrConfiguration covers every invalid model request: mismatched series,
	// bad switchpoint counts, out-of-range manual parameters.
	ErrConfiguration = errors.New("invalid model configuration")
	// ErrUnsupportedVariant is returned for variant names or outcome
	// combinations that have no model.
	ErrUnsupportedVariant = errors.New("unsupported model variant")
)

// Outcome is the downstream series being modelled.
type Outcome int

const (
	Admissions Outcome = iota
	Deaths
)

func (o Outcome) String() string {
	if o == Deaths {
		return "deaths"
	}
	return "admissions"
}

// Likelihood kinds
type Likelihood int

const (
	NegativeBinomial Likelihood = iota
	Binomial
)

// RateKind selects a single conversion probability or a switch-driven series.
type RateKind int

const (
	FixedRate RateKind = iota
	SwitchRate
)

// SwitchpointKind selects literal switchpoints or sampled ones.
type SwitchpointKind int

const (
	FixedSwitchpoints SwitchpointKind = iota
	EstimatedSwitchpoints
)

// Scaling applied to the blended switch rate before it multiplies cases.
type Scaling int

const (
	NoScaling Scaling = iota
	DivideBy100
)

// RatePrior selects the prior on regime rates.
type RatePrior int

const (
	// OrderedGamma is Gamma(7.5, 1) under the ordering transform.
	OrderedGamma RatePrior = iota
	// UniformUnit is an unordered Uniform(0, 1) per regime.
	UniformUnit
)

// Defaults taken over from the hospital admission fits. They are tuning
// values, not derived quantities.
var (
	// DefaultFixedSwitchpoints are the wave boundaries used when switchpoints are not sampled.
	DefaultFixedSwitchpoints = []float64{164, 257, 354, 469}
)

const (
	// RateScale is the divisor applied under DivideBy100.
	RateScale = 100.0

	rateAlpha = 7.5
	rateBeta  = 1.0
)

// Priors shared by every variant.
var (
	ProbabilityPrior = prior.Uniform{Min: 0, Max: 1}
	DelayRatePrior   = prior.Uniform{Min: 0.1, Max: 20}
	SigmaPrior       = prior.Uniform{Min: 1, Max: 100}
)

// Config is one point in the variant space.
type Config struct {
	Name         string
	Outcome      Outcome
	Likelihood   Likelihood
	Rate         RateKind
	Switchpoints SwitchpointKind
	Scaling      Scaling
	RatePrior    RatePrior
	Layout       switchrate.Layout

	// Requested number of switchpoints. Ignored when Switchpoints is
	// FixedSwitchpoints: the literal list decides K.
	NSwitchpoints int
	// Literal switchpoints, DefaultFixedSwitchpoints when nil
	FixedSwitchpoints []float64
	// Lower bound of the switchpoint prior; the upper bound is the series length
	SwitchpointLower float64

	// Initial guesses are spread evenly across these ranges
	SwitchpointInit [2]float64
	RateInit        [2]float64

	// DelayRate > 0 fixes lambda (e.g. from an earlier simple fit);
	// 0 samples it from DelayRatePrior.
	DelayRate float64
}

// Param declares one named latent variable.
type Param struct {
	Name      string
	Size      int
	Prior     prior.Prior
	Transform prior.Transform
	// Constrained initial value
	Init []float64

	offset int
}

func (p Param) String() string {
	return fmt.Sprintf("%s[%d] ~ %v", p.Name, p.Size, p.Prior)
}

// Values maps a parameter name to its constrained value.
type Values map[string][]float64

// Names of the exposed variables.
const (
	SwitchpointName = "switchpoint"
	RateName        = "rate"
	SigmaName       = "sigma"
)

// ProbabilityName returns "pH" for admissions and "pD" for deaths.
func (o Outcome) ProbabilityName() string {
	if o == Deaths {
		return "pD"
	}
	return "pH"
}

// LambdaName returns the delay-rate variable name for the outcome.
func (o Outcome) LambdaName() string {
	return o.String() + "_lambda"
}
