package model

import (
	"fmt"
	"sort"
)

// Variant names accepted by Preset.
const (
	VariantDaily              = "daily"
	VariantDailySwitchpoints  = "daily-switchpoints"
	VariantWeeklySwitchpoints = "weekly-switchpoints"
	VariantDeaths             = "deaths"
	VariantDeathsSwitchpoints = "deaths-switchpoints"
)

// Preset returns the configuration of a named variant.
//
// estimate only matters for daily-switchpoints: when false the literal
// DefaultFixedSwitchpoints are used and nSwitchpoints is ignored.
func Preset(name string, nSwitchpoints int, estimate bool) (Config, error) {
	switch name {
	case VariantDaily:
		return Config{
			Name:       name,
			Outcome:    Admissions,
			Likelihood: NegativeBinomial,
			Rate:       FixedRate,
		}, nil

	case VariantDeaths:
		return Config{
			Name:       name,
			Outcome:    Deaths,
			Likelihood: NegativeBinomial,
			Rate:       FixedRate,
		}, nil

	case VariantDailySwitchpoints:
		cfg := Config{
			Name:             name,
			Outcome:          Admissions,
			Likelihood:       NegativeBinomial,
			Rate:             SwitchRate,
			Switchpoints:     FixedSwitchpoints,
			Scaling:          DivideBy100,
			RatePrior:        OrderedGamma,
			NSwitchpoints:    nSwitchpoints,
			SwitchpointLower: 30,
			SwitchpointInit:  [2]float64{100, 500},
			RateInit:         [2]float64{3, 10},
		}
		if estimate {
			cfg.Switchpoints = EstimatedSwitchpoints
		}
		return cfg, nil

	case VariantDeathsSwitchpoints:
		return Config{
			Name:             name,
			Outcome:          Deaths,
			Likelihood:       NegativeBinomial,
			Rate:             SwitchRate,
			Switchpoints:     EstimatedSwitchpoints,
			Scaling:          DivideBy100,
			RatePrior:        OrderedGamma,
			NSwitchpoints:    nSwitchpoints,
			SwitchpointLower: 0,
			SwitchpointInit:  [2]float64{350, 550},
			RateInit:         [2]float64{3, 10},
		}, nil

	case VariantWeeklySwitchpoints:
		return Config{
			Name:             name,
			Outcome:          Admissions,
			Likelihood:       Binomial,
			Rate:             SwitchRate,
			Switchpoints:     EstimatedSwitchpoints,
			Scaling:          NoScaling,
			RatePrior:        UniformUnit,
			NSwitchpoints:    nSwitchpoints,
			SwitchpointLower: 0,
			SwitchpointInit:  [2]float64{50, 100},
			RateInit:         [2]float64{0.5, 0.5},
		}, nil
	}
	return Config{}, fmt.Errorf("%w: %q (known: %v)", ErrUnsupportedVariant, name, Variants())
}

// Variants lists the preset names.
func Variants() []string {
	v := []string{
		VariantDaily,
		VariantDailySwitchpoints,
		VariantWeeklySwitchpoints,
		VariantDeaths,
		VariantDeathsSwitchpoints,
	}
	sort.Strings(v)
	return v
}

// NewNamed builds the named variant against cases and observed.
func NewNamed(name string, nSwitchpoints int, estimate bool, cases, observed []float64) (*Model, error) {
	cfg, err := Preset(name, nSwitchpoints, estimate)
	if err != nil {
		return nil, err
	}
	return New(cfg, cases, observed)
}
