// Package posterior holds constrained posterior draws and the summaries
// computed from them.
package posterior

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/Markfds01/shine-switchpoints/internal/model"
	"github.com/Markfds01/shine-switchpoints/internal/sampler"
)

// ErrUnknownVariable is returned when a variable name is not in the posterior.
var ErrUnknownVariable = errors.New("unknown posterior variable")

// Variable is one named latent, indexed [chain][draw][component].
type Variable struct {
	Name  string
	Draws [][][]float64
}

// Size is the number of components.
func (v *Variable) Size() int {
	if len(v.Draws) == 0 || len(v.Draws[0]) == 0 {
		return 0
	}
	return len(v.Draws[0][0])
}

// Flatten pools one component over all chains and draws.
func (v *Variable) Flatten(component int) []float64 {
	var out []float64
	for _, chain := range v.Draws {
		for _, d := range chain {
			out = append(out, d[component])
		}
	}
	return out
}

// Mean returns the posterior mean of each component.
func (v *Variable) Mean() []float64 {
	out := make([]float64, v.Size())
	for k := range out {
		out[k] = stat.Mean(v.Flatten(k), nil)
	}
	return out
}

// Quantiles returns, for each probability in ps, the empirical quantile of
// every component: out[i][k] is quantile ps[i] of component k.
func (v *Variable) Quantiles(ps []float64) [][]float64 {
	out := make([][]float64, len(ps))
	for i := range out {
		out[i] = make([]float64, v.Size())
	}
	for k := 0; k < v.Size(); k++ {
		x := v.Flatten(k)
		sort.Float64s(x)
		for i, p := range ps {
			out[i][k] = stat.Quantile(p, stat.Empirical, x, nil)
		}
	}
	return out
}

// Increasing reports whether every draw is strictly increasing across components.
func (v *Variable) Increasing() bool {
	for _, chain := range v.Draws {
		for _, d := range chain {
			for k := 1; k < len(d); k++ {
				if d[k] <= d[k-1] {
					return false
				}
			}
		}
	}
	return true
}

// Posterior is the set of variables from one model fit.
type Posterior struct {
	Model     string
	Chains    int
	Draws     int
	variables map[string]*Variable
	order     []string
}

// FromTrace maps every unconstrained draw in tr through the model's
// constraining transforms.
func FromTrace(m *model.Model, tr *sampler.Trace) (*Posterior, error) {
	if len(tr.Chains) == 0 {
		return nil, errors.New("empty trace")
	}
	p := &Posterior{
		Model:     m.Config().Name,
		Chains:    len(tr.Chains),
		Draws:     tr.NumDraws(),
		variables: make(map[string]*Variable),
	}
	for _, par := range m.Params() {
		p.order = append(p.order, par.Name)
		v := &Variable{Name: par.Name, Draws: make([][][]float64, len(tr.Chains))}
		for c := range v.Draws {
			v.Draws[c] = make([][]float64, 0, len(tr.Chains[c].Draws))
		}
		p.variables[par.Name] = v
	}

	for c, chain := range tr.Chains {
		if len(chain.Draws) != p.Draws {
			return nil, fmt.Errorf("chain %d has %d draws, chain 0 has %d", c, len(chain.Draws), p.Draws)
		}
		for _, theta := range chain.Draws {
			if len(theta) != m.Dim() {
				return nil, fmt.Errorf("chain %d: draw has %d values, model dimension is %d", c, len(theta), m.Dim())
			}
			for name, x := range m.Constrain(theta) {
				v := p.variables[name]
				v.Draws[c] = append(v.Draws[c], x)
			}
		}
	}
	return p, nil
}

// Names lists the variables in declaration order.
func (p *Posterior) Names() []string {
	return append([]string(nil), p.order...)
}

// Variable looks a variable up by name.
func (p *Posterior) Variable(name string) (*Variable, error) {
	v, ok := p.variables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	return v, nil
}

// Mean is shorthand for the posterior mean of the named variable.
func (p *Posterior) Mean(name string) ([]float64, error) {
	v, err := p.Variable(name)
	if err != nil {
		return nil, err
	}
	return v.Mean(), nil
}

// Each calls fn with the constrained values of every draw, chain by chain.
func (p *Posterior) Each(fn func(chain, draw int, v model.Values) error) error {
	for c := 0; c < p.Chains; c++ {
		for d := 0; d < p.Draws; d++ {
			vals := make(model.Values, len(p.order))
			for _, name := range p.order {
				vals[name] = p.variables[name].Draws[c][d]
			}
			if err := fn(c, d, vals); err != nil {
				return err
			}
		}
	}
	return nil
}

// Row summarises one component of one variable.
type Row struct {
	Name      string  `yaml:"name"`
	Component int     `yaml:"component"`
	Mean      float64 `yaml:"mean"`
	SD        float64 `yaml:"sd"`
	Q025      float64 `yaml:"q2.5"`
	Q50       float64 `yaml:"q50"`
	Q975      float64 `yaml:"q97.5"`
	RHat      float64 `yaml:"r_hat"`
}

// Summary returns one row per scalar component, in declaration order.
func (p *Posterior) Summary() []Row {
	var rows []Row
	for _, name := range p.order {
		v := p.variables[name]
		qs := v.Quantiles([]float64{0.025, 0.5, 0.975})
		for k := 0; k < v.Size(); k++ {
			mean, sd := stat.MeanStdDev(v.Flatten(k), nil)
			rows = append(rows, Row{
				Name:      name,
				Component: k,
				Mean:      mean,
				SD:        sd,
				Q025:      qs[0][k],
				Q50:       qs[1][k],
				Q975:      qs[2][k],
				RHat:      rHat(v, k),
			})
		}
	}
	return rows
}

// rHat is the Gelman-Rubin potential scale reduction of one component.
// NaN with a single chain or a single draw.
func rHat(v *Variable, k int) float64 {
	m := len(v.Draws)
	if m < 2 || len(v.Draws[0]) < 2 {
		return math.NaN()
	}
	n := float64(len(v.Draws[0]))

	means := make([]float64, m)
	w := 0.0
	for c, chain := range v.Draws {
		x := make([]float64, len(chain))
		for d, draw := range chain {
			x[d] = draw[k]
		}
		mean, variance := stat.MeanVariance(x, nil)
		means[c] = mean
		w += variance
	}
	w /= float64(m)
	b := n * stat.Variance(means, nil)

	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}
	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}
