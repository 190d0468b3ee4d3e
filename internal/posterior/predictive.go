package posterior

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/Markfds01/shine-switchpoints/internal/model"
)

// BandLevels are the quantiles drawn in the fan charts.
var BandLevels = []float64{0.025, 0.25, 0.5, 0.75, 0.975}

// Bands holds per-time-point quantiles of a set of series, one slice per
// entry of Levels.
type Bands struct {
	Levels    []float64
	Quantiles [][]float64
}

// Level returns the band for probability p, or nil when p is not a level.
func (b Bands) Level(p float64) []float64 {
	for i, l := range b.Levels {
		if l == p {
			return b.Quantiles[i]
		}
	}
	return nil
}

// SamplePredictive draws one posterior-predictive series per kept draw,
// taking every thin-th draw of each chain (thin < 1 means every draw).
func SamplePredictive(ctx context.Context, m *model.Model, p *Posterior, src rand.Source, thin int) ([][]float64, error) {
	if thin < 1 {
		thin = 1
	}
	var out [][]float64
	err := p.Each(func(chain, draw int, v model.Values) error {
		if draw%thin != 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		y, err := m.Predict(v, src)
		if err != nil {
			return fmt.Errorf("chain %d draw %d: %w", chain, draw, err)
		}
		out = append(out, y)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpectedSeries evaluates the model mean for every draw, taking every
// thin-th draw of each chain.
func ExpectedSeries(m *model.Model, p *Posterior, thin int) ([][]float64, error) {
	if thin < 1 {
		thin = 1
	}
	var out [][]float64
	err := p.Each(func(chain, draw int, v model.Values) error {
		if draw%thin != 0 {
			return nil
		}
		mu, err := m.Expected(v)
		if err != nil {
			return err
		}
		out = append(out, mu)
		return nil
	})
	return out, err
}

// PredictiveBands computes BandLevels quantiles at every time point of series.
func PredictiveBands(series [][]float64) (Bands, error) {
	if len(series) == 0 {
		return Bands{}, fmt.Errorf("no series to summarise")
	}
	T := len(series[0])
	b := Bands{
		Levels:    append([]float64(nil), BandLevels...),
		Quantiles: make([][]float64, len(BandLevels)),
	}
	for i := range b.Quantiles {
		b.Quantiles[i] = make([]float64, T)
	}

	col := make([]float64, len(series))
	for t := 0; t < T; t++ {
		for s, y := range series {
			if len(y) != T {
				return Bands{}, fmt.Errorf("series %d has length %d, want %d", s, len(y), T)
			}
			col[s] = y[t]
		}
		sort.Float64s(col)
		for i, p := range b.Levels {
			b.Quantiles[i][t] = stat.Quantile(p, stat.Empirical, col, nil)
		}
	}
	return b, nil
}
