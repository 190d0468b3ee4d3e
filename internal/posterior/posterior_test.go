package posterior

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Markfds01/shine-switchpoints/internal/model"
	"github.com/Markfds01/shine-switchpoints/internal/sampler"
)

func weeklyModel(t *testing.T) *model.Model {
	t.Helper()
	cases := make([]float64, 20)
	observed := make([]float64, 20)
	for i := range cases {
		cases[i] = 100
		observed[i] = float64(10 + i)
	}
	m, err := model.NewNamed(model.VariantWeeklySwitchpoints, 2, true, cases, observed)
	require.NoError(t, err)
	return m
}

// knownTrace builds a 2-chain, 3-draw trace whose constrained switchpoints
// are [5+draw, 12+chain] and whose rates are always [0.1, 0.2, 0.3].
func knownTrace(t *testing.T, m *model.Model) *sampler.Trace {
	t.Helper()
	tr := &sampler.Trace{Chains: make([]sampler.ChainResult, 2)}
	for c := range tr.Chains {
		for d := 0; d < 3; d++ {
			theta, err := m.Unconstrain(model.Values{
				model.SwitchpointName: {float64(5 + d), float64(12 + c)},
				model.RateName:        {0.1, 0.2, 0.3},
			})
			require.NoError(t, err)
			tr.Chains[c].Draws = append(tr.Chains[c].Draws, theta)
		}
	}
	return tr
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestFromTrace_ConstrainsDraws(t *testing.T) {
	m := weeklyModel(t)
	p, err := FromTrace(m, knownTrace(t, m))
	require.NoError(t, err)

	assert.Equal(t, []string{model.SwitchpointName, model.RateName}, p.Names())
	assert.Equal(t, 2, p.Chains)
	assert.Equal(t, 3, p.Draws)

	sp, err := p.Variable(model.SwitchpointName)
	require.NoError(t, err)
	assert.Equal(t, 2, sp.Size())
	if diff := cmp.Diff([]float64{6, 13}, sp.Draws[1][1], approx); diff != "" {
		t.Errorf("chain 1 draw 1 mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, sp.Increasing())

	mean, err := p.Mean(model.SwitchpointName)
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{6, 12.5}, mean, approx); diff != "" {
		t.Errorf("mean mismatch (-want +got):\n%s", diff)
	}
}

func TestFromTrace_Errors(t *testing.T) {
	m := weeklyModel(t)

	_, err := FromTrace(m, &sampler.Trace{})
	assert.Error(t, err)

	tr := knownTrace(t, m)
	tr.Chains[1].Draws = tr.Chains[1].Draws[:2]
	_, err = FromTrace(m, tr)
	assert.Error(t, err)

	p, err := FromTrace(m, knownTrace(t, m))
	require.NoError(t, err)
	_, err = p.Variable("pH")
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestVariable_IncreasingDetectsViolation(t *testing.T) {
	v := &Variable{Name: "x", Draws: [][][]float64{{{1, 2}, {3, 3}}}}
	assert.False(t, v.Increasing())
}

func TestSummary(t *testing.T) {
	m := weeklyModel(t)
	p, err := FromTrace(m, knownTrace(t, m))
	require.NoError(t, err)

	rows := p.Summary()
	require.Len(t, rows, 5)

	first := rows[0]
	assert.Equal(t, model.SwitchpointName, first.Name)
	assert.Equal(t, 0, first.Component)
	assert.InDelta(t, 6, first.Mean, 1e-9)
	assert.InDelta(t, 5, first.Q025, 1e-9)
	assert.InDelta(t, 6, first.Q50, 1e-9)
	assert.InDelta(t, 7, first.Q975, 1e-9)
	// identical chains
	assert.InDelta(t, math.Sqrt(2.0/3.0), first.RHat, 1e-9)

	// chains disagree and have (almost) no spread of their own
	assert.Greater(t, rows[1].RHat, 10.0)

	for k, r := range rows[2:] {
		assert.Equal(t, model.RateName, r.Name)
		assert.InDelta(t, 0.1*float64(k+1), r.Mean, 1e-9)
		assert.InDelta(t, 0, r.SD, 1e-9)
	}

	constant := &Variable{Draws: [][][]float64{{{2}, {2}}, {{2}, {2}}}}
	assert.Equal(t, 1.0, rHat(constant, 0))
	single := &Variable{Draws: [][][]float64{{{2}, {3}}}}
	assert.True(t, math.IsNaN(rHat(single, 0)))
}

func TestPredictiveBands(t *testing.T) {
	series := [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}, {5, 50}}
	b, err := PredictiveBands(series)
	require.NoError(t, err)

	want := map[float64][]float64{
		0.025: {1, 10},
		0.5:   {3, 30},
		0.975: {5, 50},
	}
	for p, w := range want {
		if diff := cmp.Diff(w, b.Level(p)); diff != "" {
			t.Errorf("level %v mismatch (-want +got):\n%s", p, diff)
		}
	}
	assert.Nil(t, b.Level(0.9))

	_, err = PredictiveBands(nil)
	assert.Error(t, err)
	_, err = PredictiveBands([][]float64{{1, 2}, {1}})
	assert.Error(t, err)
}

func TestSamplePredictive(t *testing.T) {
	m := weeklyModel(t)
	p, err := FromTrace(m, knownTrace(t, m))
	require.NoError(t, err)

	series, err := SamplePredictive(context.Background(), m, p, rand.NewPCG(1, 2), 2)
	require.NoError(t, err)
	require.Len(t, series, 4)
	for _, y := range series {
		require.Len(t, y, m.Len())
		for _, v := range y {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = SamplePredictive(ctx, m, p, rand.NewPCG(1, 2), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpectedSeries(t *testing.T) {
	m := weeklyModel(t)
	p, err := FromTrace(m, knownTrace(t, m))
	require.NoError(t, err)

	mu, err := ExpectedSeries(m, p, 1)
	require.NoError(t, err)
	require.Len(t, mu, 6)
	// early weeks follow the last rate
	assert.InDelta(t, 30, mu[0][0], 0.01)
}
