package sampler

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/stat"
)

// gaussian is an independent normal target with the given means and scales.
type gaussian struct {
	mean, sd []float64
}

func (g gaussian) Dim() int { return len(g.mean) }

func (g gaussian) LogDensity(x []float64) float64 {
	lp := 0.0
	for i := range x {
		z := (x[i] - g.mean[i]) / g.sd[i]
		lp -= 0.5 * z * z
	}
	return lp
}

// halfLine has log density zero on x>0 and -Inf elsewhere, scaled by an
// exponential tail so it is proper.
type halfLine struct{}

func (halfLine) Dim() int { return 1 }

func (halfLine) LogDensity(x []float64) float64 {
	if x[0] <= 0 {
		return math.Inf(-1)
	}
	return -x[0]
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func smallOptions() Options {
	opts := DefaultOptions()
	opts.Draws = 1500
	opts.Tune = 500
	opts.Chains = 2
	opts.TargetAccept = 0.8
	opts.Seed = 42
	return opts
}

func column(tr *Trace, i int) []float64 {
	var out []float64
	for _, c := range tr.Chains {
		for _, d := range c.Draws {
			out = append(out, d[i])
		}
	}
	return out
}

func TestRun_RecoversGaussianMoments(t *testing.T) {
	target := gaussian{mean: []float64{1, -2}, sd: []float64{1, 3}}
	tr, err := Run(context.Background(), target, []float64{0, 0}, smallOptions())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(tr.Chains) != 2 || tr.NumDraws() != 1500 {
		t.Fatalf("unexpected trace shape: %d chains x %d draws", len(tr.Chains), tr.NumDraws())
	}

	for i := range target.mean {
		x := column(tr, i)
		mean, sd := stat.MeanStdDev(x, nil)
		if !almostEqual(mean, target.mean[i], 0.25*target.sd[i]) {
			t.Errorf("dim %d: mean = %.3f, want %.3f", i, mean, target.mean[i])
		}
		if !almostEqual(sd, target.sd[i], 0.25*target.sd[i]) {
			t.Errorf("dim %d: sd = %.3f, want %.3f", i, sd, target.sd[i])
		}
	}
}

func TestRun_AdaptsMassToScale(t *testing.T) {
	target := gaussian{mean: []float64{0, 0}, sd: []float64{0.1, 10}}
	tr, err := Run(context.Background(), target, []float64{0, 0}, smallOptions())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, c := range tr.Chains {
		if c.InvMass[1] <= c.InvMass[0] {
			t.Errorf("inverse mass %v does not reflect the wider dimension", c.InvMass)
		}
		if c.AcceptRate < 0.5 {
			t.Errorf("accept rate %.2f after adaptation", c.AcceptRate)
		}
	}
}

func TestRun_SameSeedSameDraws(t *testing.T) {
	target := gaussian{mean: []float64{0}, sd: []float64{1}}
	opts := smallOptions()
	opts.Draws, opts.Tune = 50, 50

	a, err := Run(context.Background(), target, []float64{0}, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(context.Background(), target, []float64{0}, opts)
	if err != nil {
		t.Fatal(err)
	}
	for c := range a.Chains {
		for d := range a.Chains[c].Draws {
			if a.Chains[c].Draws[d][0] != b.Chains[c].Draws[d][0] {
				t.Fatalf("chain %d draw %d differs between identical runs", c, d)
			}
		}
	}
	if a.Chains[0].Draws[0][0] == a.Chains[1].Draws[0][0] {
		t.Errorf("chains share a random stream")
	}
}

func TestRun_StaysInSupport(t *testing.T) {
	opts := smallOptions()
	opts.Draws, opts.Tune = 300, 200
	tr, err := Run(context.Background(), halfLine{}, []float64{1}, opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, x := range column(tr, 0) {
		if x <= 0 {
			t.Fatalf("draw %v outside the support", x)
		}
	}
}

func TestRun_InvalidOptions(t *testing.T) {
	target := gaussian{mean: []float64{0}, sd: []float64{1}}
	cases := map[string]func(*Options){
		"no draws":      func(o *Options) { o.Draws = 0 },
		"no chains":     func(o *Options) { o.Chains = 0 },
		"negative tune": func(o *Options) { o.Tune = -1 },
		"accept of one": func(o *Options) { o.TargetAccept = 1 },
	}
	for name, mutate := range cases {
		opts := smallOptions()
		mutate(&opts)
		if _, err := Run(context.Background(), target, []float64{0}, opts); !errors.Is(err, ErrOptions) {
			t.Errorf("%s: expected ErrOptions, got %v", name, err)
		}
	}

	if _, err := Run(context.Background(), target, []float64{0, 0}, smallOptions()); !errors.Is(err, ErrOptions) {
		t.Errorf("wrong init length: expected ErrOptions, got %v", err)
	}
	if _, err := Run(context.Background(), halfLine{}, []float64{-1}, smallOptions()); !errors.Is(err, ErrOptions) {
		t.Errorf("init outside support: expected ErrOptions, got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := gaussian{mean: []float64{0}, sd: []float64{1}}
	_, err := Run(ctx, target, []float64{0}, smallOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := smallOptions()
	opts.Draws, opts.Tune = 40, 30
	opts.Metrics = NewMetrics(reg)
	opts.Label = "gauss"

	target := gaussian{mean: []float64{0}, sd: []float64{1}}
	if _, err := Run(context.Background(), target, []float64{0}, opts); err != nil {
		t.Fatal(err)
	}

	m := opts.Metrics
	if got := testutil.ToFloat64(m.draws.WithLabelValues("gauss", "sample")); got != 80 {
		t.Errorf("sample transitions = %v, want 80", got)
	}
	if got := testutil.ToFloat64(m.draws.WithLabelValues("gauss", "tune")); got != 60 {
		t.Errorf("tune transitions = %v, want 60", got)
	}
	acc := testutil.ToFloat64(m.acceptRate.WithLabelValues("gauss", "0"))
	if acc <= 0 || acc > 1 {
		t.Errorf("accept rate gauge = %v", acc)
	}
}

func TestFindMAP(t *testing.T) {
	target := gaussian{mean: []float64{2, -1}, sd: []float64{1, 0.5}}
	x, err := FindMAP(target, []float64{0, 0})
	if err != nil {
		t.Fatalf("find map: %v", err)
	}
	for i, want := range target.mean {
		if !almostEqual(x[i], want, 1e-3) {
			t.Errorf("mode[%d] = %.5f, want %.5f", i, x[i], want)
		}
	}
}

func TestDualAveraging_ShrinksStepWhenRejecting(t *testing.T) {
	da := newDualAveraging(1, 0.8)
	eps := 1.0
	for i := 0; i < 50; i++ {
		eps = da.update(0)
	}
	if eps >= 1 || da.final() >= 1 {
		t.Errorf("step size did not shrink: eps=%v final=%v", eps, da.final())
	}
}

func TestMassWindow(t *testing.T) {
	w := newMassWindow(1, 200)
	closed := false
	for it := 0; it < 200; it++ {
		x := []float64{float64(it % 2)}
		if w.add(it, x) {
			closed = true
		}
	}
	if !closed {
		t.Fatal("window never closed")
	}
	inv := w.invMass()
	if !almostEqual(inv[0], 0.25, 0.05) {
		t.Errorf("inverse mass = %v, want about 0.25", inv[0])
	}

	if short := newMassWindow(1, 10); short.add(5, []float64{0}) {
		t.Errorf("short tuning should not adapt the mass")
	}
}
