// Package pipeline runs the fitting workflow: train the simple delay model
// to learn the outcome probability and the delay rate, then fit the
// switchpoint model with that delay rate, for a region or for each of its
// age groups.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/Markfds01/shine-switchpoints/internal/config"
	"github.com/Markfds01/shine-switchpoints/internal/dataset"
	"github.com/Markfds01/shine-switchpoints/internal/model"
	"github.com/Markfds01/shine-switchpoints/internal/posterior"
	"github.com/Markfds01/shine-switchpoints/internal/results"
	"github.com/Markfds01/shine-switchpoints/internal/sampler"
	"github.com/Markfds01/shine-switchpoints/internal/switchrate"
)

// Sink stores posterior summaries outside the output directory.
type Sink interface {
	Store(ctx context.Context, run results.Run, rows []posterior.Row) error
}

// Runner fits models against data from Loader.
type Runner struct {
	Loader dataset.Loader
	// Writer and Sink are optional
	Writer *results.Writer
	Sink   Sink
	Logger logr.Logger

	// Base sampler settings; zero Draws, Tune and TargetAccept take the
	// variant defaults.
	Sampler sampler.Options
	Init    string
	Layout  switchrate.Layout
	Plot    bool
	// Upper bound on posterior-predictive series per fit
	MaxPredictive int
}

// Request describes one fit.
type Request struct {
	Region string
	// Zero dates take the variant defaults
	Start, End           time.Time
	Weekly               bool
	Deaths               bool
	NSwitchpoints        int
	EstimateSwitchpoints bool
	// Fixed delay rate for switchpoint fits; 0 samples it
	DelayRate float64
}

// Fit is one fitted model and its outputs.
type Fit struct {
	Run       results.Run
	Model     *model.Model
	Trace     *sampler.Trace
	Posterior *posterior.Posterior
	Series    *dataset.Series
	Bands     posterior.Bands
}

// Training is the outcome of the simple model: the posterior means the
// switchpoint stage is seeded with.
type Training struct {
	Probability float64
	DelayRate   float64
	Fit         *Fit
}

// Result is the outcome of one age group.
type Result struct {
	Group    string
	Training *Training
	Fit      *Fit
	Err      error
}

func (r *Runner) log() logr.Logger {
	if r.Logger.GetSink() == nil {
		return logr.Discard()
	}
	return r.Logger
}

// Train fits the simple model (pH or pD with a sampled delay rate) and
// returns the posterior means of the probability and the delay rate.
func (r *Runner) Train(ctx context.Context, req Request) (*Training, error) {
	variant := TrainingVariant(req.Deaths)
	s, err := r.load(ctx, variant, req)
	if err != nil {
		return nil, err
	}
	return r.train(ctx, variant, req, s, "")
}

func (r *Runner) train(ctx context.Context, variant string, req Request, s *dataset.Series, group string) (*Training, error) {
	req.DelayRate = 0
	fit, err := r.fit(ctx, variant, req, s, group)
	if err != nil {
		return nil, err
	}
	outcome := fit.Model.Config().Outcome
	prob, err := fit.Posterior.Mean(outcome.ProbabilityName())
	if err != nil {
		return nil, err
	}
	lambda, err := fit.Posterior.Mean(outcome.LambdaName())
	if err != nil {
		return nil, err
	}
	r.log().Info("Trained delay model", "run", fit.Run.Stem, outcome.ProbabilityName(), prob[0], outcome.LambdaName(), lambda[0])
	return &Training{Probability: prob[0], DelayRate: lambda[0], Fit: fit}, nil
}

// EstimateSwitchpoints fits the switchpoint model selected by req.Weekly
// and req.Deaths.
func (r *Runner) EstimateSwitchpoints(ctx context.Context, req Request) (*Fit, error) {
	variant := SwitchpointVariant(req.Weekly, req.Deaths)
	s, err := r.load(ctx, variant, req)
	if err != nil {
		return nil, err
	}
	return r.fit(ctx, variant, req, s, "")
}

// TrainAges trains the simple model on every age group. A failing group is
// recorded in its Result and the others still run; the returned error joins
// every failure.
func (r *Runner) TrainAges(ctx context.Context, req Request) ([]Result, error) {
	variant := TrainingVariant(req.Deaths)
	groups, err := r.loadAges(ctx, variant, req)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(groups))
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		tr, err := r.train(ctx, variant, req, &g.Series, g.Group)
		if err != nil {
			r.log().Error(err, "Age group failed", "group", g.Group)
		}
		out = append(out, Result{Group: g.Group, Training: tr, Err: err})
	}
	return out, joinResults(out)
}

// EstimateSwitchpointsAges fits the switchpoint model on every age group,
// fixing each group's delay rate from delayRates. Groups missing from
// delayRates use req.DelayRate.
func (r *Runner) EstimateSwitchpointsAges(ctx context.Context, req Request, delayRates map[string]float64) ([]Result, error) {
	variant := SwitchpointVariant(req.Weekly, req.Deaths)
	groups, err := r.loadAges(ctx, variant, req)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(groups))
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		greq := req
		if rate, ok := delayRates[g.Group]; ok {
			greq.DelayRate = rate
		}
		fit, err := r.fit(ctx, variant, greq, &g.Series, g.Group)
		if err != nil {
			r.log().Error(err, "Age group failed", "group", g.Group)
		}
		out = append(out, Result{Group: g.Group, Fit: fit, Err: err})
	}
	return out, joinResults(out)
}

func joinResults(rs []Result) error {
	var errs []error
	for _, r := range rs {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("age group %s: %w", r.Group, r.Err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) load(ctx context.Context, variant string, req Request) (*dataset.Series, error) {
	start, end := Window(variant, req.Region, req.Start, req.End)
	return r.Loader.Load(ctx, dataset.Request{
		Region:        req.Region,
		Start:         start,
		End:           end,
		AggregateWeek: variant == model.VariantWeeklySwitchpoints,
		Deaths:        req.Deaths,
	})
}

func (r *Runner) loadAges(ctx context.Context, variant string, req Request) ([]dataset.AgeSeries, error) {
	start, end := Window(variant, req.Region, req.Start, req.End)
	return r.Loader.LoadAges(ctx, dataset.Request{
		Region: req.Region,
		Start:  start,
		End:    end,
		Deaths: req.Deaths,
	})
}

// Stem names the output files of a fit.
func Stem(variant string, req Request, group string) string {
	region := strings.ReplaceAll(req.Region, " ", "_")
	var stem string
	switch variant {
	case model.VariantDaily:
		stem = "train_daily_" + region
	case model.VariantDeaths:
		stem = "train_deaths_" + region
	case model.VariantDailySwitchpoints:
		// Fixed runs keep the requested count in the name even though the
		// literal switchpoint list decides K; Run.NSwitchpoints has the real one.
		prefix := "fixed"
		if req.EstimateSwitchpoints {
			prefix = "non_fixed"
		}
		stem = fmt.Sprintf("%s_switchpoints_daily_%d_%s", prefix, req.NSwitchpoints, region)
	case model.VariantWeeklySwitchpoints:
		stem = fmt.Sprintf("switchpoints_weekly_%d_%s", req.NSwitchpoints, region)
	case model.VariantDeathsSwitchpoints:
		stem = fmt.Sprintf("switchpoints_deaths_%d_%s", req.NSwitchpoints, region)
	default:
		stem = variant + "_" + region
	}
	if group != "" {
		stem += "_" + strings.ReplaceAll(group, " ", "_")
	}
	return stem
}

func (r *Runner) samplerOptions(variant, region, label string) sampler.Options {
	d := Defaults(variant, region)
	opts := r.Sampler
	if opts.Draws == 0 {
		opts.Draws = d.Draws
	}
	if opts.Tune == 0 {
		opts.Tune = d.Tune
	}
	if opts.TargetAccept == 0 {
		opts.TargetAccept = d.TargetAccept
	}
	if opts.Chains == 0 {
		opts.Chains = 4
	}
	opts.Logger = r.log()
	opts.Label = label
	return opts
}

// initialPoint applies the configured init strategy.
func (r *Runner) initialPoint(m *model.Model) ([]float64, error) {
	theta, err := m.InitialPoint(nil)
	if err != nil {
		return nil, err
	}
	if r.Init != config.InitLeastSquares || m.Config().Rate != model.SwitchRate {
		return theta, nil
	}
	rates, err := m.LeastSquaresRates(m.Constrain(theta))
	if err != nil {
		r.log().Info("Least-squares initial rates failed, using defaults", "error", err.Error())
		return theta, nil
	}
	r.log().V(1).Info("Least-squares initial rates", "rates", rates)
	return m.InitialPoint(model.Values{model.RateName: rates})
}

func (r *Runner) fit(ctx context.Context, variant string, req Request, s *dataset.Series, group string) (*Fit, error) {
	stem := Stem(variant, req, group)
	log := r.log().WithValues("run", stem)

	// 1. Build the model
	cfg, err := model.Preset(variant, req.NSwitchpoints, req.EstimateSwitchpoints)
	if err != nil {
		return nil, err
	}
	cfg.Layout = r.Layout
	if cfg.Rate == model.SwitchRate && cfg.Likelihood == model.NegativeBinomial {
		cfg.DelayRate = req.DelayRate
	}
	m, err := model.New(cfg, s.Cases, s.Observed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stem, err)
	}
	log.Info("Fitting", "points", m.Len(), "params", m.Dim(), "delayRate", m.DelayRate())

	// 2. Sample
	init, err := r.initialPoint(m)
	if err != nil {
		return nil, fmt.Errorf("%s: initial point: %w", stem, err)
	}
	opts := r.samplerOptions(variant, req.Region, stem)
	tr, err := sampler.Run(ctx, m, init, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stem, err)
	}
	post, err := posterior.FromTrace(m, tr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stem, err)
	}
	if tr.Divergences() > 0 {
		log.Info("Divergent transitions", "count", tr.Divergences())
	}

	// 3. Posterior predictive
	thin := 1
	if r.MaxPredictive > 0 {
		if n := post.Chains * post.Draws; n > r.MaxPredictive {
			thin = int(math.Ceil(float64(n) / float64(r.MaxPredictive)))
		}
	}
	predictive, err := posterior.SamplePredictive(ctx, m, post, rand.NewPCG(opts.Seed, seedFor(stem)), thin)
	if err != nil {
		return nil, fmt.Errorf("%s: predictive: %w", stem, err)
	}
	bands, err := posterior.PredictiveBands(predictive)
	if err != nil {
		return nil, fmt.Errorf("%s: predictive: %w", stem, err)
	}

	start, end := Window(variant, req.Region, req.Start, req.End)
	fit := &Fit{
		Run: results.Run{
			Stem:          stem,
			Model:         variant,
			Region:        req.Region,
			Group:         group,
			NSwitchpoints: m.NSwitchpoints(),
			Start:         start,
			End:           end,
			Chains:        post.Chains,
			Draws:         post.Draws,
			Divergences:   tr.Divergences(),
		},
		Model:     m,
		Trace:     tr,
		Posterior: post,
		Series:    s,
		Bands:     bands,
	}

	// 4. Persist
	if err := r.persist(ctx, fit); err != nil {
		return nil, fmt.Errorf("%s: %w", stem, err)
	}
	return fit, nil
}

func seedFor(stem string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(stem))
	return h.Sum64()
}

// SwitchpointDates maps the posterior-mean switchpoints (or the fixed ones)
// to the dates of the fitted series.
func (f *Fit) SwitchpointDates() []time.Time {
	sp := f.Model.FixedSwitchpoints()
	if mean, err := f.Posterior.Mean(model.SwitchpointName); err == nil {
		sp = mean
	}
	var out []time.Time
	n := len(f.Series.Dates)
	for _, x := range sp {
		i := int(math.Round(x))
		if i < 0 || i >= n {
			continue
		}
		out = append(out, f.Series.Dates[i])
	}
	return out
}
