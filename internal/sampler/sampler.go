// Package sampler draws posterior samples from a differentiable log density
// with Hamiltonian Monte Carlo. Gradients are taken by finite differences,
// so any Target that returns a smooth log density can be sampled.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/go-logr/logr"
)

// Target is a log density over an unconstrained real vector.
// LogDensity must be safe for concurrent use.
type Target interface {
	Dim() int
	LogDensity(theta []float64) float64
}

// ErrOptions is returned for invalid run options.
var ErrOptions = errors.New("invalid sampler options")

// Options control one sampling run.
type Options struct {
	// Kept draws per chain
	Draws int
	// Tuning (burn-in) iterations per chain, discarded
	Tune int
	Chains int
	// Target acceptance probability for step-size adaptation
	TargetAccept float64
	Seed         uint64

	// Integration time per trajectory; leapfrog steps = PathLength / step size
	PathLength  float64
	MaxLeapfrog int
	// Chains start from init + Uniform(-Jitter, Jitter)
	Jitter float64
	// Start chains from the posterior mode instead of init
	FindMAP bool
	// Chains run at once; 0 means all
	MaxConcurrency int

	Logger  logr.Logger
	Metrics *Metrics
	// Label identifies the model in logs and metrics
	Label string
}

// DefaultOptions mirror the settings used for the daily admission fits.
func DefaultOptions() Options {
	return Options{
		Draws:        5000,
		Tune:         4000,
		Chains:       4,
		TargetAccept: 0.95,
		Seed:         1,
		PathLength:   2,
		MaxLeapfrog:  256,
		Jitter:       1,
	}
}

func (o *Options) validate() error {
	switch {
	case o.Draws < 1:
		return fmt.Errorf("%w: draws must be >= 1, got %d", ErrOptions, o.Draws)
	case o.Tune < 0:
		return fmt.Errorf("%w: tune must be >= 0, got %d", ErrOptions, o.Tune)
	case o.Chains < 1:
		return fmt.Errorf("%w: chains must be >= 1, got %d", ErrOptions, o.Chains)
	case o.TargetAccept <= 0 || o.TargetAccept >= 1:
		return fmt.Errorf("%w: target accept must be in (0, 1), got %v", ErrOptions, o.TargetAccept)
	}
	if o.PathLength <= 0 {
		o.PathLength = 2
	}
	if o.MaxLeapfrog <= 0 {
		o.MaxLeapfrog = 256
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
	if o.MaxConcurrency <= 0 || o.MaxConcurrency > o.Chains {
		o.MaxConcurrency = o.Chains
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	return nil
}

// ChainResult holds the kept draws of one chain, in unconstrained space.
type ChainResult struct {
	Draws       [][]float64
	LogDensity  []float64
	AcceptRate  float64
	Divergences int
	StepSize    float64
	InvMass     []float64
}

// Trace is the output of Run, one entry per chain.
type Trace struct {
	Chains []ChainResult
}

// NumDraws returns the kept draws per chain.
func (t *Trace) NumDraws() int {
	if len(t.Chains) == 0 {
		return 0
	}
	return len(t.Chains[0].Draws)
}

// Divergences sums divergent transitions over all chains.
func (t *Trace) Divergences() int {
	n := 0
	for _, c := range t.Chains {
		n += c.Divergences
	}
	return n
}

// Run samples target starting from init (unconstrained), running the
// chains concurrently. Every chain evaluates the same target.
func Run(ctx context.Context, target Target, init []float64, opts Options) (*Trace, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(init) != target.Dim() {
		return nil, fmt.Errorf("%w: init has %d values, target dimension is %d", ErrOptions, len(init), target.Dim())
	}
	if lp := target.LogDensity(init); math.IsInf(lp, 0) || math.IsNaN(lp) {
		return nil, fmt.Errorf("%w: log density at the initial point is %v", ErrOptions, lp)
	}

	log := opts.Logger.WithValues("model", opts.Label)

	start := append([]float64(nil), init...)
	if opts.FindMAP {
		mode, err := FindMAP(target, init)
		if err != nil {
			log.Info("MAP search failed, starting from the initial point", "error", err.Error())
		} else {
			start = mode
		}
	}

	log.Info("Sampling", "chains", opts.Chains, "tune", opts.Tune, "draws", opts.Draws, "dim", target.Dim())

	trace := &Trace{Chains: make([]ChainResult, opts.Chains)}

	var wg sync.WaitGroup
	sem := make(chan struct{}, opts.MaxConcurrency)
	errorCh := make(chan error, opts.Chains)

	for c := 0; c < opts.Chains; c++ {
		wg.Add(1)

		// blocks once MaxConcurrency chains are running
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			rng := rand.New(rand.NewPCG(opts.Seed, uint64(c)+1))
			res, err := runChain(ctx, target, jittered(target, start, opts.Jitter, rng), rng, c, opts, log)
			if err != nil {
				errorCh <- fmt.Errorf("chain %d: %w", c, err)
				return
			}
			trace.Chains[c] = *res
		}()
	}

	go func() {
		wg.Wait()
		close(errorCh)
	}()

	var aggregatedErrors []error
	for err := range errorCh {
		aggregatedErrors = append(aggregatedErrors, err)
	}
	if len(aggregatedErrors) > 0 {
		return nil, errors.Join(aggregatedErrors...)
	}

	log.Info("Sampling finished", "divergences", trace.Divergences())
	return trace, nil
}

// jittered perturbs start uniformly, retrying until the log density is finite.
func jittered(target Target, start []float64, jitter float64, rng *rand.Rand) []float64 {
	if jitter == 0 {
		return append([]float64(nil), start...)
	}
	x := make([]float64, len(start))
	for attempt := 0; attempt < 20; attempt++ {
		for i := range x {
			x[i] = start[i] + jitter*(2*rng.Float64()-1)
		}
		if lp := target.LogDensity(x); !math.IsInf(lp, 0) && !math.IsNaN(lp) {
			return x
		}
	}
	return append([]float64(nil), start...)
}

func runChain(ctx context.Context, target Target, x0 []float64, rng *rand.Rand, id int, opts Options, log logr.Logger) (*ChainResult, error) {
	log = log.WithValues("chain", id)
	c := newChain(target, x0, rng)

	c.stepSize = c.findReasonableStepSize()
	da := newDualAveraging(c.stepSize, opts.TargetAccept)
	mw := newMassWindow(target.Dim(), opts.Tune)

	res := &ChainResult{
		Draws:      make([][]float64, 0, opts.Draws),
		LogDensity: make([]float64, 0, opts.Draws),
	}
	total := opts.Tune + opts.Draws
	report := total / 10
	if report == 0 {
		report = 1
	}
	accepted := 0.0

	for it := 0; it < total; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tuning := it < opts.Tune

		stat := c.transition(opts.PathLength, opts.MaxLeapfrog)
		opts.Metrics.observeTransition(opts.Label, tuning, stat.divergent)

		if tuning {
			c.stepSize = da.update(stat.acceptProb)
			if mw.add(it, c.x) {
				c.invMass = mw.invMass()
				c.stepSize = c.findReasonableStepSize()
				da = newDualAveraging(c.stepSize, opts.TargetAccept)
			}
			if it == opts.Tune-1 {
				c.stepSize = da.final()
			}
			continue
		}

		accepted += stat.acceptProb
		if stat.divergent {
			res.Divergences++
		}
		res.Draws = append(res.Draws, append([]float64(nil), c.x...))
		res.LogDensity = append(res.LogDensity, c.logp)

		if (it+1)%report == 0 {
			log.V(1).Info("Progress", "iteration", it+1, "of", total, "stepSize", c.stepSize)
		}
	}

	res.AcceptRate = accepted / float64(opts.Draws)
	res.StepSize = c.stepSize
	res.InvMass = append([]float64(nil), c.invMass...)
	opts.Metrics.observeChain(opts.Label, id, res.AcceptRate, res.StepSize)

	log.V(1).Info("Chain finished", "acceptRate", res.AcceptRate, "divergences", res.Divergences)
	return res, nil
}
