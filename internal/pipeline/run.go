package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Markfds01/shine-switchpoints/internal/config"
)

// Plan is a resolved run: the stages to execute and their windows.
type Plan struct {
	Region               string
	NSwitchpoints        int
	Weekly               bool
	Deaths               bool
	EstimateSwitchpoints bool
	Ages                 bool
	Train                bool
	Switchpoints         bool
	// Zero dates take the variant defaults
	TrainStart, TrainEnd   time.Time
	SwitchStart, SwitchEnd time.Time
	// Fixed delay rate for the switchpoint stage; 0 uses the trained one
	DelayRate float64
}

// PlanFromConfig translates the run configuration.
func PlanFromConfig(cfg *config.Config) Plan {
	return Plan{
		Region:               cfg.Region,
		NSwitchpoints:        cfg.NSwitchpoints,
		Weekly:               cfg.Weekly,
		Deaths:               cfg.Deaths,
		EstimateSwitchpoints: cfg.EstimateSwitchpoints,
		Ages:                 cfg.Ages,
		Train:                cfg.RunsTrain(),
		Switchpoints:         cfg.RunsSwitchpoints(),
		TrainStart:           cfg.TrainStart,
		TrainEnd:             cfg.TrainEnd,
		SwitchStart:          cfg.SwitchStart,
		SwitchEnd:            cfg.SwitchEnd,
		DelayRate:            cfg.DelayRate,
	}
}

func (p Plan) trainRequest() Request {
	return Request{
		Region: p.Region,
		Start:  p.TrainStart,
		End:    p.TrainEnd,
		Deaths: p.Deaths,
	}
}

func (p Plan) switchRequest(delayRate float64) Request {
	return Request{
		Region:               p.Region,
		Start:                p.SwitchStart,
		End:                  p.SwitchEnd,
		Weekly:               p.Weekly,
		Deaths:               p.Deaths,
		NSwitchpoints:        p.NSwitchpoints,
		EstimateSwitchpoints: p.EstimateSwitchpoints,
		DelayRate:            delayRate,
	}
}

// Report collects what Execute produced.
type Report struct {
	Training    *Training
	Fit         *Fit
	AgeTraining []Result
	AgeFits     []Result
}

// Execute runs the stages of p. The trained delay rate feeds the
// switchpoint stage unless p.DelayRate fixes it. The weekly model has no
// training stage.
func (r *Runner) Execute(ctx context.Context, p Plan) (*Report, error) {
	if p.Ages {
		return r.executeAges(ctx, p)
	}
	log := r.log().WithValues("region", p.Region)
	rep := &Report{}

	delayRate := p.DelayRate
	if p.Train && p.Weekly {
		log.Info("Skipping training, the weekly model has no delay")
	} else if p.Train {
		tr, err := r.Train(ctx, p.trainRequest())
		if err != nil {
			return rep, err
		}
		rep.Training = tr
		if delayRate == 0 {
			delayRate = tr.DelayRate
		}
	}

	if p.Switchpoints {
		fit, err := r.EstimateSwitchpoints(ctx, p.switchRequest(delayRate))
		if err != nil {
			return rep, err
		}
		rep.Fit = fit
	}
	return rep, nil
}

func (r *Runner) executeAges(ctx context.Context, p Plan) (*Report, error) {
	rep := &Report{}
	delayRates := make(map[string]float64)

	var trainErr error
	if p.Train {
		rep.AgeTraining, trainErr = r.TrainAges(ctx, p.trainRequest())
		for _, res := range rep.AgeTraining {
			if res.Training != nil {
				delayRates[res.Group] = res.Training.DelayRate
			}
		}
		if len(rep.AgeTraining) == 0 && trainErr != nil {
			return rep, trainErr
		}
	}
	if p.DelayRate > 0 {
		for g := range delayRates {
			delayRates[g] = p.DelayRate
		}
	}

	var fitErr error
	if p.Switchpoints {
		req := p.switchRequest(p.DelayRate)
		rep.AgeFits, fitErr = r.EstimateSwitchpointsAges(ctx, req, delayRates)
	}
	return rep, errors.Join(trainErr, fitErr)
}
