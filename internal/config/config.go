// Package config resolves the run configuration from flags, SHINE_*
// environment variables, an optional YAML file and defaults.
package config

import (
	"errors"
	"time"

	"github.com/Markfds01/shine-switchpoints/internal/switchrate"
)

// ErrInvalid is returned for configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Stages of a run.
const (
	StageTrain        = "train"
	StageSwitchpoints = "switchpoints"
	StageAll          = "all"
)

// Initial-value strategies for the regime rates.
const (
	InitDefault      = "default"
	InitLeastSquares = "least-squares"
)

// Config is the resolved configuration of one run.
type Config struct {
	Region        string
	NSwitchpoints int
	Weekly        bool
	Deaths        bool
	// Sample the switchpoints instead of using the literal dates
	EstimateSwitchpoints bool
	// Fit every age group separately
	Ages  bool
	Stage string

	// Zero dates fall back to the defaults of the variant being fitted
	TrainStart, TrainEnd   time.Time
	SwitchStart, SwitchEnd time.Time

	// Zero values fall back to the defaults of the variant being fitted
	Draws        int
	Tune         int
	TargetAccept float64
	Chains       int
	Seed         uint64
	FindMAP      bool
	Init         string

	// Fixed delay rate for the switchpoint stage; 0 takes it from the
	// training stage.
	DelayRate float64
	Layout    switchrate.Layout

	DataDir     string
	OutputDir   string
	Plot        bool
	LogLevel    string
	MetricsFile string
	PostgresDSN string
}

// RunsTrain reports whether the training stage runs.
func (c *Config) RunsTrain() bool {
	return c.Stage == StageTrain || c.Stage == StageAll
}

// RunsSwitchpoints reports whether the switchpoint stage runs.
func (c *Config) RunsSwitchpoints() bool {
	return c.Stage == StageSwitchpoints || c.Stage == StageAll
}
