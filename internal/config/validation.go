package config

import (
	"fmt"
	"time"

	"github.com/Markfds01/shine-switchpoints/internal/logging"
)

// Validate performs validation on the loaded configuration.
// It returns an error wrapping ErrInvalid for the first problem found.
func Validate(cfg *Config) error {
	if cfg.Region == "" {
		return fmt.Errorf("%w: region is required", ErrInvalid)
	}
	if cfg.NSwitchpoints < 1 {
		return fmt.Errorf("%w: n-switchpoints must be >= 1, got %d", ErrInvalid, cfg.NSwitchpoints)
	}

	switch cfg.Stage {
	case StageTrain, StageSwitchpoints, StageAll:
	default:
		return fmt.Errorf("%w: unknown stage %q", ErrInvalid, cfg.Stage)
	}
	switch cfg.Init {
	case InitDefault, InitLeastSquares:
	default:
		return fmt.Errorf("%w: unknown init strategy %q", ErrInvalid, cfg.Init)
	}

	// The weekly model only covers admissions and has no training stage
	if cfg.Weekly && cfg.Deaths {
		return fmt.Errorf("%w: the weekly model does not support deaths", ErrInvalid)
	}
	if cfg.Ages && cfg.Weekly {
		return fmt.Errorf("%w: age groups are fitted with the daily model only", ErrInvalid)
	}

	if cfg.Draws < 0 || cfg.Tune < 0 {
		return fmt.Errorf("%w: draws and tune must be >= 0, got %d and %d", ErrInvalid, cfg.Draws, cfg.Tune)
	}
	if cfg.Chains < 1 {
		return fmt.Errorf("%w: chains must be >= 1, got %d", ErrInvalid, cfg.Chains)
	}
	if cfg.TargetAccept < 0 || cfg.TargetAccept >= 1 {
		return fmt.Errorf("%w: target-accept must be in (0, 1), got %v", ErrInvalid, cfg.TargetAccept)
	}
	if cfg.DelayRate < 0 {
		return fmt.Errorf("%w: delay-rate must be >= 0, got %v", ErrInvalid, cfg.DelayRate)
	}

	if err := ordered("train", cfg.TrainStart, cfg.TrainEnd); err != nil {
		return err
	}
	if err := ordered("switch", cfg.SwitchStart, cfg.SwitchEnd); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func ordered(name string, start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return nil
	}
	if end.Before(start) {
		return fmt.Errorf("%w: %s-end %s before %s-start %s", ErrInvalid,
			name, end.Format("2006-01-02"), name, start.Format("2006-01-02"))
	}
	return nil
}
