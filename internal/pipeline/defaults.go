package pipeline

import (
	"time"

	"github.com/Markfds01/shine-switchpoints/internal/model"
)

// StageDefaults are the window and sampler settings a variant is fitted
// with unless the run overrides them.
type StageDefaults struct {
	Start, End   string
	Draws, Tune  int
	TargetAccept float64
}

var stageDefaults = map[string]StageDefaults{
	model.VariantDaily:              {Start: "2020-06-29", End: "2020-12-01", Draws: 5000, Tune: 4000, TargetAccept: 0.95},
	model.VariantDeaths:             {Start: "2020-06-29", End: "2020-12-01", Draws: 5000, Tune: 2000, TargetAccept: 0.8},
	model.VariantDailySwitchpoints:  {Start: "2020-07-01", End: "2021-09-15", Draws: 5000, Tune: 4000, TargetAccept: 0.99},
	model.VariantWeeklySwitchpoints: {Start: "2020-07-01", End: "2022-03-27", Draws: 5000, Tune: 2000, TargetAccept: 0.8},
	model.VariantDeathsSwitchpoints: {Start: "2020-07-01", End: "2022-03-27", Draws: 5000, Tune: 2000, TargetAccept: 0.8},
}

// Defaults returns the settings of variant for region.
func Defaults(variant, region string) StageDefaults {
	d := stageDefaults[variant]
	// Italy's admissions series starts later
	if variant == model.VariantDailySwitchpoints && region == "Italy" {
		d.Start = "2020-09-01"
	}
	return d
}

// Window resolves a date window, filling zero dates from the variant defaults.
func Window(variant, region string, start, end time.Time) (time.Time, time.Time) {
	d := Defaults(variant, region)
	if start.IsZero() {
		start, _ = time.Parse("2006-01-02", d.Start)
	}
	if end.IsZero() {
		end, _ = time.Parse("2006-01-02", d.End)
	}
	return start, end
}

// SwitchpointVariant picks the switchpoint model for a run.
func SwitchpointVariant(weekly, deaths bool) string {
	switch {
	case weekly:
		return model.VariantWeeklySwitchpoints
	case deaths:
		return model.VariantDeathsSwitchpoints
	}
	return model.VariantDailySwitchpoints
}

// TrainingVariant picks the simple model fitted before the switchpoint model.
func TrainingVariant(deaths bool) string {
	if deaths {
		return model.VariantDeaths
	}
	return model.VariantDaily
}
