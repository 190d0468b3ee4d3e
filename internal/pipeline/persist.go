package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Markfds01/shine-switchpoints/internal/model"
	"github.com/Markfds01/shine-switchpoints/internal/plot"
	"github.com/Markfds01/shine-switchpoints/internal/results"
)

// persist writes the fit's draws, predictive bands and summary, stores the
// summary in the sink and draws the fan chart, each when configured.
// Plotting failures are logged only.
func (r *Runner) persist(ctx context.Context, fit *Fit) error {
	rows := fit.Posterior.Summary()

	if r.Writer != nil {
		if _, err := r.Writer.WriteDraws(fit.Run.Stem, fit.Posterior); err != nil {
			return err
		}
		bandsPath, err := r.Writer.WriteBands(fit.Run.Stem, fit.Series.Dates, fit.Series.Observed, fit.Bands)
		if err != nil {
			return err
		}
		means := make(map[string][]float64)
		for _, name := range fit.Posterior.Names() {
			if means[name], err = fit.Posterior.Mean(name); err != nil {
				return err
			}
		}
		summaryPath, err := r.Writer.WriteSummary(fit.Run.Stem, results.Summary{Run: fit.Run, Means: means, Posterior: rows})
		if err != nil {
			return err
		}
		r.log().V(1).Info("Wrote results", "run", fit.Run.Stem, "summary", summaryPath, "bands", bandsPath)

		if r.Plot {
			r.drawFanChart(ctx, fit, bandsPath)
		}
	}

	if r.Sink != nil {
		if err := r.Sink.Store(ctx, fit.Run, rows); err != nil {
			return fmt.Errorf("store summary: %w", err)
		}
	}
	return nil
}

func (r *Runner) drawFanChart(ctx context.Context, fit *Fit, bandsPath string) {
	var marks []string
	for _, d := range fit.SwitchpointDates() {
		marks = append(marks, d.Format("2006-01-02"))
	}

	label := "admissions"
	if fit.Model.Config().Outcome == model.Deaths {
		label = "deaths"
	}
	title := fmt.Sprintf("%s, %s", fit.Run.Model, fit.Run.Region)
	if fit.Run.Group != "" {
		title += " (" + fit.Run.Group + ")"
	}

	err := plot.Draw(ctx, plot.FanChart{
		Title:         title,
		YLabel:        "Number of " + label,
		ObservedLabel: "Observed " + label,
		DataPath:      bandsPath,
		OutputPath:    strings.TrimSuffix(bandsPath, "_bands.csv") + ".png",
		Switchpoints:  marks,
	})
	switch {
	case errors.Is(err, plot.ErrUnavailable):
		r.log().V(1).Info("Skipping plot", "run", fit.Run.Stem, "reason", err.Error())
	case err != nil:
		r.log().Error(err, "Plot failed", "run", fit.Run.Stem)
	}
}
