package main

import (
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/Markfds01/shine-switchpoints/internal/delay"
	"github.com/Markfds01/shine-switchpoints/internal/pipeline"
	"github.com/Markfds01/shine-switchpoints/internal/posterior"
)

// Days shown in the delay profile after training
const delayHorizon = 14

// summaryColumns label the columns of SummaryMatrix.
var summaryColumns = []string{"mean", "sd", "q2.5", "q50", "q97.5", "r_hat"}

// SummaryMatrix packs posterior rows into a len(rows) x 6 matrix with the
// columns of summaryColumns. Returns nil for no rows.
func SummaryMatrix(rows []posterior.Row) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	data := make([]float64, 0, len(rows)*len(summaryColumns))
	for _, r := range rows {
		data = append(data, r.Mean, r.SD, r.Q025, r.Q50, r.Q975, r.RHat)
	}
	return mat.NewDense(len(rows), len(summaryColumns), data)
}

// RowLabels names each row of SummaryMatrix, e.g. "rate[1]".
func RowLabels(rows []posterior.Row, sizes map[string]int) []string {
	labels := make([]string, len(rows))
	for i, r := range rows {
		if sizes[r.Name] > 1 {
			labels[i] = fmt.Sprintf("%s[%d]", r.Name, r.Component)
		} else {
			labels[i] = r.Name
		}
	}
	return labels
}

// DelayProfile returns the share of outcomes landing on each of the first
// horizon days after the case, as a horizon x 1 matrix.
func DelayProfile(lambda float64, horizon int) (*mat.Dense, error) {
	irf, err := delay.ImpulseResponse(lambda, horizon)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(horizon, 1, irf), nil
}

// PrintReport prints every fit in rep.
func PrintReport(w io.Writer, rep *pipeline.Report) {
	if rep.Training != nil {
		PrintTraining(w, rep.Training)
	}
	if rep.Fit != nil {
		PrintFit(w, rep.Fit)
	}
	for _, res := range rep.AgeTraining {
		printResult(w, res)
	}
	for _, res := range rep.AgeFits {
		printResult(w, res)
	}
}

func printResult(w io.Writer, res pipeline.Result) {
	switch {
	case res.Err != nil:
		fmt.Fprintf(w, "\n=== Age group %s failed ===\n%v\n", res.Group, res.Err)
	case res.Training != nil:
		PrintTraining(w, res.Training)
	case res.Fit != nil:
		PrintFit(w, res.Fit)
	}
}

// PrintTraining prints the trained probability and delay rate, then the
// delay profile they imply.
func PrintTraining(w io.Writer, tr *pipeline.Training) {
	PrintFit(w, tr.Fit)

	fmt.Fprintf(w, "\nprobability = %.4f, delay rate = %.4f\n", tr.Probability, tr.DelayRate)
	if mean, err := delay.MeanDelay(tr.DelayRate, 10*delayHorizon); err == nil {
		fmt.Fprintf(w, "mean delay = %.2f days\n", mean)
	}
	profile, err := DelayProfile(tr.DelayRate, delayHorizon)
	if err != nil {
		fmt.Fprintf(w, "delay profile: %v\n", err)
		return
	}
	fmt.Fprintf(w, "\n=== Delay Profile (days 0-%d) ===\n", delayHorizon-1)
	fmt.Fprintf(w, "%v\n", mat.Formatted(profile, mat.Prefix(" ")))
}

// PrintFit prints the posterior summary of fit and its switchpoint dates.
func PrintFit(w io.Writer, fit *pipeline.Fit) {
	fmt.Fprintf(w, "\n=== %s ===\n", fit.Run.Stem)
	fmt.Fprintf(w, "%d chains x %d draws, %d divergences\n", fit.Run.Chains, fit.Run.Draws, fit.Run.Divergences)

	rows := fit.Posterior.Summary()
	m := SummaryMatrix(rows)
	if m == nil {
		return
	}
	sizes := make(map[string]int)
	for _, r := range rows {
		sizes[r.Name]++
	}
	fmt.Fprintf(w, "rows: %s\n", strings.Join(RowLabels(rows, sizes), ", "))
	fmt.Fprintf(w, "cols: %s\n", strings.Join(summaryColumns, ", "))
	fmt.Fprintf(w, "%v\n", mat.Formatted(m, mat.Prefix(" "), mat.Squeeze()))

	dates := fit.SwitchpointDates()
	if len(dates) == 0 {
		return
	}
	s := make([]string, len(dates))
	for i, d := range dates {
		s[i] = d.Format("2006-01-02")
	}
	fmt.Fprintf(w, "switchpoints: %s\n", strings.Join(s, ", "))
}
