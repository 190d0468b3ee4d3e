// Package plot renders posterior-predictive fan charts with gnuplot.
package plot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"text/template"
)

// ErrUnavailable is returned by Draw when gnuplot is not on PATH.
var ErrUnavailable = errors.New("gnuplot not found on PATH")

// fanTmpl reads a bands CSV: date, observed, q2.5, q25, q50, q75, q97.5.
const fanTmpl = `
set datafile separator ','
set terminal pngcairo size {{.Width}},{{.Height}}
set output '{{quote .OutputPath}}'

set title '{{quote .Title}}'
set timefmt '%Y-%m-%d'
set xdata time
set format x '%y-%m-%d'
set xtics rotate by 45 right
set xlabel 'Day'
set ylabel '{{quote .YLabel}}'
set yrange [0:*]
set key top left
{{range .Switchpoints}}
set arrow from '{{.}}', graph 0 to '{{.}}', graph 1 nohead lc 'gray' dt 2
{{- end}}

plot '{{quote .DataPath}}' every ::1 using 1:3:7 with filledcurves lc '#68C5DB' fs transparent solid 0.2 title '95% quantile', \
     '{{quote .DataPath}}' every ::1 using 1:4:6 with filledcurves lc '#448FA3' fs transparent solid 0.3 title '50% quantile', \
     '{{quote .DataPath}}' every ::1 using 1:5 with lines lc '#448FA3' lw 3 title 'posterior median', \
     '{{quote .DataPath}}' every ::1 using 1:2 with points pt 7 ps 0.5 lc '#02182B' title '{{quote .ObservedLabel}}'
`

var fan = template.Must(template.New("fan").Funcs(template.FuncMap{
	// gnuplot escapes a single quote by doubling it
	"quote": func(s string) string { return strings.ReplaceAll(s, "'", "''") },
}).Parse(fanTmpl))

// FanChart describes one chart.
type FanChart struct {
	Title         string
	YLabel        string
	ObservedLabel string
	// Bands CSV written by results.Writer.WriteBands
	DataPath   string
	OutputPath string
	// Dates (YYYY-MM-DD) marked with a vertical line
	Switchpoints []string
	Width        int
	Height       int
}

// Render writes the gnuplot script for c.
func Render(w io.Writer, c FanChart) error {
	if c.Width == 0 {
		c.Width = 1200
	}
	if c.Height == 0 {
		c.Height = 800
	}
	if c.ObservedLabel == "" {
		c.ObservedLabel = "observed"
	}
	return fan.Execute(w, c)
}

// Available reports whether gnuplot can be run.
func Available() bool {
	_, err := exec.LookPath("gnuplot")
	return err == nil
}

// Draw renders c to a temporary script and runs gnuplot on it.
func Draw(ctx context.Context, c FanChart) error {
	if !Available() {
		return ErrUnavailable
	}

	gf, err := os.CreateTemp("", "gnuplot.")
	if err != nil {
		return err
	}
	defer os.Remove(gf.Name())

	terr := Render(gf, c)
	cerr := gf.Close()
	if terr != nil {
		return terr
	}
	if cerr != nil {
		return cerr
	}

	out, err := exec.CommandContext(ctx, "gnuplot", gf.Name()).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%v: %q", err, msg)
		}
		return err
	}
	return nil
}
