// Package results persists fitted posteriors: draws and predictive bands as
// CSV, summaries as YAML, and optionally summary rows in Postgres.
package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Markfds01/shine-switchpoints/internal/posterior"
)

// Run identifies one fit.
type Run struct {
	Stem          string    `yaml:"name"`
	Model         string    `yaml:"model"`
	Region        string    `yaml:"region"`
	Group         string    `yaml:"age_group,omitempty"`
	NSwitchpoints int       `yaml:"n_switchpoints,omitempty"`
	Start         time.Time `yaml:"start"`
	End           time.Time `yaml:"end"`
	Chains        int       `yaml:"chains"`
	Draws         int       `yaml:"draws"`
	Divergences   int       `yaml:"divergences"`
}

// Summary is the YAML document written per fit.
type Summary struct {
	Run       Run                  `yaml:"run"`
	Means     map[string][]float64 `yaml:"means"`
	Posterior []posterior.Row      `yaml:"posterior"`
}

// Writer writes result files under Dir.
type Writer struct {
	Dir string
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{Dir: dir}, nil
}

// Path returns the file name for stem with the given suffix.
func (w *Writer) Path(stem, suffix string) string {
	return filepath.Join(w.Dir, stem+suffix)
}

// WriteDraws writes one row per draw: chain, draw, then every component of
// every variable.
func (w *Writer) WriteDraws(stem string, p *posterior.Posterior) (string, error) {
	header := []string{"chain", "draw"}
	var vars []*posterior.Variable
	for _, name := range p.Names() {
		v, err := p.Variable(name)
		if err != nil {
			return "", err
		}
		vars = append(vars, v)
		for k := 0; k < v.Size(); k++ {
			if v.Size() == 1 {
				header = append(header, name)
				continue
			}
			header = append(header, fmt.Sprintf("%s[%d]", name, k))
		}
	}

	records := [][]string{header}
	for c := 0; c < p.Chains; c++ {
		for d := 0; d < p.Draws; d++ {
			rec := []string{strconv.Itoa(c), strconv.Itoa(d)}
			for _, v := range vars {
				for _, x := range v.Draws[c][d] {
					rec = append(rec, formatFloat(x))
				}
			}
			records = append(records, rec)
		}
	}
	path := w.Path(stem, "_draws.csv")
	return path, writeCSV(path, records)
}

// WriteBands writes the predictive quantiles next to the observed series.
func (w *Writer) WriteBands(stem string, dates []time.Time, observed []float64, b posterior.Bands) (string, error) {
	if len(dates) != len(observed) {
		return "", fmt.Errorf("%d dates for %d observations", len(dates), len(observed))
	}
	header := []string{"date", "observed"}
	for i, l := range b.Levels {
		if len(b.Quantiles[i]) != len(dates) {
			return "", fmt.Errorf("band %v has %d points, want %d", l, len(b.Quantiles[i]), len(dates))
		}
		header = append(header, "q"+strconv.FormatFloat(100*l, 'f', -1, 64))
	}

	records := [][]string{header}
	for t, d := range dates {
		rec := []string{d.Format("2006-01-02"), formatFloat(observed[t])}
		for i := range b.Levels {
			rec = append(rec, formatFloat(b.Quantiles[i][t]))
		}
		records = append(records, rec)
	}
	path := w.Path(stem, "_bands.csv")
	return path, writeCSV(path, records)
}

// WriteSummary writes s as YAML.
func (w *Writer) WriteSummary(stem string, s Summary) (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	path := w.Path(stem, "_summary.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &s, nil
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
