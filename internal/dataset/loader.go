package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-logr/logr"
)

// Source file names, relative to FileLoader.Dir.
const (
	ProvincesFile        = "provinces_iso.csv"
	SpanishCasesFile     = "casos_hosp_uci_def_sexo_edad_provres.csv"
	CataloniaAgesFile    = "dades_covid_2022.csv"
	OWIDCasesFile        = "OWID/new_cases.csv"
	OWIDHospitalizations = "OWID/covid-hospitalizations.csv"
)

// FileLoader reads the source CSV files from a data directory.
type FileLoader struct {
	Dir    string
	Logger logr.Logger
}

// NewFileLoader returns a loader rooted at dir.
func NewFileLoader(dir string, log logr.Logger) *FileLoader {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &FileLoader{Dir: dir, Logger: log}
}

func (l *FileLoader) path(name string) string {
	return filepath.Join(l.Dir, filepath.FromSlash(name))
}

// Load returns the case and outcome series of req.Region between req.Start
// and req.End inclusive.
func (l *FileLoader) Load(ctx context.Context, req Request) (*Series, error) {
	if req.End.Before(req.Start) {
		return nil, fmt.Errorf("end date %s before start date %s", req.End.Format(DateLayout), req.Start.Format(DateLayout))
	}
	log := l.Logger.WithValues("region", req.Region)

	var (
		s   *Series
		err error
	)
	if IsSpanish(req.Region) {
		s, err = l.loadSpanish(ctx, req)
	} else {
		s, err = l.loadOWID(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if req.AggregateWeek {
		s = AggregateWeekly(s)
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("%w: %s %s..%s", ErrNoData, req.Region, req.Start.Format(DateLayout), req.End.Format(DateLayout))
	}
	log.V(1).Info("Loaded series", "points", s.Len(), "weekly", req.AggregateWeek, "deaths", req.Deaths)
	return s, nil
}

// provinces resolves a community code, or "Spain", to its province codes.
func (l *FileLoader) provinces(region string) (map[string]bool, error) {
	t, err := readTable(l.path(ProvincesFile), "ccaa_iso", "province_iso")
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, row := range t.rows {
		if region == "Spain" || t.get(row, "ccaa_iso") == region {
			out[t.get(row, "province_iso")] = true
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrRegionNotFound, region)
	}
	return out, nil
}

func (l *FileLoader) loadSpanish(ctx context.Context, req Request) (*Series, error) {
	provinces, err := l.provinces(req.Region)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := readTable(l.path(SpanishCasesFile), "provincia_iso", "fecha", "num_casos", "num_hosp", "num_def")
	if err != nil {
		return nil, err
	}
	outcome := "num_hosp"
	if req.Deaths {
		outcome = "num_def"
	}

	cases := make(map[time.Time]float64)
	observed := make(map[time.Time]float64)
	for _, row := range t.rows {
		if !provinces[t.get(row, "provincia_iso")] {
			continue
		}
		d, err := t.date(row, "fecha")
		if err != nil {
			return nil, err
		}
		if !within(d, req.Start, req.End) {
			continue
		}
		c, err := t.count(row, "num_casos")
		if err != nil {
			return nil, err
		}
		o, err := t.count(row, outcome)
		if err != nil {
			return nil, err
		}
		cases[d] += c
		observed[d] += o
	}
	return fromMaps(cases, observed), nil
}

// fromMaps orders per-date sums by date.
func fromMaps(cases, observed map[time.Time]float64) *Series {
	dates := make([]time.Time, 0, len(cases))
	for d := range cases {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	s := &Series{Dates: dates, Cases: make([]float64, len(dates)), Observed: make([]float64, len(dates))}
	for i, d := range dates {
		s.Cases[i] = cases[d]
		s.Observed[i] = observed[d]
	}
	return s
}

// LoadAges returns one series per age group, skipping the unknown group
// "NC". With AggregateWeek both series are smoothed by a trailing 7-day
// mean per group instead of being summed into weeks.
func (l *FileLoader) LoadAges(ctx context.Context, req Request) ([]AgeSeries, error) {
	if !IsSpanish(req.Region) {
		return nil, fmt.Errorf("%w: age groups for %q, only Spanish regions carry them", ErrNotImplemented, req.Region)
	}

	var (
		groups map[string]*ageAccumulator
		err    error
	)
	if req.Region == "CT" && fileExists(l.path(CataloniaAgesFile)) {
		if req.Deaths {
			return nil, fmt.Errorf("%w: deaths by age for CT", ErrNotImplemented)
		}
		groups, err = l.cataloniaAges(req)
	} else {
		groups, err = l.spanishAges(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(groups))
	for g := range groups {
		if g == "NC" {
			continue
		}
		names = append(names, g)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no age groups for %s", ErrNoData, req.Region)
	}

	out := make([]AgeSeries, 0, len(names))
	for _, g := range names {
		s := fromMaps(groups[g].cases, groups[g].observed)
		if req.AggregateWeek {
			s.Cases = RollingMean(s.Cases, 7)
			s.Observed = RollingMean(s.Observed, 7)
		}
		out = append(out, AgeSeries{Group: g, Series: *s})
	}
	l.Logger.V(1).Info("Loaded age groups", "region", req.Region, "groups", names)
	return out, nil
}

type ageAccumulator struct {
	cases, observed map[time.Time]float64
}

func (a *ageAccumulator) add(d time.Time, c, o float64) {
	a.cases[d] += c
	a.observed[d] += o
}

func accumulator(groups map[string]*ageAccumulator, g string) *ageAccumulator {
	a, ok := groups[g]
	if !ok {
		a = &ageAccumulator{cases: make(map[time.Time]float64), observed: make(map[time.Time]float64)}
		groups[g] = a
	}
	return a
}

func (l *FileLoader) spanishAges(ctx context.Context, req Request) (map[string]*ageAccumulator, error) {
	provinces, err := l.provinces(req.Region)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := readTable(l.path(SpanishCasesFile), "provincia_iso", "fecha", "grupo_edad", "num_casos", "num_hosp", "num_def")
	if err != nil {
		return nil, err
	}
	outcome := "num_hosp"
	if req.Deaths {
		outcome = "num_def"
	}

	groups := make(map[string]*ageAccumulator)
	for _, row := range t.rows {
		if !provinces[t.get(row, "provincia_iso")] {
			continue
		}
		d, err := t.date(row, "fecha")
		if err != nil {
			return nil, err
		}
		if !within(d, req.Start, req.End) {
			continue
		}
		c, err := t.count(row, "num_casos")
		if err != nil {
			return nil, err
		}
		o, err := t.count(row, outcome)
		if err != nil {
			return nil, err
		}
		accumulator(groups, t.get(row, "grupo_edad")).add(d, c, o)
	}
	return groups, nil
}

// cataloniaAges reads the Catalan open-data export, which reports age
// groups with its own column names.
func (l *FileLoader) cataloniaAges(req Request) (map[string]*ageAccumulator, error) {
	t, err := readTable(l.path(CataloniaAgesFile), "DATA", "GRUP_EDAT", "CASOS_CONFIRMAT", "INGRESSOS_TOTAL")
	if err != nil {
		return nil, err
	}
	groups := make(map[string]*ageAccumulator)
	for _, row := range t.rows {
		d, err := t.date(row, "DATA")
		if err != nil {
			return nil, err
		}
		if !within(d, req.Start, req.End) {
			continue
		}
		c, err := t.count(row, "CASOS_CONFIRMAT")
		if err != nil {
			return nil, err
		}
		o, err := t.count(row, "INGRESSOS_TOTAL")
		if err != nil {
			return nil, err
		}
		accumulator(groups, t.get(row, "GRUP_EDAT")).add(d, c, o)
	}
	return groups, nil
}
