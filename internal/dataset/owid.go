package dataset

import (
	"context"
	"fmt"
	"math"
	"time"
)

// WeeklyAdmissionsIndicator is the OWID indicator holding trailing 7-day
// sums of new hospital admissions.
const WeeklyAdmissionsIndicator = "Weekly new hospital admissions"

func (l *FileLoader) loadOWID(ctx context.Context, req Request) (*Series, error) {
	if req.Deaths {
		return nil, fmt.Errorf("%w: death estimation for %q, only Spanish regions report deaths", ErrNotImplemented, req.Region)
	}

	// 1. Cases, one column per country
	ct, err := readTable(l.path(OWIDCasesFile), "date")
	if err != nil {
		return nil, err
	}
	if !ct.has(req.Region) {
		return nil, fmt.Errorf("%w: %q not in %s", ErrRegionNotFound, req.Region, OWIDCasesFile)
	}
	cases := make(map[time.Time]float64)
	for _, row := range ct.rows {
		d, err := ct.date(row, "date")
		if err != nil {
			return nil, err
		}
		if !within(d, req.Start, req.End) {
			continue
		}
		if cases[d], err = ct.count(row, req.Region); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. Weekly admissions, one week past the window so the last days are reconstructed
	ht, err := readTable(l.path(OWIDHospitalizations), "entity", "date", "indicator", "value")
	if err != nil {
		return nil, err
	}
	hospEnd := req.End.AddDate(0, 0, 7)
	weekly := make(map[time.Time]float64)
	found := false
	for _, row := range ht.rows {
		if ht.get(row, "entity") != req.Region || ht.get(row, "indicator") != WeeklyAdmissionsIndicator {
			continue
		}
		found = true
		d, err := ht.date(row, "date")
		if err != nil {
			return nil, err
		}
		if !within(d, req.Start, hospEnd) {
			continue
		}
		if weekly[d], err = ht.count(row, "value"); err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q has no %q rows", ErrRegionNotFound, req.Region, WeeklyAdmissionsIndicator)
	}

	// 3. Daily admissions over the requested window
	daily, err := DailyAdmissions(req.Start, hospEnd, weekly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Region, err)
	}
	days := dateRange(req.Start, req.End)
	s := &Series{Dates: days, Cases: make([]float64, len(days)), Observed: daily[:len(days)]}
	clamped := 0
	for i, d := range days {
		s.Cases[i] = cases[d]
		if s.Observed[i] < 0 {
			s.Observed[i] = 0
			clamped++
		}
	}
	if clamped > 0 {
		l.Logger.V(1).Info("Clamped negative reconstructed admissions", "region", req.Region, "days", clamped)
	}
	return s, nil
}

// DailyAdmissions rebuilds daily admissions between start and end from
// trailing 7-day sums reported on some of those days. The sums are
// interpolated onto every day, and day t is taken as day t-7 plus the change
// in the sum; the first week is assumed flat at a seventh of the first sum.
func DailyAdmissions(start, end time.Time, weekly map[time.Time]float64) ([]float64, error) {
	days := dateRange(start, end)
	v := make([]float64, len(days))
	for i, d := range days {
		x, ok := weekly[d]
		if !ok {
			x = math.NaN()
		}
		v[i] = x
	}
	if err := interpolate(v); err != nil {
		return nil, err
	}

	out := make([]float64, len(v))
	for i := range v {
		diff := 0.0
		if i > 0 {
			diff = v[i] - v[i-1]
		}
		if i < 7 {
			out[i] = diff + v[0]/7
		} else {
			out[i] = diff + out[i-7]
		}
	}
	return out, nil
}

// interpolate fills NaNs in place: linearly between known values, with the
// last known value after the final one and the first known value before
// the first one.
func interpolate(v []float64) error {
	prev := -1
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		switch {
		case prev < 0:
			for k := 0; k < i; k++ {
				v[k] = x
			}
		case i-prev > 1:
			step := (x - v[prev]) / float64(i-prev)
			for k := prev + 1; k < i; k++ {
				v[k] = v[prev] + step*float64(k-prev)
			}
		}
		prev = i
	}
	if prev < 0 {
		return fmt.Errorf("%w: no weekly admissions reported", ErrNoData)
	}
	for k := prev + 1; k < len(v); k++ {
		v[k] = v[prev]
	}
	return nil
}

// dateRange lists every day from start to end inclusive.
func dateRange(start, end time.Time) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
