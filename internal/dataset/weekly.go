package dataset

import (
	"os"
	"time"
)

// WeekEnding returns the Monday closing the week that contains d; a Monday
// closes its own week.
func WeekEnding(d time.Time) time.Time {
	offset := (int(time.Monday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}

// AggregateWeekly sums s into weeks ending on Monday. Weeks between the
// first and the last with no rows are kept as zeros.
func AggregateWeekly(s *Series) *Series {
	if s.Len() == 0 {
		return &Series{}
	}
	first := WeekEnding(s.Dates[0])
	last := first
	for _, d := range s.Dates {
		if w := WeekEnding(d); w.After(last) {
			last = w
		}
	}

	var out Series
	index := make(map[time.Time]int)
	for w := first; !w.After(last); w = w.AddDate(0, 0, 7) {
		index[w] = len(out.Dates)
		out.Dates = append(out.Dates, w)
	}
	out.Cases = make([]float64, len(out.Dates))
	out.Observed = make([]float64, len(out.Dates))
	for i, d := range s.Dates {
		k := index[WeekEnding(d)]
		out.Cases[k] += s.Cases[i]
		out.Observed[k] += s.Observed[i]
	}
	return &out
}

// RollingMean is the trailing mean over up to window values.
func RollingMean(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	sum := 0.0
	for i, v := range x {
		sum += v
		if i >= window {
			sum -= x[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
