// Package dataset loads the daily case and outcome series the models are
// fitted to, from the Spanish provincial dataset and Our World in Data
// country files.
package dataset

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRegionNotFound is returned for a region absent from the data.
	ErrRegionNotFound = errors.New("region not found")
	// ErrNotImplemented is returned for combinations the sources do not
	// carry, e.g. deaths for non-Spanish countries.
	ErrNotImplemented = errors.New("not implemented")
	// ErrNoData is returned when the requested window holds no rows.
	ErrNoData = errors.New("no data in the requested window")
)

// DateLayout is the date format of every source file and of Request dates.
const DateLayout = "2006-01-02"

// Request selects a region and an inclusive date window.
type Request struct {
	// Two-letter Spanish community code, "Spain", or an OWID country name
	Region string
	Start  time.Time
	End    time.Time
	// Sum into weeks ending on Monday
	AggregateWeek bool
	// Observed series is deaths instead of hospital admissions
	Deaths bool
}

// Series is a pair of aligned count series.
type Series struct {
	Dates    []time.Time
	Cases    []float64
	Observed []float64
}

// Len is the number of time points.
func (s *Series) Len() int { return len(s.Dates) }

// AgeSeries is the Series of one age group.
type AgeSeries struct {
	Group string
	Series
}

// Loader is the data source used by the training pipeline.
type Loader interface {
	Load(ctx context.Context, req Request) (*Series, error)
	LoadAges(ctx context.Context, req Request) ([]AgeSeries, error)
}

// IsSpanish reports whether region refers to the Spanish dataset.
func IsSpanish(region string) bool {
	return len(region) == 2 || region == "Spain"
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
