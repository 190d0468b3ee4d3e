package delay

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidRate is returned when the exponential delay rate is not a finite positive number.
	ErrInvalidRate = errors.New("delay rate must be finite and > 0")
	// ErrShape is returned when series and matrix dimensions do not line up.
	ErrShape = errors.New("shape mismatch")
)

// DelayMatrix holds the integer delay offset between a case on day i (row)
// and an outcome on day j (column).
type DelayMatrix struct {
	// Dimensions, rows are case days and columns outcome days
	Rows, Cols int
	// Row-major offsets, offsets[i*Cols+j] = firstValue + (j-i) when j >= i
	offsets []int
}

// At returns the stored offset for (i, j). Entries below the diagonal are 0
// and carry no meaning; check Upper before using them.
func (dm *DelayMatrix) At(i, j int) int {
	return dm.offsets[i*dm.Cols+j]
}

// Upper reports whether an outcome on day j can be caused by a case on day i.
func (dm *DelayMatrix) Upper(i, j int) bool {
	return j >= i
}

// MaxOffset returns the largest offset stored in the matrix.
func (dm *DelayMatrix) MaxOffset() int {
	max := 0
	for _, v := range dm.offsets {
		if v > max {
			max = v
		}
	}
	return max
}

// Kernel is a delay probability matrix for a fixed rate.
// Entry (i, j) is the probability that a case on day i surfaces as an
// outcome on day j. It is never written to after NewKernel returns, so it
// may be shared by concurrent readers.
type Kernel struct {
	Lambda float64
	// Upper triangular N x N probability matrix
	P *mat.Dense
}
