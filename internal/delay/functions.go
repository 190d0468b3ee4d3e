package delay

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// BuildDelayMatrix fills diagonal d of a square working matrix of size
// max(nRows, nCols) with firstValue+d, then crops it to nRows x nCols.
// HOW TO USE:
// dm, _ := BuildDelayMatrix(len(cases), len(cases), 0)
// dm.At(2, 5) // 3
func BuildDelayMatrix(nRows, nCols, firstValue int) (*DelayMatrix, error) {
	if nRows <= 0 || nCols <= 0 {
		return nil, fmt.Errorf("%w: delay matrix must be at least 1x1, got %dx%d", ErrShape, nRows, nCols)
	}

	size := nRows
	if nCols > size {
		size = nCols
	}

	// working matrix, lower triangle stays zero and is masked by Upper
	work := make([]int, size*size)
	for d := 0; d < size; d++ {
		for i := 0; i+d < size; i++ {
			work[i*size+i+d] = firstValue + d
		}
	}

	// crop to the requested shape
	offsets := make([]int, nRows*nCols)
	for i := 0; i < nRows; i++ {
		copy(offsets[i*nCols:(i+1)*nCols], work[i*size:i*size+nCols])
	}

	return &DelayMatrix{Rows: nRows, Cols: nCols, offsets: offsets}, nil
}

// ExponentialCDFDiff evaluates the exponential CDF with rate lambda at every
// point, in log space, and returns the first difference cdf[1:] - cdf[:-1].
// With points = k - 0.5 for k = 0..n, entry k is the mass the distribution
// places on the unit interval centred on offset k. points must be
// non-decreasing.
func ExponentialCDFDiff(points []float64, lambda float64) ([]float64, error) {
	if err := checkRate(lambda); err != nil {
		return nil, err
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 evaluation points, got %d", ErrShape, len(points))
	}
	for i, x := range points {
		if math.IsNaN(x) || (i > 0 && x < points[i-1]) {
			return nil, fmt.Errorf("%w: evaluation points must be non-decreasing, got %v at index %d", ErrShape, x, i)
		}
	}

	cdf := make([]float64, len(points))
	for i, x := range points {
		cdf[i] = math.Exp(logExponentialCDF(x, lambda))
	}

	out := make([]float64, len(points)-1)
	for i := range out {
		out[i] = cdf[i+1] - cdf[i]
	}
	return out, nil
}

// logExponentialCDF returns log(1 - exp(-lambda*x)), computed with Expm1 so
// that small probabilities keep their precision.
func logExponentialCDF(x, lambda float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return math.Log(-math.Expm1(-lambda * x))
}

// OffsetProbabilities returns the per-offset delay mass for offsets 0..n-1.
func OffsetProbabilities(n int, lambda float64) ([]float64, error) {
	points := make([]float64, n+1)
	for i := range points {
		points[i] = float64(i) - 0.5
	}
	return ExponentialCDFDiff(points, lambda)
}

// NewKernel converts a delay matrix into the upper triangular probability
// matrix for the given rate.
func NewKernel(lambda float64, dm *DelayMatrix) (*Kernel, error) {
	if dm == nil {
		return nil, fmt.Errorf("%w: nil delay matrix", ErrShape)
	}
	probs, err := OffsetProbabilities(dm.MaxOffset()+1, lambda)
	if err != nil {
		return nil, err
	}

	P := mat.NewDense(dm.Rows, dm.Cols, nil)
	for i := 0; i < dm.Rows; i++ {
		for j := 0; j < dm.Cols; j++ {
			if !dm.Upper(i, j) {
				continue
			}
			P.Set(i, j, probs[dm.At(i, j)])
		}
	}
	return &Kernel{Lambda: lambda, P: P}, nil
}

// Apply spreads each day of latent forward over later days:
// out[j] = sum_{i<=j} latent[i] * P(delay = j-i).
func (k *Kernel) Apply(latent []float64) ([]float64, error) {
	rows, cols := k.P.Dims()
	if len(latent) != rows {
		return nil, fmt.Errorf("%w: latent series has %d days, kernel expects %d", ErrShape, len(latent), rows)
	}

	// row vector times matrix is P^T times column vector
	var out mat.VecDense
	out.MulVec(k.P.T(), mat.NewVecDense(rows, latent))

	res := make([]float64, cols)
	for j := range res {
		res[j] = out.AtVec(j)
	}
	return res, nil
}

// DelayCases convolves latent against the exponential delay kernel built from dm.
// Returns the expected outcome series, same length as latent.
func DelayCases(latent []float64, lambda float64, dm *DelayMatrix) ([]float64, error) {
	k, err := NewKernel(lambda, dm)
	if err != nil {
		return nil, err
	}
	return k.Apply(latent)
}

// ImpulseResponse returns the outcome profile produced by a single unit
// case on day 0, over horizon days. It is the delay distribution itself,
// truncated to the horizon.
func ImpulseResponse(lambda float64, horizon int) ([]float64, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon must be > 0", ErrShape)
	}
	dm, err := BuildDelayMatrix(horizon, horizon, 0)
	if err != nil {
		return nil, err
	}
	shock := make([]float64, horizon)
	shock[0] = 1.0
	return DelayCases(shock, lambda, dm)
}

// MeanDelay returns the expected delay in days of the discretised kernel,
// restricted to offsets below horizon.
func MeanDelay(lambda float64, horizon int) (float64, error) {
	probs, err := OffsetProbabilities(horizon, lambda)
	if err != nil {
		return 0, err
	}
	mass, mean := 0.0, 0.0
	for d, p := range probs {
		mass += p
		mean += float64(d) * p
	}
	if mass == 0 {
		return 0, nil
	}
	return mean / mass, nil
}

func checkRate(lambda float64) error {
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) || lambda <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidRate, lambda)
	}
	return nil
}
