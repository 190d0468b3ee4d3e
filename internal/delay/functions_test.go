package delay

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// helper: compare floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// --- BuildDelayMatrix tests ---

// Entry (i,j) must be j-i on and above the diagonal for every size.
func TestBuildDelayMatrix_Offsets(t *testing.T) {
	for _, n := range []int{1, 2, 5, 17} {
		dm, err := BuildDelayMatrix(n, n, 0)
		if err != nil {
			t.Fatalf("BuildDelayMatrix(%d) returned error: %v", n, err)
		}
		if dm.Rows != n || dm.Cols != n {
			t.Fatalf("dims = %dx%d, want %dx%d", dm.Rows, dm.Cols, n, n)
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if !dm.Upper(i, j) {
					if j >= i {
						t.Errorf("Upper(%d,%d) = false, want true", i, j)
					}
					continue
				}
				if got := dm.At(i, j); got != j-i {
					t.Errorf("At(%d,%d) = %d, want %d", i, j, got, j-i)
				}
			}
		}
	}
}

// Rows must be non-decreasing left to right.
func TestBuildDelayMatrix_RowsNonDecreasing(t *testing.T) {
	dm, err := BuildDelayMatrix(8, 8, 0)
	if err != nil {
		t.Fatalf("BuildDelayMatrix returned error: %v", err)
	}
	for i := 0; i < dm.Rows; i++ {
		for j := 1; j < dm.Cols; j++ {
			if dm.At(i, j) < dm.At(i, j-1) {
				t.Errorf("row %d decreases at column %d", i, j)
			}
		}
	}
}

// Non-square request crops the square working matrix; firstValue shifts every diagonal.
func TestBuildDelayMatrix_CropAndFirstValue(t *testing.T) {
	dm, err := BuildDelayMatrix(2, 4, 3)
	if err != nil {
		t.Fatalf("BuildDelayMatrix returned error: %v", err)
	}
	// row 0: 3 4 5 6, row 1: - 3 4 5
	want := [][]int{{3, 4, 5, 6}, {0, 3, 4, 5}}
	for i := range want {
		for j := range want[i] {
			if got := dm.At(i, j); got != want[i][j] {
				t.Errorf("At(%d,%d) = %d, want %d", i, j, got, want[i][j])
			}
		}
	}
	if dm.MaxOffset() != 6 {
		t.Errorf("MaxOffset = %d, want 6", dm.MaxOffset())
	}
}

func TestBuildDelayMatrix_Empty(t *testing.T) {
	if _, err := BuildDelayMatrix(0, 3, 0); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

// --- ExponentialCDFDiff tests ---

// Masses are probabilities, sum to at most 1 and decrease once past offset 0.
func TestExponentialCDFDiff_Properties(t *testing.T) {
	for _, lambda := range []float64{0.1, 0.5, 0.96, 1, 3, 20} {
		probs, err := OffsetProbabilities(60, lambda)
		if err != nil {
			t.Fatalf("lambda=%v: unexpected error %v", lambda, err)
		}
		for k, p := range probs {
			if p < 0 || p > 1 {
				t.Errorf("lambda=%v: probs[%d] = %v out of [0,1]", lambda, k, p)
			}
		}
		if s := floats.Sum(probs); s > 1+1e-12 {
			t.Errorf("lambda=%v: sum = %v > 1", lambda, s)
		}
		for k := 2; k < len(probs); k++ {
			if probs[k] > probs[k-1]+1e-15 {
				t.Errorf("lambda=%v: probs[%d]=%v > probs[%d]=%v", lambda, k, probs[k], k-1, probs[k-1])
			}
		}
		// offset 0 only covers half a unit interval, so it leads only for lambda >= ~0.962
		if lambda >= 1 && probs[1] > probs[0] {
			t.Errorf("lambda=%v: probs[1]=%v > probs[0]=%v", lambda, probs[1], probs[0])
		}
	}
}

// Log-space evaluation must agree with the plain exponential CDF.
func TestExponentialCDFDiff_MatchesDistuv(t *testing.T) {
	lambda := 0.7
	exp := distuv.Exponential{Rate: lambda}
	points := []float64{-0.5, 0.5, 1.5, 2.5, 3.5}
	got, err := ExponentialCDFDiff(points, lambda)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range got {
		want := exp.CDF(points[i+1]) - exp.CDF(math.Max(points[i], 0))
		if !almostEqual(got[i], want, 1e-12) {
			t.Errorf("probs[%d] = %v, want %v", i, got[i], want)
		}
	}
	// first bin is 1 - exp(-lambda/2)
	if !almostEqual(got[0], 1-math.Exp(-lambda/2), 1e-12) {
		t.Errorf("probs[0] = %v, want %v", got[0], 1-math.Exp(-lambda/2))
	}
}

// Tiny masses far in the tail must stay positive, not cancel to zero.
func TestExponentialCDFDiff_SmallRatePrecision(t *testing.T) {
	probs, err := ExponentialCDFDiff([]float64{0, 1e-9}, 1e-6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if probs[0] <= 0 {
		t.Errorf("probs[0] = %v, want > 0", probs[0])
	}
}

func TestExponentialCDFDiff_InvalidRate(t *testing.T) {
	for _, lambda := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := ExponentialCDFDiff([]float64{-0.5, 0.5}, lambda); !errors.Is(err, ErrInvalidRate) {
			t.Errorf("lambda=%v: expected ErrInvalidRate, got %v", lambda, err)
		}
	}
}

// Decreasing points would turn the differences negative, so they are rejected.
func TestExponentialCDFDiff_NonMonotonicPoints(t *testing.T) {
	for _, points := range [][]float64{
		{2.5, 1.5, 0.5},
		{-0.5, 0.5, 0.4, 1.5},
		{-0.5, math.NaN(), 1.5},
	} {
		if _, err := ExponentialCDFDiff(points, 0.5); !errors.Is(err, ErrShape) {
			t.Errorf("points=%v: expected ErrShape, got %v", points, err)
		}
	}
	// repeated points are allowed and give zero mass
	out, err := ExponentialCDFDiff([]float64{0.5, 0.5, 1.5}, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != 0 {
		t.Errorf("out[0] = %v, want 0", out[0])
	}
}

// --- DelayCases tests ---

// A very fast delay puts all mass at offset 0, so the series passes through unchanged.
func TestDelayCases_NoDelay(t *testing.T) {
	latent := []float64{5, 0, 12, 3, 7, 1}
	dm, _ := BuildDelayMatrix(len(latent), len(latent), 0)
	got, err := DelayCases(latent, 1e6, dm)
	if err != nil {
		t.Fatalf("DelayCases returned error: %v", err)
	}
	for i := range latent {
		if !almostEqual(got[i], latent[i], 1e-9) {
			t.Errorf("expected[%d] = %v, want %v", i, got[i], latent[i])
		}
	}
}

func TestDelayCases_ZeroInput(t *testing.T) {
	latent := make([]float64, 20)
	dm, _ := BuildDelayMatrix(len(latent), len(latent), 0)
	for _, lambda := range []float64{0.1, 1, 15} {
		got, err := DelayCases(latent, lambda, dm)
		if err != nil {
			t.Fatalf("DelayCases returned error: %v", err)
		}
		for i, v := range got {
			if v != 0 {
				t.Errorf("lambda=%v: expected[%d] = %v, want 0", lambda, i, v)
			}
		}
	}
}

// expected[j] = sum_{i<=j} latent[i] * p[j-i], checked against a direct loop.
func TestDelayCases_MatchesDirectSum(t *testing.T) {
	latent := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	lambda := 0.4
	dm, _ := BuildDelayMatrix(len(latent), len(latent), 0)
	got, err := DelayCases(latent, lambda, dm)
	if err != nil {
		t.Fatalf("DelayCases returned error: %v", err)
	}
	probs, _ := OffsetProbabilities(len(latent), lambda)
	for j := range latent {
		want := 0.0
		for i := 0; i <= j; i++ {
			want += latent[i] * probs[j-i]
		}
		if !almostEqual(got[j], want, 1e-10) {
			t.Errorf("expected[%d] = %v, want %v", j, got[j], want)
		}
	}
}

// Constant 1000 cases/day at rate 0.1 with ~90% of the delay mass inside 3 days:
// the outcome rises from the start and settles near 100/day within about 5 days.
func TestDelayCases_Plateau(t *testing.T) {
	n := 100
	lambda := math.Log(10) / 3.5 // P(delay <= 3) = 0.9
	latent := make([]float64, n)
	for i := range latent {
		latent[i] = 1000 * 0.1
	}
	dm, _ := BuildDelayMatrix(n, n, 0)
	got, err := DelayCases(latent, lambda, dm)
	if err != nil {
		t.Fatalf("DelayCases returned error: %v", err)
	}
	if got[0] >= 50 {
		t.Errorf("expected[0] = %v, want well below the plateau", got[0])
	}
	for j := 1; j < n; j++ {
		if got[j] < got[j-1]-1e-9 {
			t.Errorf("expected series decreases at %d: %v < %v", j, got[j], got[j-1])
		}
	}
	for j := 5; j < n; j++ {
		if !almostEqual(got[j], 100, 5) {
			t.Errorf("expected[%d] = %v, want ~100", j, got[j])
		}
	}
	if !almostEqual(got[n-1], 100, 1e-6) {
		t.Errorf("expected[%d] = %v, want 100", n-1, got[n-1])
	}
}

func TestKernelApply_ShapeMismatch(t *testing.T) {
	dm, _ := BuildDelayMatrix(5, 5, 0)
	k, err := NewKernel(1, dm)
	if err != nil {
		t.Fatalf("NewKernel returned error: %v", err)
	}
	if _, err := k.Apply(make([]float64, 4)); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

// The lower triangle never carries probability.
func TestNewKernel_LowerTriangleMasked(t *testing.T) {
	dm, _ := BuildDelayMatrix(6, 6, 0)
	k, err := NewKernel(0.3, dm)
	if err != nil {
		t.Fatalf("NewKernel returned error: %v", err)
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < i; j++ {
			if v := k.P.At(i, j); v != 0 {
				t.Errorf("P(%d,%d) = %v, want 0", i, j, v)
			}
		}
	}
}

// --- ImpulseResponse tests ---

func TestImpulseResponse_IsKernel(t *testing.T) {
	lambda := 0.25
	irf, err := ImpulseResponse(lambda, 10)
	if err != nil {
		t.Fatalf("ImpulseResponse returned error: %v", err)
	}
	probs, _ := OffsetProbabilities(10, lambda)
	for d := range irf {
		if !almostEqual(irf[d], probs[d], 1e-12) {
			t.Errorf("irf[%d] = %v, want %v", d, irf[d], probs[d])
		}
	}
}

func TestMeanDelay(t *testing.T) {
	// a fast delay concentrates at 0
	m, err := MeanDelay(50, 30)
	if err != nil {
		t.Fatalf("MeanDelay returned error: %v", err)
	}
	if !almostEqual(m, 0, 1e-9) {
		t.Errorf("MeanDelay = %v, want 0", m)
	}
	// a slow delay sits near 1/lambda
	m, _ = MeanDelay(0.1, 500)
	if !almostEqual(m, 10, 0.5) {
		t.Errorf("MeanDelay = %v, want ~10", m)
	}
}
