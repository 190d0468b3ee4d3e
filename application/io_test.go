package main

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/Markfds01/shine-switchpoints/internal/pipeline"
	"github.com/Markfds01/shine-switchpoints/internal/posterior"
)

// helper: compare floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func testRows() []posterior.Row {
	return []posterior.Row{
		{Name: "switchpoint", Component: 0, Mean: 40, SD: 2, Q025: 36, Q50: 40, Q975: 44, RHat: 1.01},
		{Name: "rate", Component: 0, Mean: 0.1, SD: 0.01, Q025: 0.08, Q50: 0.1, Q975: 0.12, RHat: 1},
		{Name: "rate", Component: 1, Mean: 0.3, SD: 0.02, Q025: 0.26, Q50: 0.3, Q975: 0.34, RHat: 1},
	}
}

// --- SummaryMatrix tests ---

func TestSummaryMatrix_Layout(t *testing.T) {
	m := SummaryMatrix(testRows())
	if r, c := m.Dims(); r != 3 || c != len(summaryColumns) {
		t.Fatalf("dims = %dx%d, want 3x%d", r, c, len(summaryColumns))
	}
	if m.At(0, 0) != 40 || m.At(2, 4) != 0.34 || m.At(0, 5) != 1.01 {
		t.Fatalf("unexpected entries: %v %v %v", m.At(0, 0), m.At(2, 4), m.At(0, 5))
	}
}

func TestSummaryMatrix_Empty(t *testing.T) {
	if m := SummaryMatrix(nil); m != nil {
		t.Fatalf("expected nil matrix, got %v", m)
	}
}

func TestRowLabels(t *testing.T) {
	got := RowLabels(testRows(), map[string]int{"switchpoint": 1, "rate": 2})
	want := []string{"switchpoint", "rate[0]", "rate[1]"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("label %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// --- DelayProfile tests ---

// Day 0 gets the exponential mass on [0, 0.5), day d >= 1 the mass on
// [d-0.5, d+0.5).
func TestDelayProfile_Exponential(t *testing.T) {
	lambda := 0.5
	p, err := DelayProfile(lambda, 5)
	if err != nil {
		t.Fatalf("DelayProfile returned error: %v", err)
	}
	for d := 0; d < 5; d++ {
		want := math.Exp(-lambda*(float64(d)-0.5)) - math.Exp(-lambda*(float64(d)+0.5))
		if d == 0 {
			want = 1 - math.Exp(-lambda*0.5)
		}
		if !almostEqual(p.At(d, 0), want, 1e-9) {
			t.Fatalf("day %d = %v, want %v", d, p.At(d, 0), want)
		}
	}
}

func TestDelayProfile_BadHorizon(t *testing.T) {
	if _, err := DelayProfile(0.5, 0); err == nil {
		t.Fatal("expected error for zero horizon")
	}
}

// --- PrintReport tests ---

func TestPrintReport_FailedAgeGroup(t *testing.T) {
	var buf bytes.Buffer
	rep := &pipeline.Report{
		AgeFits: []pipeline.Result{{Group: "80+", Err: errors.New("region not found")}},
	}
	PrintReport(&buf, rep)
	out := buf.String()
	if !strings.Contains(out, "Age group 80+ failed") {
		t.Fatalf("missing failure line in %q", out)
	}
}

func TestPrintReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, &pipeline.Report{})
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
