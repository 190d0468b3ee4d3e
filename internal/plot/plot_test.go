package plot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	var sb strings.Builder
	err := Render(&sb, FanChart{
		Title:        "Hospital admissions, AN",
		YLabel:       "Daily number of admissions",
		DataPath:     "results/fit_bands.csv",
		OutputPath:   "results/fit's.png",
		Switchpoints: []string{"2020-09-01", "2021-01-10"},
	})
	require.NoError(t, err)

	script := sb.String()
	assert.Contains(t, script, "set terminal pngcairo size 1200,800")
	assert.Contains(t, script, "set output 'results/fit''s.png'")
	assert.Contains(t, script, "set title 'Hospital admissions, AN'")
	assert.Contains(t, script, "set arrow from '2020-09-01', graph 0")
	assert.Contains(t, script, "set arrow from '2021-01-10', graph 0")
	assert.Contains(t, script, "using 1:3:7 with filledcurves")
	assert.Contains(t, script, "title 'observed'")
}

func TestDraw_WithoutGnuplot(t *testing.T) {
	t.Setenv("PATH", "")
	assert.False(t, Available())
	assert.ErrorIs(t, Draw(context.Background(), FanChart{}), ErrUnavailable)
}
