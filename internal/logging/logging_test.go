package logging

import (
	"context"
	"testing"

	"github.com/go-logr/zapr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]int{"": INFO, "info": INFO, "DEBUG": DEBUG, "trace": TRACE, "4": 4}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"loud", "-1"} {
		_, err := ParseLevel(bad)
		assert.Error(t, err, bad)
	}
}

func TestNew_Verbosity(t *testing.T) {
	log, flush, err := New(DEBUG)
	require.NoError(t, err)
	defer flush()

	assert.True(t, log.V(DEBUG).Enabled())
	assert.False(t, log.V(TRACE).Enabled())
}

func TestNewTestLogger_EnablesTrace(t *testing.T) {
	assert.True(t, NewTestLogger().V(TRACE).Enabled())
}

func TestZaprCarriesKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.Level(-TRACE))
	log := zapr.NewLogger(zap.New(core))

	log.WithValues("model", "daily").V(DEBUG).Info("Sampling", "chains", 4)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Sampling", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "daily", ctx["model"])
	assert.EqualValues(t, 4, ctx["chains"])
}

func TestContext(t *testing.T) {
	assert.False(t, FromContext(context.Background()).Enabled())

	ctx := IntoContext(context.Background(), NewTestLogger())
	assert.True(t, FromContext(ctx).Enabled())
}
