package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	assert.Same(t, m, GetMetrics())

	assert.NotNil(t, m.ComposeTotal)
	assert.NotNil(t, m.ComposeFragmentsTotal)
	assert.NotNil(t, m.ComposeConflictsTotal)
	assert.NotNil(t, m.BuildDuration)
	assert.NotNil(t, m.BuildErrorsTotal)
	assert.NotNil(t, m.OutputBytesTotal)
	assert.NotNil(t, m.CompressedBytesTotal)

	// instruments from the no-op provider accept measurements
	m.ComposeTotal.Add(context.Background(), 1)
	m.BuildDuration.Record(context.Background(), 12.5)
}

func TestTracer(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "compose")
	defer span.End()
	assert.NotNil(t, span)
}
