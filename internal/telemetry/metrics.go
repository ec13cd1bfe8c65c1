package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/wolfeidau/buildmerge"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Compose metrics
	ComposeTotal          metric.Int64Counter
	ComposeFragmentsTotal metric.Int64Counter
	ComposeConflictsTotal metric.Int64Counter

	// Bundle metrics
	BuildDuration        metric.Float64Histogram
	BuildErrorsTotal     metric.Int64Counter
	OutputBytesTotal     metric.Int64Counter
	CompressedBytesTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for compose and build spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.ComposeTotal, _ = meter.Int64Counter(
		"buildmerge.compose.total",
		metric.WithDescription("Total number of configurations composed"),
		metric.WithUnit("{config}"),
	)

	m.ComposeFragmentsTotal, _ = meter.Int64Counter(
		"buildmerge.compose.fragments.total",
		metric.WithDescription("Total number of fragments merged"),
		metric.WithUnit("{fragment}"),
	)

	m.ComposeConflictsTotal, _ = meter.Int64Counter(
		"buildmerge.compose.conflicts.total",
		metric.WithDescription("Total number of scalar overrides between fragments"),
		metric.WithUnit("{conflict}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"buildmerge.build.duration",
		metric.WithDescription("Duration of esbuild builds and rebuilds"),
		metric.WithUnit("ms"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"buildmerge.build.errors.total",
		metric.WithDescription("Total number of builds that reported errors"),
		metric.WithUnit("{build}"),
	)

	m.OutputBytesTotal, _ = meter.Int64Counter(
		"buildmerge.build.output.bytes",
		metric.WithDescription("Bytes written by esbuild"),
		metric.WithUnit("By"),
	)

	m.CompressedBytesTotal, _ = meter.Int64Counter(
		"buildmerge.build.compressed.bytes",
		metric.WithDescription("Bytes written by output pre-compression"),
		metric.WithUnit("By"),
	)

	return m
}
