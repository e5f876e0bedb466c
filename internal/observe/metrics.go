// Package observe wires OpenTelemetry metrics and traces plus the slog
// logger used across dubstudio.
//
// Instruments are created from a [metric.MeterProvider]; tests pass a
// provider backed by a ManualReader, the CLI passes the global provider
// configured by [InitProvider].
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/forPelevin/dubstudio"

// Metrics holds the instruments recorded by the pipeline and the muxer.
type Metrics struct {
	// StageDuration tracks orchestrator stage latency. Attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	StageDuration metric.Float64Histogram

	// MuxDuration tracks wall time spent in a mux job. Attribute:
	//   attribute.String("state", ...)
	MuxDuration metric.Float64Histogram

	// RemoteCalls counts collaborator calls. Attributes:
	//   attribute.String("service", ...), attribute.String("status", ...)
	RemoteCalls metric.Int64Counter

	// Runs counts pipeline runs by outcome.
	Runs metric.Int64Counter

	// SynthesizedSeconds accumulates the length of synthesized audio.
	SynthesizedSeconds metric.Float64Counter
}

var stageBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("dubstudio.stage.duration",
		metric.WithDescription("Latency of a pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MuxDuration, err = m.Float64Histogram("dubstudio.mux.duration",
		metric.WithDescription("Wall time of a mux job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RemoteCalls, err = m.Int64Counter("dubstudio.remote.calls",
		metric.WithDescription("Calls made to remote collaborators."),
	); err != nil {
		return nil, err
	}
	if met.Runs, err = m.Int64Counter("dubstudio.runs",
		metric.WithDescription("Pipeline runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SynthesizedSeconds, err = m.Float64Counter("dubstudio.tts.audio",
		metric.WithDescription("Seconds of synthesized speech."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status(err)),
	))
}

func (m *Metrics) RecordMux(ctx context.Context, state string, d time.Duration) {
	m.MuxDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("state", state)))
}

func (m *Metrics) RecordRemoteCall(ctx context.Context, service string, err error) {
	m.RemoteCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("status", status(err)),
	))
}

func (m *Metrics) RecordRun(ctx context.Context, err error) {
	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status(err))))
}

func (m *Metrics) RecordSynthesized(ctx context.Context, d time.Duration) {
	m.SynthesizedSeconds.Add(ctx, d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
