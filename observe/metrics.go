// Package observe holds the OpenTelemetry instruments recorded by the
// detection pipeline and the Prometheus bridge that exposes them.
//
// Tests should build their own [Metrics] with [NewMetrics] and a manual reader
// rather than sharing [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/RyanBlaney/sonido-chroma"

// Metrics holds every instrument the pipeline records. All fields are safe
// for concurrent use. None of them may be touched from the audio thread.
type Metrics struct {
	// FramesQueued counts items handed from the audio thread to analysis.
	// Attribute: unit = frame|quantum
	FramesQueued metric.Int64Counter

	// FramesDropped counts items lost to a full queue.
	// Attribute: unit = frame|quantum
	FramesDropped metric.Int64Counter

	// InferenceDuration tracks model forward-pass latency. Attribute: model
	InferenceDuration metric.Float64Histogram

	// InferenceErrors counts failed forward passes. Attribute: model
	InferenceErrors metric.Int64Counter

	// InferenceInFlight tracks concurrent forward passes
	InferenceInFlight metric.Int64UpDownCounter

	// ModelLoadDuration tracks model load latency.
	// Attributes: model, status = ok|error
	ModelLoadDuration metric.Float64Histogram

	// AnalysisPasses counts spectral analysis passes
	AnalysisPasses metric.Int64Counter

	// StaleResults counts estimates discarded after a mode switch
	StaleResults metric.Int64Counter

	// Detections counts published results that carried a chroma.
	// Attributes: mode, chroma
	Detections metric.Int64Counter

	// ModeSwitches counts successful mode changes. Attribute: mode
	ModeSwitches metric.Int64Counter
}

// inferenceBuckets are in seconds; one frame is 48 ms of audio at 16 kHz
var inferenceBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.048, 0.1, 0.25, 1,
}

var loadBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates the instruments on mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesQueued, err = m.Int64Counter("chroma.frames.queued",
		metric.WithDescription("Frames and quanta handed to analysis."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("chroma.frames.dropped",
		metric.WithDescription("Frames and quanta dropped because analysis fell behind."),
	); err != nil {
		return nil, err
	}

	if met.InferenceDuration, err = m.Float64Histogram("chroma.inference.duration",
		metric.WithDescription("Latency of one model forward pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceErrors, err = m.Int64Counter("chroma.inference.errors",
		metric.WithDescription("Failed model forward passes."),
	); err != nil {
		return nil, err
	}
	if met.InferenceInFlight, err = m.Int64UpDownCounter("chroma.inference.in_flight",
		metric.WithDescription("Forward passes currently running."),
	); err != nil {
		return nil, err
	}

	if met.ModelLoadDuration, err = m.Float64Histogram("chroma.model.load.duration",
		metric.WithDescription("Latency of loading a model from disk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(loadBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AnalysisPasses, err = m.Int64Counter("chroma.analysis.passes",
		metric.WithDescription("Spectral analysis passes."),
	); err != nil {
		return nil, err
	}
	if met.StaleResults, err = m.Int64Counter("chroma.results.stale",
		metric.WithDescription("Estimates discarded because the mode changed while they ran."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("chroma.detections",
		metric.WithDescription("Published results carrying a chroma, by mode and chroma."),
	); err != nil {
		return nil, err
	}
	if met.ModeSwitches, err = m.Int64Counter("chroma.mode.switches",
		metric.WithDescription("Successful detection mode changes."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics built on the global meter
// provider. It panics if the instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordQueued adds n queued items of a unit (frame or quantum)
func (m *Metrics) RecordQueued(ctx context.Context, unit string, n int64) {
	if n == 0 {
		return
	}
	m.FramesQueued.Add(ctx, n, metric.WithAttributes(attribute.String("unit", unit)))
}

// RecordDropped adds n dropped items of a unit (frame or quantum)
func (m *Metrics) RecordDropped(ctx context.Context, unit string, n int64) {
	if n == 0 {
		return
	}
	m.FramesDropped.Add(ctx, n, metric.WithAttributes(attribute.String("unit", unit)))
}

// RecordInference records one forward pass and its outcome
func (m *Metrics) RecordInference(ctx context.Context, model string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.InferenceDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.InferenceErrors.Add(ctx, 1, attrs)
	}
}

// RecordModelLoad records one model load attempt
func (m *Metrics) RecordModelLoad(ctx context.Context, model string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ModelLoadDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	))
}

// RecordDetection counts a published chroma
func (m *Metrics) RecordDetection(ctx context.Context, mode, chroma string) {
	m.Detections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("chroma", chroma),
	))
}

// RecordModeSwitch counts a successful mode change
func (m *Metrics) RecordModeSwitch(ctx context.Context, mode string) {
	m.ModeSwitches.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
