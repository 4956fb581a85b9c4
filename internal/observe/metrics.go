// Package observe provides application-wide observability primitives for the
// segmentation service: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all service metrics.
const meterName = "github.com/TamNguyen8021/meeting-note-summarizer-sub001"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Ingest ---

	// FramesAccepted counts frames appended to the ingest buffer.
	FramesAccepted metric.Int64Counter

	// FramesRejected counts dropped frames. Use with attribute:
	//   attribute.String("reason", ...)
	FramesRejected metric.Int64Counter

	// ChunksDropped counts per-chunk analyses skipped because the worker
	// queue was full.
	ChunksDropped metric.Int64Counter

	// BufferedSamples tracks per-channel samples held in the long window.
	BufferedSamples metric.Int64UpDownCounter

	// --- Segments ---

	// SegmentsEmitted counts emitted segments. Use with attribute:
	//   attribute.String("trigger", ...)
	SegmentsEmitted metric.Int64Counter

	// FinalizeDuration tracks the latency of cutting and analysing a segment.
	FinalizeDuration metric.Float64Histogram

	// SegmentQuality records the quality score of each emitted segment.
	SegmentQuality metric.Float64Histogram

	// ProcessingErrors counts recoverable processing failures. Use with
	// attribute:
	//   attribute.String("stage", ...)
	ProcessingErrors metric.Int64Counter

	// --- Hand-off ---

	// TranscriptionDuration tracks hand-off transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Streams ---

	// ActiveSubscribers tracks live feed subscribers. Use with attribute:
	//   attribute.String("stream", ...)
	ActiveSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// finalize and transcription latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// scoreBuckets covers the [0, 1] quality score range.
var scoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Ingest.
	if met.FramesAccepted, err = m.Int64Counter("segmenter.frames.accepted",
		metric.WithDescription("Total frames appended to the ingest buffer."),
	); err != nil {
		return nil, err
	}
	if met.FramesRejected, err = m.Int64Counter("segmenter.frames.rejected",
		metric.WithDescription("Total frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("segmenter.chunks.dropped",
		metric.WithDescription("Per-chunk analyses skipped because the worker queue was full."),
	); err != nil {
		return nil, err
	}
	if met.BufferedSamples, err = m.Int64UpDownCounter("segmenter.buffer.samples",
		metric.WithDescription("Per-channel samples currently held for segmentation."),
	); err != nil {
		return nil, err
	}

	// Segments.
	if met.SegmentsEmitted, err = m.Int64Counter("segmenter.segments.emitted",
		metric.WithDescription("Total segments emitted by trigger."),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("segmenter.finalize.duration",
		metric.WithDescription("Latency of cutting and analysing a segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentQuality, err = m.Float64Histogram("segmenter.segment.quality",
		metric.WithDescription("Quality score of emitted segments."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProcessingErrors, err = m.Int64Counter("segmenter.processing.errors",
		metric.WithDescription("Total recoverable processing failures by stage."),
	); err != nil {
		return nil, err
	}

	// Hand-off.
	if met.TranscriptionDuration, err = m.Float64Histogram("segmenter.transcription.duration",
		metric.WithDescription("Latency of segment transcription hand-off."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("segmenter.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("segmenter.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("segmenter.provider.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and new state."),
	); err != nil {
		return nil, err
	}

	// Streams.
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("segmenter.stream.subscribers",
		metric.WithDescription("Number of live feed subscribers by stream."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("segmenter.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameRejected records a dropped frame with its reason.
func (m *Metrics) RecordFrameRejected(ctx context.Context, reason string) {
	m.FramesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordSegment records an emitted segment's trigger, quality score and
// finalize latency in seconds.
func (m *Metrics) RecordSegment(ctx context.Context, trigger string, quality, seconds float64) {
	m.SegmentsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
	m.SegmentQuality.Record(ctx, quality)
	m.FinalizeDuration.Record(ctx, seconds)
}

// RecordProcessingError records a recoverable processing failure.
func (m *Metrics) RecordProcessingError(ctx context.Context, stage string) {
	m.ProcessingErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition records a provider's circuit breaker entering
// state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}

// RecordTranscription records the latency of a successful hand-off
// transcription by provider.
func (m *Metrics) RecordTranscription(ctx context.Context, provider string, seconds float64) {
	m.TranscriptionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("provider", provider)))
}
