// Package observe provides application-wide observability primitives for
// livetl: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware that ties them together.
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

// meterName is the instrumentation scope name used for all livetl metrics.
const meterName = "github.com/sorane/livetl"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRDuration tracks speech recognition latency per segment.
	ASRDuration metric.Float64Histogram

	// TranslateDuration tracks translation latency per segment.
	TranslateDuration metric.Float64Histogram

	// SubtitleLatency tracks end-to-end latency from segment sealing to
	// subtitle emission, including retries and reorder-buffer wait.
	SubtitleLatency metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsSealed counts utterances sealed by the segmenter.
	SegmentsSealed metric.Int64Counter

	// SegmentsCompleted counts segments that produced a subtitle event.
	SegmentsCompleted metric.Int64Counter

	// SegmentsFailed counts segments abandoned after exhausting retries or
	// exceeding the staleness ceiling. Use with attribute:
	//   attribute.String("stage", "asr"|"translate"|"stale")
	SegmentsFailed metric.Int64Counter

	// SegmentsDiscarded counts utterances dropped before dispatch for being
	// shorter than the minimum speech duration.
	SegmentsDiscarded metric.Int64Counter

	// EventsPublished counts subtitle events fanned out by the hub.
	EventsPublished metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// EventsDropped counts subtitle events dropped from slow subscriber
	// queues. Use with attribute: attribute.String("subscriber", ...)
	EventsDropped metric.Int64Counter

	// --- Gauges ---

	// ActiveViewers tracks the number of connected subtitle viewers.
	ActiveViewers metric.Int64UpDownCounter

	// InFlightSegments tracks segments currently being recognised or
	// translated.
	InFlightSegments metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) chosen for
// speech-pipeline latencies: sub-second provider calls up to multi-second
// retry chains.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ASRDuration, err = m.Float64Histogram("livetl.asr.duration",
		metric.WithDescription("Latency of speech recognition per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslateDuration, err = m.Float64Histogram("livetl.translate.duration",
		metric.WithDescription("Latency of translation per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SubtitleLatency, err = m.Float64Histogram("livetl.subtitle.latency",
		metric.WithDescription("End-to-end latency from segment sealing to subtitle emission."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("livetl.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsSealed, err = m.Int64Counter("livetl.segments.sealed",
		metric.WithDescription("Total utterances sealed by the segmenter."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsCompleted, err = m.Int64Counter("livetl.segments.completed",
		metric.WithDescription("Total segments that produced a subtitle event."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsFailed, err = m.Int64Counter("livetl.segments.failed",
		metric.WithDescription("Total segments abandoned, by failing stage."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDiscarded, err = m.Int64Counter("livetl.segments.discarded",
		metric.WithDescription("Total utterances discarded for being below the minimum speech duration."),
	); err != nil {
		return nil, err
	}
	if met.EventsPublished, err = m.Int64Counter("livetl.events.published",
		metric.WithDescription("Total subtitle events fanned out by the broadcast hub."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("livetl.provider.requests",
		metric.WithDescription("Total provider API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("livetl.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("livetl.events.dropped",
		metric.WithDescription("Total subtitle events dropped from slow subscriber queues."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveViewers, err = m.Int64UpDownCounter("livetl.active_viewers",
		metric.WithDescription("Number of connected subtitle viewers."),
	); err != nil {
		return nil, err
	}
	if met.InFlightSegments, err = m.Int64UpDownCounter("livetl.inflight_segments",
		metric.WithDescription("Segments currently in recognition or translation."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSegmentFailed records a failed segment with the stage that caused
// the failure.
func (m *Metrics) RecordSegmentFailed(ctx context.Context, stage string) {
	m.SegmentsFailed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
