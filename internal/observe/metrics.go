// Package observe provides the observability primitives for Sentir:
// OpenTelemetry metrics, tracing helpers, and HTTP middleware tying them
// together.
//
// Metrics are recorded through the OTel Metrics API and exported via the
// Prometheus bridge set up by [InitProvider], so the standard /metrics
// endpoint keeps working. Tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all Sentir metrics.
const meterName = "github.com/sentirlabs/sentir"

// Metrics holds the application's metric instruments. The underlying OTel
// types are safe for concurrent use.
type Metrics struct {
	// ChatDuration tracks companion chat completion latency.
	ChatDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// MediaDuration tracks image and video generation latency. Use with
	// attribute.String("kind", "image"|"video").
	MediaDuration metric.Float64Histogram

	// LiveSessionDuration tracks the wall-clock length of live voice
	// sessions.
	LiveSessionDuration metric.Float64Histogram

	// CaptureFrames counts microphone frames forwarded to the live channel.
	CaptureFrames metric.Int64Counter

	// PlaybackUnits counts scheduled playback units.
	PlaybackUnits metric.Int64Counter

	// Interruptions counts barge-in interruptions processed.
	Interruptions metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveLiveSessions tracks currently open live sessions.
	ActiveLiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time by method and
	// path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries (seconds) sized for provider
// round-trips: TTS and chat land in the low seconds, video generation in the
// tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		target *metric.Float64Histogram
		name   string
		desc   string
	}{
		{&met.ChatDuration, "sentir.chat.duration", "Latency of companion chat completions."},
		{&met.TTSDuration, "sentir.tts.duration", "Latency of speech synthesis."},
		{&met.MediaDuration, "sentir.media.duration", "Latency of image and video generation by kind."},
		{&met.LiveSessionDuration, "sentir.live.session.duration", "Wall-clock length of live voice sessions."},
	}
	for _, h := range histograms {
		if *h.target, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&met.CaptureFrames, "sentir.live.capture.frames", "Microphone frames forwarded to the live channel."},
		{&met.PlaybackUnits, "sentir.live.playback.units", "Playback units scheduled."},
		{&met.Interruptions, "sentir.live.interruptions", "Barge-in interruptions processed."},
		{&met.ProviderErrors, "sentir.provider.errors", "Provider failures by provider and kind."},
	}
	for _, c := range counters {
		if *c.target, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveLiveSessions, err = m.Int64UpDownCounter("sentir.live.active_sessions",
		metric.WithDescription("Currently open live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sentir.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level Metrics instance, created on
// first call from the global meter provider. Panics if instrument creation
// fails, which the global provider does not do.
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

// RecordProviderError increments the provider error counter with the
// standard attribute set.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordMediaDuration records one media generation latency by kind.
func (m *Metrics) RecordMediaDuration(ctx context.Context, kind string, seconds float64) {
	m.MediaDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
