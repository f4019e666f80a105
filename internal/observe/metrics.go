// Package observe wires OpenTelemetry into wakegate. Instruments live in
// [Metrics] and are exported to Prometheus by the providers from
// [InitProvider]; every dictation session becomes a span ([StartSession]);
// [Logger] attaches the trace and correlation IDs of a context to slog
// records; [Middleware] instruments the status server.
//
// Tests build their own [Metrics] with [NewMetrics] over an isolated
// MeterProvider instead of using [DefaultMetrics].
package observe

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all wakegate metrics.
const meterName = "github.com/MrWong99/wakegate"

// Metrics holds the instruments recorded by the controller, the pipeline and
// the status server.
type Metrics struct {
	meter metric.Meter

	// --- Latency histograms ---

	// ChunkProcessingDuration tracks the time the controller spends on one
	// audio chunk, recognizer calls included.
	ChunkProcessingDuration metric.Float64Histogram

	// PersistDuration tracks transcript persistence latency.
	PersistDuration metric.Float64Histogram

	// SessionDuration tracks the wall-clock length of wake-to-sleep sessions.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksProcessed counts audio chunks handed to the controller.
	ChunksProcessed metric.Int64Counter

	// Wakes counts accepted wake words.
	Wakes metric.Int64Counter

	// Sleeps counts sessions closed by a sleep word.
	Sleeps metric.Int64Counter

	// TranscriptSegments counts emitted transcript segments. Use with
	// attribute:
	//   attribute.Bool("final", ...)
	TranscriptSegments metric.Int64Counter

	// --- Error counters ---

	// Errors counts runtime errors. Use with attribute:
	//   attribute.String("kind", ...)
	Errors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a session is open and 0 otherwise.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets covers per-chunk recognizer and sink latencies, in seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// sessionBuckets covers whole dictation sessions, in seconds.
var sessionBuckets = []float64{
	1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates every instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{meter: m}

	histogram := func(dst *metric.Float64Histogram, name, desc string, buckets []float64) error {
		opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
		if buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
		}
		h, err := m.Float64Histogram(name, opts...)
		*dst = h
		return err
	}
	counter := func(dst *metric.Int64Counter, name, desc string) error {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		*dst = c
		return err
	}

	steps := []func() error{
		func() error {
			return histogram(&met.ChunkProcessingDuration, "wakegate.chunk.processing.duration",
				"Time spent processing one audio chunk.", latencyBuckets)
		},
		func() error {
			return histogram(&met.PersistDuration, "wakegate.persist.duration",
				"Latency of transcript persistence.", latencyBuckets)
		},
		func() error {
			return histogram(&met.SessionDuration, "wakegate.session.duration",
				"Length of wake-to-sleep sessions.", sessionBuckets)
		},
		func() error {
			return histogram(&met.HTTPRequestDuration, "wakegate.http.request.duration",
				"HTTP request latency by method and route.", nil)
		},
		func() error {
			return counter(&met.ChunksProcessed, "wakegate.chunks.processed",
				"Total audio chunks processed by the session controller.")
		},
		func() error { return counter(&met.Wakes, "wakegate.wakes", "Total accepted wake words.") },
		func() error { return counter(&met.Sleeps, "wakegate.sleeps", "Total sessions closed by a sleep word.") },
		func() error {
			return counter(&met.TranscriptSegments, "wakegate.transcript.segments",
				"Total transcript segments emitted, by finality.")
		},
		func() error { return counter(&met.Errors, "wakegate.errors", "Total runtime errors by kind.") },
		func() error {
			g, err := m.Int64UpDownCounter("wakegate.active_sessions",
				metric.WithDescription("Number of open dictation sessions."))
			met.ActiveSessions = g
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("observe: create instrument: %w", err)
		}
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics], created on first use from
// [otel.GetMeterProvider]. It panics if the instruments cannot be created.
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

// RecordError records an error counter increment for kind.
func (m *Metrics) RecordError(ctx context.Context, kind string) {
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSegment records an emitted transcript segment.
func (m *Metrics) RecordSegment(ctx context.Context, final bool) {
	m.TranscriptSegments.Add(ctx, 1,
		metric.WithAttributes(attribute.String("final", strconv.FormatBool(final))),
	)
}

// QueueStats is the read-only view of an audio queue that [Metrics.ObserveQueue]
// samples on every collection.
type QueueStats interface {
	Len() int
	Dropped() int64
}

// ObserveQueue registers the wakegate.queue.depth gauge and the
// wakegate.chunks.dropped counter, both sampled from q at collection time.
// Unregister the returned registration when q is discarded.
func (m *Metrics) ObserveQueue(q QueueStats) (metric.Registration, error) {
	depth, err := m.meter.Int64ObservableGauge("wakegate.queue.depth",
		metric.WithDescription("Number of audio chunks waiting to be processed."),
	)
	if err != nil {
		return nil, err
	}
	dropped, err := m.meter.Int64ObservableCounter("wakegate.chunks.dropped",
		metric.WithDescription("Total audio chunks dropped because the queue was full."),
	)
	if err != nil {
		return nil, err
	}
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, int64(q.Len()))
		o.ObserveInt64(dropped, q.Dropped())
		return nil
	}, depth, dropped)
}
