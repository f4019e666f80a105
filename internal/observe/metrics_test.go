package observe

import (
	"context"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"wakegate.chunk.processing.duration", m.ChunkProcessingDuration},
		{"wakegate.persist.duration", m.PersistDuration},
		{"wakegate.session.duration", m.SessionDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q data type = %T, want Histogram[float64]", tc.name, met.Data)
			}
			if len(hist.DataPoints) != 1 {
				t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
			}
			if hist.DataPoints[0].Count != 2 {
				t.Errorf("count = %d, want 2", hist.DataPoints[0].Count)
			}
		})
	}
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ChunksProcessed.Add(ctx, 5)
	m.Wakes.Add(ctx, 2)
	m.Sleeps.Add(ctx, 1)

	rm := collect(t, reader)

	counters := []struct {
		name string
		want int64
	}{
		{"wakegate.chunks.processed", 5},
		{"wakegate.wakes", 2},
		{"wakegate.sleeps", 1},
	}
	for _, tc := range counters {
		met := findMetric(rm, tc.name)
		if met == nil {
			t.Errorf("metric %q not found", tc.name)
			continue
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok {
			t.Errorf("metric %q data type = %T, want Sum[int64]", tc.name, met.Data)
			continue
		}
		if got := sum.DataPoints[0].Value; got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestRecordSegment_SplitsByFinality(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSegment(ctx, true)
	m.RecordSegment(ctx, false)
	m.RecordSegment(ctx, false)

	rm := collect(t, reader)
	met := findMetric(rm, "wakegate.transcript.segments")
	if met == nil {
		t.Fatal("wakegate.transcript.segments not found")
	}
	sum := met.Data.(metricdata.Sum[int64])

	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("final"))
		got[v.AsString()] = dp.Value
	}
	if got["true"] != 1 || got["false"] != 2 {
		t.Errorf("segments by final = %v, want true:1 false:2", got)
	}
}

func TestRecordError_UsesKindAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordError(ctx, "recognizer")
	m.RecordError(ctx, "recognizer")
	m.RecordError(ctx, "persist")

	rm := collect(t, reader)
	met := findMetric(rm, "wakegate.errors")
	if met == nil {
		t.Fatal("wakegate.errors not found")
	}
	sum := met.Data.(metricdata.Sum[int64])

	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, ok := dp.Attributes.Value(attribute.Key("kind"))
		if !ok {
			t.Fatal("data point missing kind attribute")
		}
		got[v.AsString()] = dp.Value
	}
	if got["recognizer"] != 2 || got["persist"] != 1 {
		t.Errorf("errors by kind = %v, want recognizer:2 persist:1", got)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.ActiveSessions.Add(ctx, 1)

	rm := collect(t, reader)
	met := findMetric(rm, "wakegate.active_sessions")
	if met == nil {
		t.Fatal("wakegate.active_sessions not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", met.Data)
	}
	if sum.IsMonotonic {
		t.Error("active sessions must not be monotonic")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

type fakeQueue struct {
	n       atomic.Int64
	dropped atomic.Int64
}

func (q *fakeQueue) Len() int { return int(q.n.Load()) }
func (q *fakeQueue) Dropped() int64 { return q.dropped.Load() }

func TestObserveQueue_SamplesOnCollect(t *testing.T) {
	m, reader := newTestMetrics(t)
	q := &fakeQueue{}
	reg, err := m.ObserveQueue(q)
	if err != nil {
		t.Fatalf("ObserveQueue: %v", err)
	}

	q.n.Store(7)
	q.dropped.Store(3)
	rm := collect(t, reader)

	depth := findMetric(rm, "wakegate.queue.depth")
	if depth == nil {
		t.Fatal("wakegate.queue.depth not found")
	}
	if g := depth.Data.(metricdata.Gauge[int64]); g.DataPoints[0].Value != 7 {
		t.Errorf("queue depth = %d, want 7", g.DataPoints[0].Value)
	}
	dropped := findMetric(rm, "wakegate.chunks.dropped")
	if dropped == nil {
		t.Fatal("wakegate.chunks.dropped not found")
	}
	if s := dropped.Data.(metricdata.Sum[int64]); s.DataPoints[0].Value != 3 {
		t.Errorf("dropped = %d, want 3", s.DataPoints[0].Value)
	}

	if err := reg.Unregister(); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	q.n.Store(99)
	rm = collect(t, reader)
	if depth := findMetric(rm, "wakegate.queue.depth"); depth != nil {
		if g := depth.Data.(metricdata.Gauge[int64]); len(g.DataPoints) > 0 && g.DataPoints[0].Value == 99 {
			t.Error("queue still sampled after Unregister")
		}
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "wakegate.http.request.duration")
	if met == nil {
		t.Fatal("wakegate.http.request.duration not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("count = %d, want 1", hist.DataPoints[0].Count)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
