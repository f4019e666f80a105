package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer provider as the global provider
// for the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLog redirects the default logger into a buffer.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "chunk")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("correlation ID %q is not a 32-digit hex trace ID", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)
	buf := captureLog(t)

	Logger(context.Background()).Info("idle")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("logger without span added trace attributes: %s", buf.String())
	}

	buf.Reset()
	ctx, span := StartSpan(context.Background(), "session")
	defer span.End()
	Logger(ctx).Info("active")
	if out := buf.String(); !strings.Contains(out, "trace_id="+CorrelationID(ctx)) || !strings.Contains(out, "span_id=") {
		t.Errorf("log line lacks trace attributes: %s", out)
	}
}

func TestSessionSpan_EndedBySleepWord(t *testing.T) {
	exp := useTestTracer(t)
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	ctx, s := StartSession(context.Background(), "hello", start)
	if CorrelationID(ctx) == "" {
		t.Fatal("session context carries no span")
	}
	s.End(start.Add(12*time.Second), "goodbye", "transcript_20260301_093000.txt", nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "session" || got.Status.Code != codes.Ok {
		t.Errorf("span = %q status %v", got.Name, got.Status.Code)
	}
	if !got.StartTime.Equal(start) || got.EndTime.Sub(got.StartTime) != 12*time.Second {
		t.Errorf("span ran %v to %v", got.StartTime, got.EndTime)
	}
	want := map[string]string{
		"wake_word":  "hello",
		"sleep_word": "goodbye",
		"end_reason": "sleep_word",
		"record":     "transcript_20260301_093000.txt",
	}
	for k, v := range want {
		if val, ok := attrValue(got.Attributes, k); !ok || val.AsString() != v {
			t.Errorf("attribute %s = %v, want %q", k, val.AsString(), v)
		}
	}
	if val, _ := attrValue(got.Attributes, "duration_seconds"); val.AsFloat64() != 12 {
		t.Errorf("duration_seconds = %v, want 12", val.AsFloat64())
	}
}

func TestSessionSpan_ShutdownWithError(t *testing.T) {
	exp := useTestTracer(t)
	start := time.Now()

	_, s := StartSession(context.Background(), "computer", start)
	s.End(start.Add(time.Second), "", "", errors.New("persist: disk full"))

	got := exp.GetSpans()[0]
	if got.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", got.Status.Code)
	}
	if len(got.Events) == 0 {
		t.Error("error event not recorded")
	}
	if val, _ := attrValue(got.Attributes, "end_reason"); val.AsString() != "shutdown" {
		t.Errorf("end_reason = %q, want shutdown", val.AsString())
	}
	if _, ok := attrValue(got.Attributes, "sleep_word"); ok {
		t.Error("sleep_word set for a session ended by shutdown")
	}
}

func TestSessionSpan_NilIsNoop(t *testing.T) {
	var s *SessionSpan
	s.End(time.Now(), "goodbye", "", nil)
}
