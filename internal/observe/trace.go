package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/wakegate"

// Tracer returns the wakegate tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// Every dictation session runs under its own span, so the ID groups all log
// lines of one wake-to-sleep session.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if ctx == nil {
		return l
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// ─── Session spans ──────────────────────────────────────────────────────────

// SessionSpan traces one dictation session from wake word to sleep word (or
// shutdown). A nil *SessionSpan is valid and does nothing.
type SessionSpan struct {
	span  trace.Span
	start time.Time
}

// StartSession opens the span of a session woken by wakeWord at start. The
// returned context carries the span for [Logger] and [CorrelationID].
func StartSession(ctx context.Context, wakeWord string, start time.Time) (context.Context, *SessionSpan) {
	ctx, span := StartSpan(ctx, "session",
		trace.WithTimestamp(start),
		trace.WithAttributes(attribute.String("wake_word", wakeWord)),
	)
	return ctx, &SessionSpan{span: span, start: start}
}

// End closes the span at end. sleepWord is empty when the session was cut
// short by shutdown; record is the persisted transcript id, if any. A non-nil
// err marks the span as failed.
func (s *SessionSpan) End(end time.Time, sleepWord, record string, err error) {
	if s == nil {
		return
	}
	reason := "sleep_word"
	if sleepWord == "" {
		reason = "shutdown"
	}
	s.span.SetAttributes(
		attribute.String("end_reason", reason),
		attribute.String("record", record),
		attribute.Float64("duration_seconds", end.Sub(s.start).Seconds()),
	)
	if sleepWord != "" {
		s.span.SetAttributes(attribute.String("sleep_word", sleepWord))
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End(trace.WithTimestamp(end))
}
