package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for every span the service starts.
const tracerName = "github.com/TamNguyen8021/meeting-note-summarizer-sub001"

type segmentKey struct{}

type segmentRef struct {
	session string
	id      uint64
}

// WithSegment tags ctx with the segment being worked on. Spans started from
// the returned context carry session.id and segment.id, and [Logger] adds
// session_id and segment_id to every record.
func WithSegment(ctx context.Context, sessionID string, segmentID uint64) context.Context {
	return context.WithValue(ctx, segmentKey{}, segmentRef{session: sessionID, id: segmentID})
}

// SegmentFromContext returns the segment ctx was tagged with by
// [WithSegment].
func SegmentFromContext(ctx context.Context) (sessionID string, segmentID uint64, ok bool) {
	ref, ok := ctx.Value(segmentKey{}).(segmentRef)
	return ref.session, ref.id, ok
}

// StartSpan starts a span on the global tracer provider. The caller must
// End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if session, id, ok := SegmentFromContext(ctx); ok {
		opts = append(opts, trace.WithAttributes(
			attribute.String("session.id", session),
			attribute.Int64("segment.id", int64(id)),
		))
	}
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there is
// none. It is echoed to HTTP clients as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id, span_id, session_id and
// segment_id attached, each only when ctx carries it.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if session, id, ok := SegmentFromContext(ctx); ok {
		attrs = append(attrs,
			slog.String("session_id", session),
			slog.Uint64("segment_id", id),
		)
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
