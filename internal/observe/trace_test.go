package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer provider globally for the
// duration of the test.
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

// captureLogs points the default logger at a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	useTestTracer(t)
	seen := make(map[string]bool, 50)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "pipeline.finalize")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("correlation ID %q is not 32 hex characters", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestStartSpan_CarriesSegment(t *testing.T) {
	exp := useTestTracer(t)

	_, plain := StartSpan(context.Background(), "handoff.transcribe")
	plain.End()

	ctx := WithSegment(context.Background(), "s1", 42)
	_, tagged := StartSpan(ctx, "handoff.transcribe")
	tagged.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if n := len(spans[0].Attributes); n != 0 {
		t.Errorf("untagged span has %d attributes", n)
	}
	want := map[attribute.Key]attribute.Value{
		"session.id": attribute.StringValue("s1"),
		"segment.id": attribute.Int64Value(42),
	}
	for _, kv := range spans[1].Attributes {
		if v, ok := want[kv.Key]; ok && v == kv.Value {
			delete(want, kv.Key)
		}
	}
	if len(want) != 0 {
		t.Errorf("tagged span missing %v, has %v", want, spans[1].Attributes)
	}
}

func TestSegmentFromContext(t *testing.T) {
	if _, _, ok := SegmentFromContext(context.Background()); ok {
		t.Error("untagged context reported a segment")
	}
	session, id, ok := SegmentFromContext(WithSegment(context.Background(), "s9", 3))
	if !ok || session != "s9" || id != 3 {
		t.Errorf("SegmentFromContext = %q, %d, %v", session, id, ok)
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)

	tests := []struct {
		name    string
		ctx     func() (context.Context, func())
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     func() (context.Context, func()) { return context.Background(), func() {} },
			notWant: []string{"trace_id", "segment_id"},
		},
		{
			name: "span only",
			ctx: func() (context.Context, func()) {
				ctx, span := StartSpan(context.Background(), "http")
				return ctx, func() { span.End() }
			},
			want:    []string{"trace_id=", "span_id="},
			notWant: []string{"segment_id"},
		},
		{
			name: "segment only",
			ctx: func() (context.Context, func()) {
				return WithSegment(context.Background(), "s1", 7), func() {}
			},
			want:    []string{"session_id=s1", "segment_id=7"},
			notWant: []string{"trace_id"},
		},
		{
			name: "segment and span",
			ctx: func() (context.Context, func()) {
				ctx, span := StartSpan(WithSegment(context.Background(), "s1", 8), "handoff.transcribe")
				return ctx, func() { span.End() }
			},
			want: []string{"trace_id=", "session_id=s1", "segment_id=8"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx, done := tt.ctx()
			defer done()

			Logger(ctx).Info("segment emitted")
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("log %q missing %q", out, s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("log %q should not contain %q", out, s)
				}
			}
		})
	}
}
