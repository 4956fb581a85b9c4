package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// restoreGlobals puts the OTel providers back after a test that replaced them.
func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	})
}

func TestInitProvider_ServesMetricsFromRegistry(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(ctx, ProviderConfig{
		ServiceVersion: "1.2.3",
		InstanceID:     "node-a",
		Registry:       reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(ctx) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordSegment(ctx, "timer", 0.8, 60)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var sawSegments bool
	labels := map[string]string{}
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "segmenter_segments_emitted") {
			sawSegments = true
		}
		if f.GetName() == "target_info" {
			for _, l := range f.GetMetric()[0].GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
		}
	}
	if !sawSegments {
		t.Error("segment counter not exported to the registry")
	}
	if labels["service_name"] != "segmenter" || labels["service_version"] != "1.2.3" || labels["service_instance_id"] != "node-a" {
		t.Errorf("target_info labels = %v", labels)
	}
}

func TestInitProvider_StartsSpansWithTraceIDs(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	shutdown, err := InitProvider(ctx, ProviderConfig{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer shutdown(ctx)

	sctx, span := StartSpan(ctx, "pipeline.finalize")
	defer span.End()
	if CorrelationID(sctx) == "" {
		t.Error("span started after InitProvider has no trace ID")
	}
}

func TestInitProvider_ShutdownIsClean(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	shutdown, err := InitProvider(ctx, ProviderConfig{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
