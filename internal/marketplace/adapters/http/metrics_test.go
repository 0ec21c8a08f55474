package http

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	metrics.RequestStarted(ctx)
	metrics.RequestStarted(ctx)
	metrics.RequestFinished(ctx)
	metrics.RecordRequest(ctx, "POST", "/v1/orders", 201, 0.02)
	metrics.RecordReplay(ctx, "/v1/orders")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "http_requests_in_flight" {
				sum := m.Data.(metricdata.Sum[int64])
				if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
					t.Errorf("expected one request in flight, got %+v", sum.DataPoints)
				}
			}
		}
	}

	for _, name := range []string{
		"http_request_duration_seconds",
		"http_requests_total",
		"http_requests_in_flight",
		"http_idempotent_replays_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}
