package database

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestInitializeMetrics(t *testing.T) {
	t.Run("initializes all metric instruments successfully", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		metrics, err := NewMetrics(mp.Meter("test"))
		if err != nil {
			t.Fatalf("NewMetrics() failed: %v", err)
		}

		if metrics.queryDuration == nil {
			t.Error("queryDuration is nil")
		}
		if metrics.txDuration == nil {
			t.Error("txDuration is nil")
		}
		if metrics.txTotal == nil {
			t.Error("txTotal is nil")
		}
	})
}

func TestRecordDatabaseQuery(t *testing.T) {
	t.Run("records query duration with operation label", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		metrics, err := NewMetrics(mp.Meter("test"))
		if err != nil {
			t.Fatalf("NewMetrics() failed: %v", err)
		}

		ctx := context.Background()
		metrics.RecordQuery(ctx, "lock_listing", 0.1)
		metrics.RecordQuery(ctx, "create_order", 0.05)

		m, found := collectMetric(t, reader, "db_query_duration_seconds")
		if !found {
			t.Fatal("db_query_duration_seconds metric not found")
		}
		histogram, ok := m.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatal("Expected Histogram[float64] data type")
		}
		if len(histogram.DataPoints) != 2 {
			t.Errorf("Expected 2 data points, got %d", len(histogram.DataPoints))
		}
	})
}

func TestRecordTransaction(t *testing.T) {
	t.Run("counts commits and rollbacks separately", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		metrics, err := NewMetrics(mp.Meter("test"))
		if err != nil {
			t.Fatalf("NewMetrics() failed: %v", err)
		}

		ctx := context.Background()
		metrics.RecordTransaction(ctx, 0.01, true)
		metrics.RecordTransaction(ctx, 0.02, true)
		metrics.RecordTransaction(ctx, 0.03, false)

		m, found := collectMetric(t, reader, "db_transactions_total")
		if !found {
			t.Fatal("db_transactions_total metric not found")
		}
		sum, ok := m.Data.(metricdata.Sum[int64])
		if !ok {
			t.Fatal("Expected Sum[int64] data type")
		}
		counts := make(map[string]int64)
		for _, dp := range sum.DataPoints {
			outcome, _ := dp.Attributes.Value("outcome")
			counts[outcome.AsString()] = dp.Value
		}
		if counts["commit"] != 2 || counts["rollback"] != 1 {
			t.Errorf("unexpected counts %v", counts)
		}
	})
}
