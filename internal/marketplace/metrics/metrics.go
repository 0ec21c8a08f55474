package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
	expiredTotal      metric.Int64Counter
	orderValue        metric.Int64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.operationsTotal, err = meter.Int64Counter(
		"marketplace_operations_total",
		metric.WithDescription("Total number of negotiation and fulfillment operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create marketplace_operations_total counter: %w", err)
	}

	m.operationDuration, err = meter.Float64Histogram(
		"marketplace_operation_duration_seconds",
		metric.WithDescription("Duration of negotiation and fulfillment operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create marketplace_operation_duration histogram: %w", err)
	}

	m.expiredTotal, err = meter.Int64Counter(
		"marketplace_expired_total",
		metric.WithDescription("Total number of offers and unpaid orders expired by the sweeper"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create marketplace_expired_total counter: %w", err)
	}

	m.orderValue, err = meter.Int64Histogram(
		"marketplace_order_total_yen",
		metric.WithDescription("Total price of created orders"),
		metric.WithUnit("JPY"),
	)
	if err != nil {
		return nil, fmt.Errorf("create marketplace_order_total_yen histogram: %w", err)
	}

	return m, nil
}

// RecordOperation counts one call of operation; outcome is the result kind.
func (m *Metrics) RecordOperation(ctx context.Context, operation, outcome string) {
	m.operationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordOperationDuration(ctx context.Context, operation string, durationSeconds float64) {
	m.operationDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordExpired counts items of kind ("offer" or "order") moved to expired.
func (m *Metrics) RecordExpired(ctx context.Context, kind string, count int) {
	if count <= 0 {
		return
	}
	m.expiredTotal.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

func (m *Metrics) RecordOrderValue(ctx context.Context, totalYen int64) {
	m.orderValue.Record(ctx, totalYen)
}
