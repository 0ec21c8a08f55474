package database

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	queryDuration metric.Float64Histogram
	txDuration    metric.Float64Histogram
	txTotal       metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	m.txDuration, err = meter.Float64Histogram(
		"db_transaction_duration_seconds",
		metric.WithDescription("Time a unit of work held its transaction"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_transaction_duration histogram: %w", err)
	}

	m.txTotal, err = meter.Int64Counter(
		"db_transactions_total",
		metric.WithDescription("Units of work by outcome"),
		metric.WithUnit("{transaction}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_transactions_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordQuery(ctx context.Context, operation string, durationSeconds float64) {
	m.queryDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordTransaction records one unit of work. A unit that returned an error
// was rolled back.
func (m *Metrics) RecordTransaction(ctx context.Context, durationSeconds float64, committed bool) {
	outcome := "commit"
	if !committed {
		outcome = "rollback"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.txDuration.Record(ctx, durationSeconds, attrs)
	m.txTotal.Add(ctx, 1, attrs)
}
