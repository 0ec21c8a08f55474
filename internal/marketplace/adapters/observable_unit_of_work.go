package adapters

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/veloswap/market/internal/database"
	"github.com/veloswap/market/internal/marketplace/ports"
	"github.com/veloswap/market/internal/telemetry"
)

// ObservableUnitOfWork traces every unit of work and records how long it held
// its transaction and whether it committed.
type ObservableUnitOfWork struct {
	uow     ports.UnitOfWork
	metrics *database.Metrics
}

func NewObservableUnitOfWork(uow ports.UnitOfWork, metrics *database.Metrics) *ObservableUnitOfWork {
	return &ObservableUnitOfWork{
		uow:     uow,
		metrics: metrics,
	}
}

func (u *ObservableUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	ctx, span := telemetry.StartSpan(ctx, "UnitOfWork.Do")
	defer span.End()

	start := time.Now()
	err := u.uow.Do(ctx, fn)
	duration := time.Since(start).Seconds()

	u.metrics.RecordTransaction(ctx, duration, err == nil)
	telemetry.AddSpanAttributes(span, attribute.Bool("tx.committed", err == nil))

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
