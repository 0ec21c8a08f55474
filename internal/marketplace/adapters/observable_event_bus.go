package adapters

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/veloswap/market/internal/events"
	"github.com/veloswap/market/internal/marketplace/ports"
	"github.com/veloswap/market/internal/telemetry"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *events.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *events.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) Publish(ctx context.Context, event ports.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.Publish")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("event.type", event.Type),
		attribute.String("listing.id", event.ListingID),
		attribute.String("offer.id", event.OfferID),
		attribute.String("order.id", event.OrderID),
	)

	start := time.Now()
	err := e.bus.Publish(ctx, event)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, event.Type, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
