package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veloswap/market/internal/marketplace/domain"
	"github.com/veloswap/market/internal/marketplace/metrics"
	"github.com/veloswap/market/internal/result"
	"github.com/veloswap/market/internal/telemetry"
)

// observe wraps one service call in a span, a log line and operation metrics.
func observe[T any](ctx context.Context, logger *slog.Logger, m *metrics.Metrics, operation, spanName string, call func(context.Context) result.Result[T], attrs ...attribute.KeyValue) result.Result[T] {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span, append(attrs, attribute.String("operation", operation))...)

	start := time.Now()
	res := call(ctx)

	m.RecordOperationDuration(ctx, operation, time.Since(start).Seconds())
	m.RecordOperation(ctx, operation, string(res.Status))
	telemetry.AddSpanAttributes(span, attribute.String("result.status", string(res.Status)))

	if res.Success {
		telemetry.SetSpanSuccess(span)
		logger.InfoContext(ctx, operation+" succeeded")
		return res
	}

	telemetry.RecordSpanError(span, errors.New(strings.Join(res.Errors, "; ")))
	level := slog.LevelWarn
	if res.Status == result.KindInternal {
		level = slog.LevelError
	}
	logger.Log(ctx, level, operation+" failed",
		"status", res.Status,
		"errors", res.Errors,
	)
	return res
}

func actorAttrs(actor domain.Actor) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("actor.id", actor.ID),
		attribute.Bool("actor.admin", actor.IsAdmin),
	}
}

// ObservableNegotiation decorates a Negotiation with tracing, logging and metrics.
type ObservableNegotiation struct {
	next    Negotiation
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableNegotiation(next Negotiation, logger *slog.Logger, metrics *metrics.Metrics) *ObservableNegotiation {
	return &ObservableNegotiation{
		next:    next,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableNegotiation) CreateOffer(ctx context.Context, proposer domain.Actor, input CreateOfferInput) result.Result[CreateOfferOutput] {
	attrs := append(actorAttrs(proposer),
		attribute.String("listing.id", input.ListingID),
		attribute.Int64("offer.amount", input.Amount),
	)
	return observe(ctx, o.logger, o.metrics, "create_offer", "Negotiation.CreateOffer",
		func(ctx context.Context) result.Result[CreateOfferOutput] {
			res := o.next.CreateOffer(ctx, proposer, input)
			if res.Success {
				trace.SpanFromContext(ctx).SetAttributes(attribute.String("offer.id", res.Data.Offer.ID))
			}
			return res
		}, attrs...)
}

func (o *ObservableNegotiation) AcceptOffer(ctx context.Context, offerID string, actor domain.Actor) result.Result[AcceptOfferOutput] {
	attrs := append(actorAttrs(actor), attribute.String("offer.id", offerID))
	return observe(ctx, o.logger, o.metrics, "accept_offer", "Negotiation.AcceptOffer",
		func(ctx context.Context) result.Result[AcceptOfferOutput] {
			res := o.next.AcceptOffer(ctx, offerID, actor)
			if res.Success {
				trace.SpanFromContext(ctx).SetAttributes(attribute.String("order.id", res.Data.Order.ID))
				o.metrics.RecordOrderValue(ctx, res.Data.Order.TotalPrice)
			}
			return res
		}, attrs...)
}

func (o *ObservableNegotiation) RejectOffer(ctx context.Context, offerID string, actor domain.Actor) result.Result[RejectOfferOutput] {
	attrs := append(actorAttrs(actor), attribute.String("offer.id", offerID))
	return observe(ctx, o.logger, o.metrics, "reject_offer", "Negotiation.RejectOffer",
		func(ctx context.Context) result.Result[RejectOfferOutput] {
			return o.next.RejectOffer(ctx, offerID, actor)
		}, attrs...)
}

func (o *ObservableNegotiation) GetOffer(ctx context.Context, offerID string, actor domain.Actor) result.Result[domain.Offer] {
	attrs := append(actorAttrs(actor), attribute.String("offer.id", offerID))
	return observe(ctx, o.logger, o.metrics, "get_offer", "Negotiation.GetOffer",
		func(ctx context.Context) result.Result[domain.Offer] {
			return o.next.GetOffer(ctx, offerID, actor)
		}, attrs...)
}

func (o *ObservableNegotiation) ExpireOffers(ctx context.Context) result.Result[int] {
	return observe(ctx, o.logger, o.metrics, "expire_offers", "Negotiation.ExpireOffers",
		func(ctx context.Context) result.Result[int] {
			res := o.next.ExpireOffers(ctx)
			if res.Success {
				o.metrics.RecordExpired(ctx, "offer", *res.Data)
			}
			return res
		})
}

// ObservableFulfillment decorates a Fulfillment with tracing, logging and metrics.
type ObservableFulfillment struct {
	next    Fulfillment
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableFulfillment(next Fulfillment, logger *slog.Logger, metrics *metrics.Metrics) *ObservableFulfillment {
	return &ObservableFulfillment{
		next:    next,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableFulfillment) CreateOrder(ctx context.Context, buyer domain.Actor, input CreateOrderInput) result.Result[CreateOrderOutput] {
	attrs := append(actorAttrs(buyer),
		attribute.String("listing.id", input.ListingID),
		attribute.String("order.payment_method", string(input.PaymentMethod)),
	)
	return observe(ctx, o.logger, o.metrics, "create_order", "Fulfillment.CreateOrder",
		func(ctx context.Context) result.Result[CreateOrderOutput] {
			res := o.next.CreateOrder(ctx, buyer, input)
			if res.Success {
				trace.SpanFromContext(ctx).SetAttributes(
					attribute.String("order.id", res.Data.Order.ID),
					attribute.Int64("order.total_price", res.Data.Order.TotalPrice),
				)
				o.metrics.RecordOrderValue(ctx, res.Data.Order.TotalPrice)
			}
			return res
		}, attrs...)
}

func (o *ObservableFulfillment) GetOrder(ctx context.Context, orderID string, actor domain.Actor) result.Result[domain.Order] {
	attrs := append(actorAttrs(actor), attribute.String("order.id", orderID))
	return observe(ctx, o.logger, o.metrics, "get_order", "Fulfillment.GetOrder",
		func(ctx context.Context) result.Result[domain.Order] {
			return o.next.GetOrder(ctx, orderID, actor)
		}, attrs...)
}

func (o *ObservableFulfillment) ConfirmPayment(ctx context.Context, orderID string, admin domain.Actor) result.Result[domain.Order] {
	attrs := append(actorAttrs(admin), attribute.String("order.id", orderID))
	return observe(ctx, o.logger, o.metrics, "confirm_payment", "Fulfillment.ConfirmPayment",
		func(ctx context.Context) result.Result[domain.Order] {
			return o.next.ConfirmPayment(ctx, orderID, admin)
		}, attrs...)
}

func (o *ObservableFulfillment) ApproveSale(ctx context.Context, orderID string, admin domain.Actor) result.Result[SaleReviewOutput] {
	attrs := append(actorAttrs(admin), attribute.String("order.id", orderID))
	return observe(ctx, o.logger, o.metrics, "approve_sale", "Fulfillment.ApproveSale",
		func(ctx context.Context) result.Result[SaleReviewOutput] {
			return o.next.ApproveSale(ctx, orderID, admin)
		}, attrs...)
}

func (o *ObservableFulfillment) RejectSale(ctx context.Context, orderID string, admin domain.Actor, reason string) result.Result[SaleReviewOutput] {
	attrs := append(actorAttrs(admin), attribute.String("order.id", orderID))
	return observe(ctx, o.logger, o.metrics, "reject_sale", "Fulfillment.RejectSale",
		func(ctx context.Context) result.Result[SaleReviewOutput] {
			return o.next.RejectSale(ctx, orderID, admin, reason)
		}, attrs...)
}

func (o *ObservableFulfillment) ExpireUnpaidOrders(ctx context.Context) result.Result[int] {
	return observe(ctx, o.logger, o.metrics, "expire_unpaid_orders", "Fulfillment.ExpireUnpaidOrders",
		func(ctx context.Context) result.Result[int] {
			res := o.next.ExpireUnpaidOrders(ctx)
			if res.Success {
				o.metrics.RecordExpired(ctx, "order", *res.Data)
			}
			return res
		})
}
