package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veloswap/market/internal/marketplace/domain"
	"github.com/veloswap/market/internal/marketplace/ports"
	"github.com/veloswap/market/internal/pricing"
	"github.com/veloswap/market/internal/result"
)

// Fulfillment is the order side of the marketplace.
type Fulfillment interface {
	CreateOrder(ctx context.Context, buyer domain.Actor, input CreateOrderInput) result.Result[CreateOrderOutput]
	GetOrder(ctx context.Context, orderID string, actor domain.Actor) result.Result[domain.Order]
	ConfirmPayment(ctx context.Context, orderID string, admin domain.Actor) result.Result[domain.Order]
	ApproveSale(ctx context.Context, orderID string, admin domain.Actor) result.Result[SaleReviewOutput]
	RejectSale(ctx context.Context, orderID string, admin domain.Actor, reason string) result.Result[SaleReviewOutput]
	ExpireUnpaidOrders(ctx context.Context) result.Result[int]
}

// CreateOrderInput captures payload for buying a listing outright.
type CreateOrderInput struct {
	ListingID       string                 `json:"listing_id"`
	PaymentMethod   domain.PaymentMethod   `json:"payment_method"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	// ShippingRegion defaults to the address region.
	ShippingRegion string `json:"shipping_region"`
}

type CreateOrderOutput struct {
	Order             domain.Order           `json:"order"`
	EstimatedDelivery pricing.DeliveryWindow `json:"estimated_delivery"`
}

type SaleReviewOutput struct {
	Order   domain.Order   `json:"order"`
	Listing domain.Listing `json:"listing"`
}

// FulfillmentService creates orders and drives them through payment and the
// admin sale review.
type FulfillmentService struct {
	uow    ports.UnitOfWork
	events ports.EventBus
	logger *slog.Logger
	opts   options
}

// NewFulfillmentService wires required dependencies.
func NewFulfillmentService(uow ports.UnitOfWork, events ports.EventBus, logger *slog.Logger, opts ...Option) *FulfillmentService {
	return &FulfillmentService{
		uow:    uow,
		events: events,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

func (in CreateOrderInput) region() string {
	if r := strings.TrimSpace(in.ShippingRegion); r != "" {
		return r
	}
	return in.ShippingAddress.Region
}

// CreateOrder places an order for a listing without prior negotiation. The
// listing row stays locked from the availability check until the order is
// written, so concurrent buyers are serialised.
func (s *FulfillmentService) CreateOrder(ctx context.Context, buyer domain.Actor, input CreateOrderInput) result.Result[CreateOrderOutput] {
	if strings.TrimSpace(input.ListingID) == "" {
		return result.Validation[CreateOrderOutput]("listing_id is required")
	}
	if !input.PaymentMethod.Valid() {
		return result.Validation[CreateOrderOutput]("payment_method must be one of bank_transfer, credit_card")
	}
	if problems := input.ShippingAddress.Validate(); len(problems) > 0 {
		return result.Unprocessable[CreateOrderOutput](problems...)
	}

	return execute(ctx, s.logger, "create order", func() (CreateOrderOutput, error) {
		var out CreateOrderOutput
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			listing, err := repos.Listings().GetForUpdate(ctx, input.ListingID)
			if err != nil {
				return lookup(err, "listing")
			}
			if buyer.Is(listing.OwnerID) {
				return unprocessable("you cannot buy your own listing")
			}
			if !listing.IsPurchasable() {
				return unprocessable("listing is not available for purchase")
			}

			now := s.opts.now()
			region := input.region()
			shipping := pricing.ShippingCost(region, listing.WeightKg)
			tax := pricing.Tax(listing.Price, pricing.DefaultTaxRate)

			order := domain.NewOrder(buyer.ID, listing.ID, input.PaymentMethod, pricing.PaymentDeadline(now), now)
			order.Subtotal = listing.Price
			order.ShippingCost = shipping
			order.Tax = tax
			order.TotalPrice = listing.Price + shipping + tax
			address := input.ShippingAddress
			order.ShippingAddress = &address

			if input.PaymentMethod.ReservesOnCreate() {
				if err := releaseCompetingOrders(ctx, repos, listing.ID, "", now); err != nil {
					return err
				}
				if err := listing.TransitionTo(domain.ListingReserved, now); err != nil {
					return err
				}
				if err := repos.Listings().UpdateStatus(ctx, listing); err != nil {
					return fmt.Errorf("reserve listing: %w", err)
				}
			}

			if err := repos.Orders().Create(ctx, order); err != nil {
				return fmt.Errorf("create order: %w", err)
			}

			out = CreateOrderOutput{Order: *order, EstimatedDelivery: pricing.EstimateDelivery(region)}
			return nil
		})
		if err != nil {
			return CreateOrderOutput{}, err
		}

		publish(ctx, s.events, s.logger, ports.Event{
			Type:       ports.EventOrderCreated,
			ListingID:  out.Order.ListingID,
			OrderID:    out.Order.ID,
			ActorID:    buyer.ID,
			Amount:     out.Order.TotalPrice,
			OccurredAt: out.Order.CreatedAt,
		})
		return out, nil
	}, "listing_id", input.ListingID, "buyer_id", buyer.ID)
}

// GetOrder returns an order to its buyer, the listing owner or an admin.
func (s *FulfillmentService) GetOrder(ctx context.Context, orderID string, actor domain.Actor) result.Result[domain.Order] {
	return execute(ctx, s.logger, "get order", func() (domain.Order, error) {
		var out domain.Order
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			order, err := repos.Orders().Get(ctx, orderID)
			if err != nil {
				return lookup(err, "order")
			}
			if !actor.IsAdmin && !actor.Is(order.BuyerID) {
				listing, err := repos.Listings().Get(ctx, order.ListingID)
				if err != nil {
					return lookup(err, "listing")
				}
				if !actor.Is(listing.OwnerID) {
					return forbidden("you are not a party to this order")
				}
			}
			out = *order
			return nil
		})
		return out, err
	}, "order_id", orderID)
}

// lockOrder loads an order and its listing, locking the listing before the order.
func lockOrder(ctx context.Context, repos ports.Repositories, orderID string) (*domain.Order, *domain.Listing, error) {
	found, err := repos.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, nil, lookup(err, "order")
	}
	listing, err := repos.Listings().GetForUpdate(ctx, found.ListingID)
	if err != nil {
		return nil, nil, lookup(err, "listing")
	}
	order, err := repos.Orders().GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, nil, lookup(err, "order")
	}
	return order, listing, nil
}

// ConfirmPayment records a confirmed payment: the order starts processing,
// the listing is reserved for it and competing unpaid orders are cancelled.
func (s *FulfillmentService) ConfirmPayment(ctx context.Context, orderID string, admin domain.Actor) result.Result[domain.Order] {
	if !admin.IsAdmin {
		return result.Forbidden[domain.Order]("only admins can confirm payments")
	}

	return execute(ctx, s.logger, "confirm payment", func() (domain.Order, error) {
		var out domain.Order
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			order, listing, err := lockOrder(ctx, repos, orderID)
			if err != nil {
				return err
			}
			if order.Status != domain.OrderPending && order.Status != domain.OrderProcessing {
				return unprocessable(fmt.Sprintf("order is %s", order.Status))
			}
			if order.IsPaid() {
				return unprocessable("payment has already been confirmed")
			}

			now := s.opts.now()
			switch listing.Status {
			case domain.ListingAvailable:
				if err := listing.TransitionTo(domain.ListingReserved, now); err != nil {
					return err
				}
				if err := repos.Listings().UpdateStatus(ctx, listing); err != nil {
					return fmt.Errorf("reserve listing: %w", err)
				}
			case domain.ListingReserved, domain.ListingSold:
				// Held already, either by this order or by one cancelled below.
			default:
				return unprocessable("listing is no longer available")
			}

			if err := releaseCompetingOrders(ctx, repos, listing.ID, order.ID, now); err != nil {
				return err
			}

			if err := order.TransitionPayment(domain.PaymentPaid, now); err != nil {
				return unprocessable(err.Error())
			}
			if order.Status == domain.OrderPending {
				if err := order.TransitionStatus(domain.OrderProcessing, now); err != nil {
					return err
				}
			}
			if err := repos.Orders().Update(ctx, order); err != nil {
				return fmt.Errorf("confirm payment: %w", err)
			}

			out = *order
			return nil
		})
		if err != nil {
			return domain.Order{}, err
		}

		publish(ctx, s.events, s.logger, ports.Event{
			Type:       ports.EventPaymentConfirmed,
			ListingID:  out.ListingID,
			OrderID:    out.ID,
			ActorID:    admin.ID,
			Amount:     out.TotalPrice,
			OccurredAt: out.UpdatedAt,
		})
		return out, nil
	}, "order_id", orderID, "admin_id", admin.ID)
}

// ApproveSale completes a paid order and marks its listing sold.
func (s *FulfillmentService) ApproveSale(ctx context.Context, orderID string, admin domain.Actor) result.Result[SaleReviewOutput] {
	if !admin.IsAdmin {
		return result.Forbidden[SaleReviewOutput]("only admins can review sales")
	}

	return execute(ctx, s.logger, "approve sale", func() (SaleReviewOutput, error) {
		var out SaleReviewOutput
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			order, listing, err := lockOrder(ctx, repos, orderID)
			if err != nil {
				return err
			}
			if !order.IsPaid() {
				return unprocessable(domain.ErrPaymentNotConfirmed.Error())
			}
			if order.Status == domain.OrderCompleted || order.Status == domain.OrderCancelled {
				return unprocessable(fmt.Sprintf("order is already %s", order.Status))
			}

			now := s.opts.now()
			switch listing.Status {
			case domain.ListingReserved:
				if err := listing.TransitionTo(domain.ListingSold, now); err != nil {
					return err
				}
				if err := repos.Listings().UpdateStatus(ctx, listing); err != nil {
					return fmt.Errorf("mark listing sold: %w", err)
				}
			case domain.ListingSold:
				// Sold when the offer was accepted.
			default:
				return unprocessable("listing is not reserved")
			}

			if order.Status == domain.OrderPending {
				if err := order.TransitionStatus(domain.OrderProcessing, now); err != nil {
					return err
				}
			}
			if err := order.TransitionStatus(domain.OrderCompleted, now); err != nil {
				return err
			}
			commission := pricing.CommissionFor(order.Subtotal, pricing.DefaultCommissionRate)
			order.CommissionFee = commission.Fee
			order.SellerReceives = commission.SellerReceives
			if err := repos.Orders().Update(ctx, order); err != nil {
				return fmt.Errorf("complete order: %w", err)
			}

			out = SaleReviewOutput{Order: *order, Listing: *listing}
			return nil
		})
		if err != nil {
			return SaleReviewOutput{}, err
		}

		publish(ctx, s.events, s.logger, ports.Event{
			Type:       ports.EventSaleApproved,
			ListingID:  out.Listing.ID,
			OrderID:    out.Order.ID,
			ActorID:    admin.ID,
			Amount:     out.Order.TotalPrice,
			OccurredAt: out.Order.UpdatedAt,
		})
		return out, nil
	}, "order_id", orderID, "admin_id", admin.ID)
}

// RejectSale refunds a paid order, cancels it and puts the listing back on
// the market. Completed sales cannot be rejected.
func (s *FulfillmentService) RejectSale(ctx context.Context, orderID string, admin domain.Actor, reason string) result.Result[SaleReviewOutput] {
	if !admin.IsAdmin {
		return result.Forbidden[SaleReviewOutput]("only admins can review sales")
	}

	return execute(ctx, s.logger, "reject sale", func() (SaleReviewOutput, error) {
		var out SaleReviewOutput
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			order, listing, err := lockOrder(ctx, repos, orderID)
			if err != nil {
				return err
			}
			if !order.IsPaid() {
				return unprocessable(domain.ErrPaymentNotConfirmed.Error())
			}
			if order.Status == domain.OrderCompleted || order.Status == domain.OrderCancelled {
				return unprocessable(fmt.Sprintf("order is already %s", order.Status))
			}

			now := s.opts.now()
			if listing.Status != domain.ListingAvailable {
				if err := listing.TransitionTo(domain.ListingAvailable, now); err != nil {
					return unprocessable("listing cannot be released back to the market")
				}
				if err := repos.Listings().UpdateStatus(ctx, listing); err != nil {
					return fmt.Errorf("release listing: %w", err)
				}
			}

			if err := order.TransitionStatus(domain.OrderCancelled, now); err != nil {
				return err
			}
			if err := order.TransitionPayment(domain.PaymentRefunded, now); err != nil {
				return err
			}
			order.RejectionReason = strings.TrimSpace(reason)
			if err := repos.Orders().Update(ctx, order); err != nil {
				return fmt.Errorf("cancel order: %w", err)
			}

			out = SaleReviewOutput{Order: *order, Listing: *listing}
			return nil
		})
		if err != nil {
			return SaleReviewOutput{}, err
		}

		publish(ctx, s.events, s.logger, ports.Event{
			Type:       ports.EventSaleRejected,
			ListingID:  out.Listing.ID,
			OrderID:    out.Order.ID,
			ActorID:    admin.ID,
			Amount:     out.Order.TotalPrice,
			Reason:     out.Order.RejectionReason,
			OccurredAt: out.Order.UpdatedAt,
		})
		return out, nil
	}, "order_id", orderID, "admin_id", admin.ID)
}

// ExpireUnpaidOrders cancels orders whose payment deadline has passed and
// puts the listing they held back on the market.
func (s *FulfillmentService) ExpireUnpaidOrders(ctx context.Context) result.Result[int] {
	return execute(ctx, s.logger, "expire unpaid orders", func() (int, error) {
		now := s.opts.now()

		var overdue []domain.Order
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			var err error
			overdue, err = repos.Orders().ListOverdue(ctx, now, s.opts.sweepSize)
			return err
		})
		if err != nil {
			return 0, err
		}

		expired := 0
		for _, candidate := range overdue {
			err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
				order, listing, err := lockOrder(ctx, repos, candidate.ID)
				if err != nil {
					return err
				}
				if !order.IsPaymentOverdue(now) {
					return nil
				}
				if err := order.TransitionPayment(domain.PaymentExpired, now); err != nil {
					return err
				}
				if err := order.TransitionStatus(domain.OrderCancelled, now); err != nil {
					return err
				}
				if err := repos.Orders().Update(ctx, order); err != nil {
					return err
				}

				// A live order on a reserved or sold listing is its only holder.
				if listing.Status == domain.ListingReserved || listing.Status == domain.ListingSold {
					if err := listing.TransitionTo(domain.ListingAvailable, now); err != nil {
						return err
					}
					if err := repos.Listings().UpdateStatus(ctx, listing); err != nil {
						return err
					}
				}
				expired++
				return nil
			})
			if err != nil {
				return expired, fmt.Errorf("expire order %s: %w", candidate.ID, err)
			}
		}
		return expired, nil
	})
}
