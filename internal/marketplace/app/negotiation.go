package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veloswap/market/internal/marketplace/domain"
	"github.com/veloswap/market/internal/marketplace/ports"
	"github.com/veloswap/market/internal/money"
	"github.com/veloswap/market/internal/pricing"
	"github.com/veloswap/market/internal/result"
)

// Negotiation is the offer side of the marketplace.
type Negotiation interface {
	CreateOffer(ctx context.Context, proposer domain.Actor, input CreateOfferInput) result.Result[CreateOfferOutput]
	AcceptOffer(ctx context.Context, offerID string, actor domain.Actor) result.Result[AcceptOfferOutput]
	RejectOffer(ctx context.Context, offerID string, actor domain.Actor) result.Result[RejectOfferOutput]
	GetOffer(ctx context.Context, offerID string, actor domain.Actor) result.Result[domain.Offer]
	ExpireOffers(ctx context.Context) result.Result[int]
}

// CreateOfferInput captures payload for proposing a price.
type CreateOfferInput struct {
	ListingID      string `json:"listing_id"`
	CounterpartyID string `json:"counterparty_id"`
	Amount         int64  `json:"amount"`
	Note           string `json:"note"`
}

type CreateOfferOutput struct {
	Offer   domain.Offer   `json:"offer"`
	Message domain.Message `json:"message"`
}

type AcceptOfferOutput struct {
	AcceptedOffer   domain.Offer   `json:"accepted_offer"`
	ResponseMessage domain.Message `json:"response_message"`
	Order           domain.Order   `json:"order"`
}

type RejectOfferOutput struct {
	RejectedOffer   domain.Offer   `json:"rejected_offer"`
	ResponseMessage domain.Message `json:"response_message"`
}

// NegotiationService orchestrates offers and keeps listing, offer and order
// consistent when an offer is accepted.
type NegotiationService struct {
	uow    ports.UnitOfWork
	events ports.EventBus
	logger *slog.Logger
	opts   options
}

// NewNegotiationService wires required dependencies.
func NewNegotiationService(uow ports.UnitOfWork, events ports.EventBus, logger *slog.Logger, opts ...Option) *NegotiationService {
	return &NegotiationService{
		uow:    uow,
		events: events,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

func (in CreateOfferInput) validate() []string {
	var problems []string
	if strings.TrimSpace(in.ListingID) == "" {
		problems = append(problems, "listing_id is required")
	}
	if strings.TrimSpace(in.CounterpartyID) == "" {
		problems = append(problems, "counterparty_id is required")
	}
	if err := domain.ValidateOfferAmount(in.Amount); err != nil {
		problems = append(problems, err.Error())
	}
	return problems
}

// CreateOffer records a pending offer together with the message carrying it.
func (s *NegotiationService) CreateOffer(ctx context.Context, proposer domain.Actor, input CreateOfferInput) result.Result[CreateOfferOutput] {
	if problems := input.validate(); len(problems) > 0 {
		return result.Validation[CreateOfferOutput](problems...)
	}
	if proposer.Is(input.CounterpartyID) {
		return result.Unprocessable[CreateOfferOutput]("you cannot make an offer to yourself")
	}

	return execute(ctx, s.logger, "create offer", func() (CreateOfferOutput, error) {
		var out CreateOfferOutput
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			listing, err := repos.Listings().GetForUpdate(ctx, input.ListingID)
			if err != nil {
				return lookup(err, "listing")
			}
			if proposer.Is(listing.OwnerID) {
				return unprocessable("you cannot make an offer on your own listing")
			}
			if listing.OwnerID != input.CounterpartyID {
				return unprocessable("offers must be addressed to the listing owner")
			}
			if !listing.IsOfferable() {
				return unprocessable("listing is not accepting offers")
			}

			pending, err := repos.Offers().HasPending(ctx, listing.ID, proposer.ID)
			if err != nil {
				return err
			}
			if pending {
				return unprocessable(ports.ErrDuplicatePendingOffer.Error())
			}

			now := s.opts.now()
			message := domain.NewMessage(listing.ID, proposer.ID, input.CounterpartyID, "", domain.MessageOffer, now)
			offer, err := domain.NewOffer(listing.ID, message.ID, proposer.ID, input.CounterpartyID, input.Amount, input.Note, now, s.opts.offerTTL)
			if err != nil {
				return fail(result.KindValidation, err.Error())
			}
			message.Content = offer.Note
			message.OfferID = offer.ID

			if err := repos.Messages().Create(ctx, message); err != nil {
				return fmt.Errorf("create offer message: %w", err)
			}
			if err := repos.Offers().Create(ctx, offer); err != nil {
				if isDuplicate(err) {
					return unprocessable(ports.ErrDuplicatePendingOffer.Error())
				}
				return fmt.Errorf("create offer: %w", err)
			}

			out = CreateOfferOutput{Offer: *offer, Message: *message}
			return nil
		})
		if err != nil {
			return CreateOfferOutput{}, err
		}

		publish(ctx, s.events, s.logger, ports.Event{
			Type:       ports.EventOfferCreated,
			ListingID:  out.Offer.ListingID,
			OfferID:    out.Offer.ID,
			ActorID:    proposer.ID,
			Amount:     out.Offer.Amount,
			OccurredAt: out.Offer.CreatedAt,
		})
		return out, nil
	}, "listing_id", input.ListingID, "proposer_id", proposer.ID)
}

// AcceptOffer accepts a pending offer. In one unit of work it marks the offer
// accepted, sells the listing, creates the buyer's order, answers in the
// conversation and rejects every other pending offer on the listing.
func (s *NegotiationService) AcceptOffer(ctx context.Context, offerID string, actor domain.Actor) result.Result[AcceptOfferOutput] {
	return execute(ctx, s.logger, "accept offer", func() (AcceptOfferOutput, error) {
		var out AcceptOfferOutput
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			found, err := repos.Offers().Get(ctx, offerID)
			if err != nil {
				return lookup(err, "offer")
			}

			// Listing first, then offer: every unit of work locks in this order.
			listing, err := repos.Listings().GetForUpdate(ctx, found.ListingID)
			if err != nil {
				return lookup(err, "listing")
			}
			offer, err := repos.Offers().GetForUpdate(ctx, offerID)
			if err != nil {
				return lookup(err, "offer")
			}

			exists, err := repos.Users().Exists(ctx, offer.ProposerID)
			if err != nil {
				return err
			}
			if !exists {
				return unprocessable("the user who made this offer no longer exists")
			}
			if !actor.Is(offer.CounterpartyID) {
				return forbidden("only the recipient of an offer can respond to it")
			}
			if !offer.IsPending() {
				return unprocessable(fmt.Sprintf("offer is already %s", offer.Status))
			}
			if !listing.IsOfferable() {
				return unprocessable("listing is no longer available")
			}

			now := s.opts.now()
			if err := offer.Accept(now); err != nil {
				return err
			}
			if err := repos.Offers().UpdateStatus(ctx, offer); err != nil {
				return fmt.Errorf("accept offer: %w", err)
			}

			if err := listing.TransitionTo(domain.ListingSold, now); err != nil {
				return err
			}
			if err := repos.Listings().UpdateStatus(ctx, listing); err != nil {
				return fmt.Errorf("mark listing sold: %w", err)
			}

			if err := releaseCompetingOrders(ctx, repos, listing.ID, "", now); err != nil {
				return err
			}

			order := domain.NewOrder(offer.ProposerID, listing.ID, "", pricing.PaymentDeadline(now), now)
			order.OfferID = offer.ID
			order.Subtotal = offer.Amount
			order.TotalPrice = offer.Amount
			if err := repos.Orders().Create(ctx, order); err != nil {
				return fmt.Errorf("create order: %w", err)
			}

			reply := domain.NewMessage(listing.ID, offer.CounterpartyID, offer.ProposerID,
				fmt.Sprintf("Your offer of %s has been accepted. Order %s has been created.", money.Format(offer.Amount), order.ID),
				domain.MessageOfferAccepted, now)
			reply.OfferID = offer.ID
			reply.OrderID = order.ID
			if err := repos.Messages().Create(ctx, reply); err != nil {
				return fmt.Errorf("create acceptance message: %w", err)
			}

			others, err := repos.Offers().ListPendingByListing(ctx, listing.ID)
			if err != nil {
				return err
			}
			for i := range others {
				other := &others[i]
				if other.ID == offer.ID {
					continue
				}
				if err := other.Reject(now); err != nil {
					return err
				}
				if err := repos.Offers().UpdateStatus(ctx, other); err != nil {
					return fmt.Errorf("reject competing offer %s: %w", other.ID, err)
				}
			}

			out = AcceptOfferOutput{AcceptedOffer: *offer, ResponseMessage: *reply, Order: *order}
			return nil
		})
		if err != nil {
			return AcceptOfferOutput{}, err
		}

		publish(ctx, s.events, s.logger,
			ports.Event{
				Type:       ports.EventOfferAccepted,
				ListingID:  out.AcceptedOffer.ListingID,
				OfferID:    out.AcceptedOffer.ID,
				ActorID:    actor.ID,
				Amount:     out.AcceptedOffer.Amount,
				OccurredAt: out.AcceptedOffer.UpdatedAt,
			},
			ports.Event{
				Type:       ports.EventOrderCreated,
				ListingID:  out.Order.ListingID,
				OfferID:    out.AcceptedOffer.ID,
				OrderID:    out.Order.ID,
				ActorID:    out.Order.BuyerID,
				Amount:     out.Order.TotalPrice,
				OccurredAt: out.Order.CreatedAt,
			},
		)
		return out, nil
	}, "offer_id", offerID, "actor_id", actor.ID)
}

// RejectOffer declines a pending offer. The listing is not consulted.
func (s *NegotiationService) RejectOffer(ctx context.Context, offerID string, actor domain.Actor) result.Result[RejectOfferOutput] {
	return execute(ctx, s.logger, "reject offer", func() (RejectOfferOutput, error) {
		var out RejectOfferOutput
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			offer, err := repos.Offers().GetForUpdate(ctx, offerID)
			if err != nil {
				return lookup(err, "offer")
			}
			if !actor.Is(offer.CounterpartyID) {
				return forbidden("only the recipient of an offer can respond to it")
			}
			if !offer.IsPending() {
				return unprocessable(fmt.Sprintf("offer is already %s", offer.Status))
			}

			now := s.opts.now()
			if err := offer.Reject(now); err != nil {
				return err
			}
			if err := repos.Offers().UpdateStatus(ctx, offer); err != nil {
				return fmt.Errorf("reject offer: %w", err)
			}

			reply := domain.NewMessage(offer.ListingID, offer.CounterpartyID, offer.ProposerID,
				fmt.Sprintf("Your offer of %s has been declined.", money.Format(offer.Amount)),
				domain.MessageOfferRejected, now)
			reply.OfferID = offer.ID
			if err := repos.Messages().Create(ctx, reply); err != nil {
				return fmt.Errorf("create rejection message: %w", err)
			}

			out = RejectOfferOutput{RejectedOffer: *offer, ResponseMessage: *reply}
			return nil
		})
		if err != nil {
			return RejectOfferOutput{}, err
		}

		publish(ctx, s.events, s.logger, ports.Event{
			Type:       ports.EventOfferRejected,
			ListingID:  out.RejectedOffer.ListingID,
			OfferID:    out.RejectedOffer.ID,
			ActorID:    actor.ID,
			Amount:     out.RejectedOffer.Amount,
			OccurredAt: out.RejectedOffer.UpdatedAt,
		})
		return out, nil
	}, "offer_id", offerID, "actor_id", actor.ID)
}

// GetOffer returns an offer to one of its two parties or an admin.
func (s *NegotiationService) GetOffer(ctx context.Context, offerID string, actor domain.Actor) result.Result[domain.Offer] {
	return execute(ctx, s.logger, "get offer", func() (domain.Offer, error) {
		var out domain.Offer
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			offer, err := repos.Offers().Get(ctx, offerID)
			if err != nil {
				return lookup(err, "offer")
			}
			if !actor.IsAdmin && !actor.Is(offer.ProposerID) && !actor.Is(offer.CounterpartyID) {
				return forbidden("you are not a party to this offer")
			}
			out = *offer
			return nil
		})
		return out, err
	}, "offer_id", offerID)
}

// ExpireOffers moves every overdue pending offer to expired and reports how
// many were expired. Each offer is handled in its own unit of work.
func (s *NegotiationService) ExpireOffers(ctx context.Context) result.Result[int] {
	return execute(ctx, s.logger, "expire offers", func() (int, error) {
		now := s.opts.now()

		var overdue []domain.Offer
		err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			var err error
			overdue, err = repos.Offers().ListOverdue(ctx, now, s.opts.sweepSize)
			return err
		})
		if err != nil {
			return 0, err
		}

		expired := 0
		for _, candidate := range overdue {
			err := s.uow.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
				offer, err := repos.Offers().GetForUpdate(ctx, candidate.ID)
				if err != nil {
					return err
				}
				if !offer.IsOverdue(now) {
					return nil
				}
				if err := offer.Expire(now); err != nil {
					return err
				}
				if err := repos.Offers().UpdateStatus(ctx, offer); err != nil {
					return err
				}
				expired++
				return nil
			})
			if err != nil {
				return expired, fmt.Errorf("expire offer %s: %w", candidate.ID, err)
			}
		}
		return expired, nil
	})
}

// releaseCompetingOrders cancels every unpaid order on the listing other than
// keepOrderID, so at most one live order holds a reserved or sold listing.
func releaseCompetingOrders(ctx context.Context, repos ports.Repositories, listingID, keepOrderID string, now time.Time) error {
	holders, err := repos.Orders().ListHoldingByListing(ctx, listingID)
	if err != nil {
		return err
	}
	for i := range holders {
		other := &holders[i]
		if other.ID == keepOrderID {
			continue
		}
		if other.IsPaid() {
			return unprocessable("listing is already held by a paid order")
		}
		if other.PaymentStatus == domain.PaymentPending {
			if err := other.TransitionPayment(domain.PaymentExpired, now); err != nil {
				return err
			}
		}
		if err := other.TransitionStatus(domain.OrderCancelled, now); err != nil {
			return err
		}
		if err := repos.Orders().Update(ctx, other); err != nil {
			return fmt.Errorf("cancel competing order %s: %w", other.ID, err)
		}
	}
	return nil
}
