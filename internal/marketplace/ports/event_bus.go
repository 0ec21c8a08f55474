package ports

import (
	"context"
	"time"
)

// Event types published after a unit of work commits.
const (
	EventOfferCreated     = "offer.created"
	EventOfferAccepted    = "offer.accepted"
	EventOfferRejected    = "offer.rejected"
	EventOrderCreated     = "order.created"
	EventPaymentConfirmed = "payment.confirmed"
	EventSaleApproved     = "sale.approved"
	EventSaleRejected     = "sale.rejected"
)

// Event describes a committed marketplace transition.
type Event struct {
	Type       string    `json:"type"`
	ListingID  string    `json:"listing_id"`
	OfferID    string    `json:"offer_id,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventBus defines the contract for publishing marketplace events to the
// notification subsystem.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
}
