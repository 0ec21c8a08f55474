package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus captures the fulfillment lifecycle of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// PaymentStatus captures the payment lifecycle of an order.
type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
	PaymentPaid                 PaymentStatus = "paid"
	PaymentRefunded             PaymentStatus = "refunded"
	PaymentExpired              PaymentStatus = "expired"
)

// PaymentMethod selects how the buyer pays.
type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCreditCard   PaymentMethod = "credit_card"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentBankTransfer || m == PaymentCreditCard
}

// ReservesOnCreate reports whether placing an order with m reserves the
// listing immediately. Bank transfers wait for payment confirmation.
func (m PaymentMethod) ReservesOnCreate() bool {
	return m == PaymentCreditCard
}

const DefaultShippingMethod = "standard"

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderCompleted, OrderCancelled},
	OrderCompleted:  {},
	OrderCancelled:  {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:              {PaymentAwaitingConfirmation, PaymentPaid, PaymentExpired},
	PaymentAwaitingConfirmation: {PaymentPaid},
	PaymentPaid:                 {PaymentRefunded},
	PaymentRefunded:             {},
	PaymentExpired:              {},
}

// ShippingAddress is where the bicycle is delivered.
type ShippingAddress struct {
	RecipientName string `json:"recipient_name"`
	PostalCode    string `json:"postal_code"`
	Region        string `json:"region"`
	City          string `json:"city"`
	Line1         string `json:"line1"`
	Line2         string `json:"line2,omitempty"`
	Phone         string `json:"phone"`
}

// Validate returns one message per invalid field.
func (a ShippingAddress) Validate() []string {
	var problems []string
	required := []struct {
		field string
		value string
	}{
		{"recipient_name", a.RecipientName},
		{"postal_code", a.PostalCode},
		{"region", a.Region},
		{"city", a.City},
		{"line1", a.Line1},
		{"phone", a.Phone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, r.field+" is required")
		}
	}
	if pc := strings.TrimSpace(a.PostalCode); pc != "" && !isPostalCode(pc) {
		problems = append(problems, "postal_code must look like 123-4567")
	}
	return problems
}

func isPostalCode(s string) bool {
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 7 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Order is the transactional record of a sale.
type Order struct {
	ID              string           `json:"id"`
	BuyerID         string           `json:"buyer_id"`
	ListingID       string           `json:"listing_id"`
	OfferID         string           `json:"offer_id,omitempty"`
	Subtotal        int64            `json:"subtotal"`
	ShippingCost    int64            `json:"shipping_cost"`
	Tax             int64            `json:"tax"`
	TotalPrice      int64            `json:"total_price"`
	CommissionFee   int64            `json:"commission_fee"`
	SellerReceives  int64            `json:"seller_receives"`
	Status          OrderStatus      `json:"status"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	PaymentDeadline time.Time        `json:"payment_deadline"`
	ShippingMethod  string           `json:"shipping_method"`
	ShippingAddress *ShippingAddress `json:"shipping_address,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewOrder builds a pending, unpaid order.
func NewOrder(buyerID, listingID string, method PaymentMethod, deadline, now time.Time) *Order {
	return &Order{
		ID:              uuid.NewString(),
		BuyerID:         buyerID,
		ListingID:       listingID,
		Status:          OrderPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   method,
		PaymentDeadline: deadline,
		ShippingMethod:  DefaultShippingMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HoldsListing reports whether the order still counts against its listing.
func (o Order) HoldsListing() bool {
	return o.Status != OrderCancelled
}

// IsPaid reports whether payment has been confirmed.
func (o Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

// IsPaymentOverdue reports whether an unpaid order has passed its deadline.
func (o Order) IsPaymentOverdue(now time.Time) bool {
	return o.PaymentStatus == PaymentPending &&
		o.Status == OrderPending &&
		!o.PaymentDeadline.IsZero() &&
		now.After(o.PaymentDeadline)
}

// TransitionStatus moves the order to next. Completion requires a paid order.
func (o *Order) TransitionStatus(next OrderStatus, now time.Time) error {
	if !allowed(orderTransitions[o.Status], next) {
		return fmt.Errorf("%w: order %s from %s to %s", ErrInvalidTransition, o.ID, o.Status, next)
	}
	if next == OrderCompleted && !o.IsPaid() {
		return fmt.Errorf("%w: order %s", ErrPaymentNotConfirmed, o.ID)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// TransitionPayment moves the payment status to next.
func (o *Order) TransitionPayment(next PaymentStatus, now time.Time) error {
	if !allowed(paymentTransitions[o.PaymentStatus], next) {
		return fmt.Errorf("%w: order %s payment from %s to %s", ErrInvalidTransition, o.ID, o.PaymentStatus, next)
	}
	o.PaymentStatus = next
	o.UpdatedAt = now
	return nil
}
