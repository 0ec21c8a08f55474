package domain

import (
	"fmt"
	"time"
)

// ListingStatus is the availability state of a listing.
type ListingStatus string

const (
	ListingDraft         ListingStatus = "draft"
	ListingPendingReview ListingStatus = "pending_review"
	ListingAvailable     ListingStatus = "available"
	ListingReserved      ListingStatus = "reserved"
	ListingSold          ListingStatus = "sold"
	ListingRejected      ListingStatus = "rejected"
	ListingArchived      ListingStatus = "archived"
)

// sold -> available only happens when a sale is refunded or its order lapses unpaid.
var listingTransitions = map[ListingStatus][]ListingStatus{
	ListingDraft:         {ListingPendingReview, ListingArchived},
	ListingPendingReview: {ListingAvailable, ListingRejected, ListingArchived},
	ListingAvailable:     {ListingReserved, ListingSold, ListingRejected, ListingArchived},
	ListingReserved:      {ListingAvailable, ListingSold, ListingArchived},
	ListingSold:          {ListingAvailable},
	ListingRejected:      {ListingDraft, ListingArchived},
	ListingArchived:      {},
}

// Listing is a bicycle offered for sale.
type Listing struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Title     string        `json:"title"`
	Price     int64         `json:"price"`
	Status    ListingStatus `json:"status"`
	WeightKg  *float64      `json:"weight_kg,omitempty"`
	Region    string        `json:"region"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IsOfferable reports whether buyers may negotiate on the listing.
func (l Listing) IsOfferable() bool {
	return l.Status == ListingAvailable
}

// IsPurchasable reports whether the listing can be bought outright.
func (l Listing) IsPurchasable() bool {
	return l.Status == ListingAvailable
}

// CanTransitionTo reports whether the listing may move to next.
func (l Listing) CanTransitionTo(next ListingStatus) bool {
	return allowed(listingTransitions[l.Status], next)
}

// TransitionTo moves the listing to next or returns ErrInvalidTransition.
func (l *Listing) TransitionTo(next ListingStatus, now time.Time) error {
	if !l.CanTransitionTo(next) {
		return fmt.Errorf("%w: listing %s from %s to %s", ErrInvalidTransition, l.ID, l.Status, next)
	}
	l.Status = next
	l.UpdatedAt = now
	return nil
}

func allowed[S comparable](targets []S, next S) bool {
	for _, s := range targets {
		if s == next {
			return true
		}
	}
	return false
}
