package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/veloswap/market/internal/marketplace/domain"
)

func TestListingTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.ListingStatus
		to      domain.ListingStatus
		wantErr bool
	}{
		{"draft to pending review", domain.ListingDraft, domain.ListingPendingReview, false},
		{"pending review to available", domain.ListingPendingReview, domain.ListingAvailable, false},
		{"pending review to rejected", domain.ListingPendingReview, domain.ListingRejected, false},
		{"available to reserved", domain.ListingAvailable, domain.ListingReserved, false},
		{"reserved back to available", domain.ListingReserved, domain.ListingAvailable, false},
		{"reserved to sold", domain.ListingReserved, domain.ListingSold, false},
		{"available to sold", domain.ListingAvailable, domain.ListingSold, false},
		{"rejected to draft", domain.ListingRejected, domain.ListingDraft, false},
		{"available to archived", domain.ListingAvailable, domain.ListingArchived, false},
		{"reserved to archived", domain.ListingReserved, domain.ListingArchived, false},
		{"sold cannot be archived", domain.ListingSold, domain.ListingArchived, true},
		{"sold cannot be reserved", domain.ListingSold, domain.ListingReserved, true},
		{"archived is terminal", domain.ListingArchived, domain.ListingAvailable, true},
		{"draft cannot skip review", domain.ListingDraft, domain.ListingAvailable, true},
		{"reserved cannot be rejected", domain.ListingReserved, domain.ListingRejected, true},
	}

	now := time.Now().UTC()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing := domain.Listing{ID: "l-1", Status: tt.from}
			err := listing.TransitionTo(tt.to, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
				if listing.Status != tt.from {
					t.Errorf("status changed to %s on failed transition", listing.Status)
				}
				return
			}
			if listing.Status != tt.to {
				t.Errorf("expected status %s, got %s", tt.to, listing.Status)
			}
			if !listing.UpdatedAt.Equal(now) {
				t.Error("expected updated_at to be set")
			}
		})
	}
}

func TestListingAvailability(t *testing.T) {
	tests := []struct {
		status domain.ListingStatus
		want   bool
	}{
		{domain.ListingAvailable, true},
		{domain.ListingDraft, false},
		{domain.ListingPendingReview, false},
		{domain.ListingReserved, false},
		{domain.ListingSold, false},
		{domain.ListingRejected, false},
		{domain.ListingArchived, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			l := domain.Listing{Status: tt.status}
			if got := l.IsOfferable(); got != tt.want {
				t.Errorf("IsOfferable() = %v, want %v", got, tt.want)
			}
			if got := l.IsPurchasable(); got != tt.want {
				t.Errorf("IsPurchasable() = %v, want %v", got, tt.want)
			}
		})
	}
}
