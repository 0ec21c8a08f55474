package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/veloswap/market/internal/marketplace/domain"
)

// Seed is the JSON document accepted by LoadSeed.
type Seed struct {
	Users    []string         `json:"users"`
	Listings []domain.Listing `json:"listings"`
}

// LoadSeed reads a seed file and applies it. Listings without a status start
// in pending_review when moderation is enabled and available otherwise.
func (s *Store) LoadSeed(path string, moderationEnabled bool, now time.Time) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed file: %w", err)
	}

	initial := domain.ListingAvailable
	if moderationEnabled {
		initial = domain.ListingPendingReview
	}

	for i, listing := range seed.Listings {
		if listing.ID == "" || listing.OwnerID == "" {
			return Seed{}, fmt.Errorf("seed listing %d: id and owner_id are required", i)
		}
		if listing.Status == "" {
			listing.Status = initial
		}
		if listing.CreatedAt.IsZero() {
			listing.CreatedAt = now
		}
		if listing.UpdatedAt.IsZero() {
			listing.UpdatedAt = listing.CreatedAt
		}
		seed.Listings[i] = listing
	}

	for _, id := range seed.Users {
		s.AddUser(id)
	}
	for _, listing := range seed.Listings {
		s.AddUser(listing.OwnerID)
		s.AddListing(listing)
	}
	return seed, nil
}
