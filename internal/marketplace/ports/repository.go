package ports

import (
	"context"
	"errors"
	"time"

	"github.com/veloswap/market/internal/marketplace/domain"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePendingOffer is returned when a proposer already has a pending
	// offer on the listing. Storage enforces it with a unique constraint.
	ErrDuplicatePendingOffer = errors.New("a pending offer already exists for this listing")
)

// ListingRepository reads and updates listings inside a unit of work.
type ListingRepository interface {
	Get(ctx context.Context, id string) (*domain.Listing, error)
	// GetForUpdate reads the listing and holds an exclusive lock on it until
	// the surrounding unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Listing, error)
	UpdateStatus(ctx context.Context, listing *domain.Listing) error
}

// OfferRepository persists offers.
type OfferRepository interface {
	Create(ctx context.Context, offer *domain.Offer) error
	Get(ctx context.Context, id string) (*domain.Offer, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Offer, error)
	HasPending(ctx context.Context, listingID, proposerID string) (bool, error)
	ListPendingByListing(ctx context.Context, listingID string) ([]domain.Offer, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Offer, error)
	UpdateStatus(ctx context.Context, offer *domain.Offer) error
}

// OrderRepository persists orders. Orders are never deleted.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Order, error)
	// ListHoldingByListing returns every non-cancelled order on the listing.
	ListHoldingByListing(ctx context.Context, listingID string) ([]domain.Order, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
}

// MessageRepository appends conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
}

// UserDirectory answers whether a user account still resolves.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Repositories is the set of repositories bound to one unit of work.
type Repositories interface {
	Listings() ListingRepository
	Offers() OfferRepository
	Orders() OrderRepository
	Messages() MessageRepository
	Users() UserDirectory
}

// UnitOfWork runs fn atomically: every write made through repos is applied
// when fn returns nil and discarded when it returns an error or panics.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
