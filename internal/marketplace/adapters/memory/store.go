package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/veloswap/market/internal/marketplace/domain"
	"github.com/veloswap/market/internal/marketplace/ports"
)

// Fault points accepted by SetFault.
const (
	FaultListingUpdate = "listings.update"
	FaultOfferCreate   = "offers.create"
	FaultOfferUpdate   = "offers.update"
	FaultOrderCreate   = "orders.create"
	FaultOrderUpdate   = "orders.update"
	FaultMessageCreate = "messages.create"
)

type state struct {
	listings map[string]domain.Listing
	offers   map[string]domain.Offer
	orders   map[string]domain.Order
	messages []domain.Message
	users    map[string]bool
}

func (s state) clone() state {
	return state{
		listings: maps.Clone(s.listings),
		offers:   maps.Clone(s.offers),
		orders:   maps.Clone(s.orders),
		messages: slices.Clone(s.messages),
		users:    maps.Clone(s.users),
	}
}

// Store is an in-memory marketplace store useful for local development and
// tests. Units of work run one at a time against a copy of the state that is
// swapped in only when the work succeeds, so every unit is serializable and
// atomic.
type Store struct {
	mu     sync.Mutex
	state  state
	faults map[string]error
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		state: state{
			listings: make(map[string]domain.Listing),
			offers:   make(map[string]domain.Offer),
			orders:   make(map[string]domain.Order),
			users:    make(map[string]bool),
		},
		faults: make(map[string]error),
	}
}

// Do implements ports.UnitOfWork.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(ctx, &repositories{state: &work, faults: s.faults}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// SetFault makes the named write fail with err until cleared.
func (s *Store) SetFault(point string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[point] = err
}

// ClearFaults removes every injected fault.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.faults)
}

// AddUser registers a user account.
func (s *Store) AddUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[id] = true
}

// RemoveUser deletes a user account.
func (s *Store) RemoveUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.users, id)
}

// AddListing stores a listing as-is, overwriting any listing with the same ID.
func (s *Store) AddListing(listing domain.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.listings[listing.ID] = listing
}

// AddOrder stores an order as-is.
func (s *Store) AddOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[order.ID] = order
}

// Listing returns a snapshot of a listing.
func (s *Store) Listing(id string) (domain.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.state.listings[id]
	return listing, ok
}

// Offer returns a snapshot of an offer.
func (s *Store) Offer(id string) (domain.Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, ok := s.state.offers[id]
	return offer, ok
}

// Order returns a snapshot of an order.
func (s *Store) Order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.state.orders[id]
	return order, ok
}

// Orders returns every order, oldest first.
func (s *Store) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := slices.Collect(maps.Values(s.state.orders))
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders
}

// Offers returns every offer on a listing, oldest first.
func (s *Store) Offers(listingID string) []domain.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var offers []domain.Offer
	for _, offer := range s.state.offers {
		if offer.ListingID == listingID {
			offers = append(offers, offer)
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})
	return offers
}

// Messages returns every message in insertion order.
func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.messages)
}

type repositories struct {
	state  *state
	faults map[string]error
}

func (r *repositories) Listings() ports.ListingRepository { return listingRepository{r} }
func (r *repositories) Offers() ports.OfferRepository     { return offerRepository{r} }
func (r *repositories) Orders() ports.OrderRepository     { return orderRepository{r} }
func (r *repositories) Messages() ports.MessageRepository { return messageRepository{r} }
func (r *repositories) Users() ports.UserDirectory        { return userDirectory{r} }

func (r *repositories) fault(point string) error {
	return r.faults[point]
}

type listingRepository struct{ *repositories }

func (r listingRepository) Get(_ context.Context, id string) (*domain.Listing, error) {
	listing, ok := r.state.listings[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &listing, nil
}

// GetForUpdate needs no extra locking: the unit of work already holds the store.
func (r listingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Listing, error) {
	return r.Get(ctx, id)
}

func (r listingRepository) UpdateStatus(_ context.Context, listing *domain.Listing) error {
	if err := r.fault(FaultListingUpdate); err != nil {
		return err
	}
	stored, ok := r.state.listings[listing.ID]
	if !ok {
		return ports.ErrNotFound
	}
	stored.Status = listing.Status
	stored.UpdatedAt = listing.UpdatedAt
	r.state.listings[listing.ID] = stored
	return nil
}

type offerRepository struct{ *repositories }

func (r offerRepository) Create(_ context.Context, offer *domain.Offer) error {
	if err := r.fault(FaultOfferCreate); err != nil {
		return err
	}
	if offer.IsPending() && r.hasPending(offer.ListingID, offer.ProposerID) {
		return ports.ErrDuplicatePendingOffer
	}
	r.state.offers[offer.ID] = *offer
	return nil
}

func (r offerRepository) Get(_ context.Context, id string) (*domain.Offer, error) {
	offer, ok := r.state.offers[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &offer, nil
}

func (r offerRepository) GetForUpdate(ctx context.Context, id string) (*domain.Offer, error) {
	return r.Get(ctx, id)
}

func (r offerRepository) HasPending(_ context.Context, listingID, proposerID string) (bool, error) {
	return r.hasPending(listingID, proposerID), nil
}

func (r offerRepository) hasPending(listingID, proposerID string) bool {
	for _, offer := range r.state.offers {
		if offer.ListingID == listingID && offer.ProposerID == proposerID && offer.IsPending() {
			return true
		}
	}
	return false
}

func (r offerRepository) ListPendingByListing(_ context.Context, listingID string) ([]domain.Offer, error) {
	var offers []domain.Offer
	for _, offer := range r.state.offers {
		if offer.ListingID == listingID && offer.IsPending() {
			offers = append(offers, offer)
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})
	return offers, nil
}

func (r offerRepository) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.Offer, error) {
	var offers []domain.Offer
	for _, offer := range r.state.offers {
		if offer.IsOverdue(now) {
			offers = append(offers, offer)
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].ExpiresAt.Before(offers[j].ExpiresAt)
	})
	if limit > 0 && len(offers) > limit {
		offers = offers[:limit]
	}
	return offers, nil
}

func (r offerRepository) UpdateStatus(_ context.Context, offer *domain.Offer) error {
	if err := r.fault(FaultOfferUpdate); err != nil {
		return err
	}
	stored, ok := r.state.offers[offer.ID]
	if !ok {
		return ports.ErrNotFound
	}
	stored.Status = offer.Status
	stored.UpdatedAt = offer.UpdatedAt
	r.state.offers[offer.ID] = stored
	return nil
}

type orderRepository struct{ *repositories }

func (r orderRepository) Create(_ context.Context, order *domain.Order) error {
	if err := r.fault(FaultOrderCreate); err != nil {
		return err
	}
	r.state.orders[order.ID] = *order
	return nil
}

func (r orderRepository) Get(_ context.Context, id string) (*domain.Order, error) {
	order, ok := r.state.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &order, nil
}

func (r orderRepository) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.Get(ctx, id)
}

func (r orderRepository) ListHoldingByListing(_ context.Context, listingID string) ([]domain.Order, error) {
	var orders []domain.Order
	for _, order := range r.state.orders {
		if order.ListingID == listingID && order.HoldsListing() {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (r orderRepository) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	for _, order := range r.state.orders {
		if order.IsPaymentOverdue(now) {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].PaymentDeadline.Before(orders[j].PaymentDeadline)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (r orderRepository) Update(_ context.Context, order *domain.Order) error {
	if err := r.fault(FaultOrderUpdate); err != nil {
		return err
	}
	if _, ok := r.state.orders[order.ID]; !ok {
		return ports.ErrNotFound
	}
	r.state.orders[order.ID] = *order
	return nil
}

type messageRepository struct{ *repositories }

func (r messageRepository) Create(_ context.Context, message *domain.Message) error {
	if err := r.fault(FaultMessageCreate); err != nil {
		return err
	}
	r.state.messages = append(r.state.messages, *message)
	return nil
}

type userDirectory struct{ *repositories }

func (r userDirectory) Exists(_ context.Context, userID string) (bool, error) {
	return r.state.users[userID], nil
}
