package app_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/veloswap/market/internal/marketplace/adapters/memory"
	"github.com/veloswap/market/internal/marketplace/app"
	"github.com/veloswap/market/internal/marketplace/domain"
	"github.com/veloswap/market/internal/marketplace/ports"
)

var (
	seller   = domain.Actor{ID: "seller"}
	buyer    = domain.Actor{ID: "buyer"}
	buyer2   = domain.Actor{ID: "buyer-2"}
	stranger = domain.Actor{ID: "stranger"}
	admin    = domain.Actor{ID: "admin", IsAdmin: true}
)

var startTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingBus struct {
	mu        sync.Mutex
	events    []ports.Event
	publishFn func(ctx context.Context, event ports.Event) error
}

func (b *recordingBus) Publish(ctx context.Context, event ports.Event) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	if b.publishFn != nil {
		return b.publishFn(ctx, event)
	}
	return nil
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var types []string
	for _, e := range b.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	store       *memory.Store
	events      *recordingBus
	clock       *fakeClock
	negotiation *app.NegotiationService
	fulfillment *app.FulfillmentService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	for _, actor := range []domain.Actor{seller, buyer, buyer2, stranger, admin} {
		store.AddUser(actor.ID)
	}

	clock := &fakeClock{now: startTime}
	events := &recordingBus{}
	logger := discardLogger()

	return &fixture{
		store:       store,
		events:      events,
		clock:       clock,
		negotiation: app.NewNegotiationService(store, events, logger, app.WithClock(clock.Now), app.WithOfferTTL(24*time.Hour)),
		fulfillment: app.NewFulfillmentService(store, events, logger, app.WithClock(clock.Now)),
	}
}

func weight(kg float64) *float64 {
	return &kg
}

// addListing seeds an available listing owned by seller.
func (f *fixture) addListing(id string, price int64, weightKg *float64) domain.Listing {
	listing := domain.Listing{
		ID:        id,
		OwnerID:   seller.ID,
		Title:     "Steel frame touring bike",
		Price:     price,
		Status:    domain.ListingAvailable,
		WeightKg:  weightKg,
		Region:    "tokyo",
		CreatedAt: startTime,
		UpdatedAt: startTime,
	}
	f.store.AddListing(listing)
	return listing
}

func (f *fixture) listing(t *testing.T, id string) domain.Listing {
	t.Helper()
	listing, ok := f.store.Listing(id)
	if !ok {
		t.Fatalf("listing %s not found", id)
	}
	return listing
}

func (f *fixture) offer(t *testing.T, id string) domain.Offer {
	t.Helper()
	offer, ok := f.store.Offer(id)
	if !ok {
		t.Fatalf("offer %s not found", id)
	}
	return offer
}

func (f *fixture) order(t *testing.T, id string) domain.Order {
	t.Helper()
	order, ok := f.store.Order(id)
	if !ok {
		t.Fatalf("order %s not found", id)
	}
	return order
}

func (f *fixture) makeOffer(t *testing.T, proposer domain.Actor, listingID string, amount int64) domain.Offer {
	t.Helper()
	res := f.negotiation.CreateOffer(context.Background(), proposer, app.CreateOfferInput{
		ListingID:      listingID,
		CounterpartyID: seller.ID,
		Amount:         amount,
	})
	if !res.Success {
		t.Fatalf("CreateOffer() failed: %s %v", res.Status, res.Errors)
	}
	return res.Value().Offer
}

func (f *fixture) placeOrder(t *testing.T, purchaser domain.Actor, listingID string, method domain.PaymentMethod) domain.Order {
	t.Helper()
	res := f.fulfillment.CreateOrder(context.Background(), purchaser, orderInput(listingID, method))
	if !res.Success {
		t.Fatalf("CreateOrder() failed: %s %v", res.Status, res.Errors)
	}
	return res.Value().Order
}

func orderInput(listingID string, method domain.PaymentMethod) app.CreateOrderInput {
	return app.CreateOrderInput{
		ListingID:     listingID,
		PaymentMethod: method,
		ShippingAddress: domain.ShippingAddress{
			RecipientName: "Hanako Sato",
			PostalCode:    "150-0001",
			Region:        "tokyo",
			City:          "Shibuya",
			Line1:         "1-2-3 Jingumae",
			Phone:         "03-1234-5678",
		},
	}
}

// assertSingleHolder checks that a reserved or sold listing is referenced by
// at most one live order.
func assertSingleHolder(t *testing.T, f *fixture, listingID string) {
	t.Helper()
	listing := f.listing(t, listingID)
	if listing.Status != domain.ListingReserved && listing.Status != domain.ListingSold {
		return
	}
	holders := 0
	for _, order := range f.store.Orders() {
		if order.ListingID == listingID && order.HoldsListing() {
			holders++
		}
	}
	if holders > 1 {
		t.Errorf("listing %s is %s with %d live orders", listingID, listing.Status, holders)
	}
}

func assertPendingPerProposer(t *testing.T, f *fixture, listingID string) {
	t.Helper()
	pending := make(map[string]int)
	for _, offer := range f.store.Offers(listingID) {
		if offer.IsPending() {
			pending[offer.ProposerID]++
		}
	}
	for proposer, n := range pending {
		if n > 1 {
			t.Errorf("proposer %s has %d pending offers on %s", proposer, n, listingID)
		}
	}
}
