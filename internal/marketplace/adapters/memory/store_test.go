package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veloswap/market/internal/marketplace/domain"
	"github.com/veloswap/market/internal/marketplace/ports"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedListing(store *Store, id string) {
	store.AddListing(domain.Listing{
		ID:        id,
		OwnerID:   "seller",
		Title:     "Road bike",
		Price:     20000,
		Status:    domain.ListingAvailable,
		Region:    "tokyo",
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func newOffer(t *testing.T, listingID, proposerID string) *domain.Offer {
	t.Helper()
	offer, err := domain.NewOffer(listingID, "msg", proposerID, "seller", 15000, "", now, time.Hour)
	if err != nil {
		t.Fatalf("NewOffer() failed: %v", err)
	}
	return offer
}

func TestStore_DoCommitsOnSuccess(t *testing.T) {
	store := NewStore()
	seedListing(store, "l1")

	err := store.Do(context.Background(), func(ctx context.Context, repos ports.Repositories) error {
		listing, err := repos.Listings().GetForUpdate(ctx, "l1")
		if err != nil {
			return err
		}
		if err := listing.TransitionTo(domain.ListingReserved, now); err != nil {
			return err
		}
		return repos.Listings().UpdateStatus(ctx, listing)
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}

	listing, _ := store.Listing("l1")
	if listing.Status != domain.ListingReserved {
		t.Errorf("expected reserved, got %s", listing.Status)
	}
}

func TestStore_DoDiscardsOnError(t *testing.T) {
	store := NewStore()
	seedListing(store, "l1")
	boom := errors.New("boom")

	err := store.Do(context.Background(), func(ctx context.Context, repos ports.Repositories) error {
		listing, _ := repos.Listings().GetForUpdate(ctx, "l1")
		_ = listing.TransitionTo(domain.ListingSold, now)
		if err := repos.Listings().UpdateStatus(ctx, listing); err != nil {
			return err
		}
		if err := repos.Offers().Create(ctx, newOffer(t, "l1", "buyer")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	listing, _ := store.Listing("l1")
	if listing.Status != domain.ListingAvailable {
		t.Errorf("expected listing to stay available, got %s", listing.Status)
	}
	if offers := store.Offers("l1"); len(offers) != 0 {
		t.Errorf("expected no offers, got %d", len(offers))
	}
}

func TestStore_DoDiscardsOnPanic(t *testing.T) {
	store := NewStore()
	seedListing(store, "l1")

	func() {
		defer func() { _ = recover() }()
		_ = store.Do(context.Background(), func(ctx context.Context, repos ports.Repositories) error {
			listing, _ := repos.Listings().GetForUpdate(ctx, "l1")
			_ = listing.TransitionTo(domain.ListingSold, now)
			_ = repos.Listings().UpdateStatus(ctx, listing)
			panic("mid-operation crash")
		})
	}()

	listing, _ := store.Listing("l1")
	if listing.Status != domain.ListingAvailable {
		t.Errorf("expected listing to stay available, got %s", listing.Status)
	}

	// The store must still be usable after the panic released the lock.
	if err := store.Do(context.Background(), func(context.Context, ports.Repositories) error { return nil }); err != nil {
		t.Fatalf("Do() after panic failed: %v", err)
	}
}

func TestStore_DoHonoursCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Do(ctx, func(context.Context, ports.Repositories) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn should not run with a cancelled context")
	}
}

func TestStore_Faults(t *testing.T) {
	store := NewStore()
	seedListing(store, "l1")
	injected := errors.New("disk full")
	store.SetFault(FaultOrderCreate, injected)

	err := store.Do(context.Background(), func(ctx context.Context, repos ports.Repositories) error {
		return repos.Orders().Create(ctx, domain.NewOrder("buyer", "l1", domain.PaymentBankTransfer, now.Add(time.Hour), now))
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected fault, got %v", err)
	}

	store.ClearFaults()
	err = store.Do(context.Background(), func(ctx context.Context, repos ports.Repositories) error {
		return repos.Orders().Create(ctx, domain.NewOrder("buyer", "l1", domain.PaymentBankTransfer, now.Add(time.Hour), now))
	})
	if err != nil {
		t.Fatalf("Do() after ClearFaults failed: %v", err)
	}
	if got := len(store.Orders()); got != 1 {
		t.Errorf("expected 1 order, got %d", got)
	}
}

func TestOfferRepository_RejectsSecondPendingOffer(t *testing.T) {
	store := NewStore()
	seedListing(store, "l1")
	ctx := context.Background()

	create := func(proposer string) error {
		return store.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
			return repos.Offers().Create(ctx, newOffer(t, "l1", proposer))
		})
	}

	if err := create("buyer"); err != nil {
		t.Fatalf("first offer failed: %v", err)
	}
	if err := create("buyer"); !errors.Is(err, ports.ErrDuplicatePendingOffer) {
		t.Errorf("expected ErrDuplicatePendingOffer, got %v", err)
	}
	if err := create("other-buyer"); err != nil {
		t.Errorf("offer from another proposer failed: %v", err)
	}
}

func TestOfferRepository_ListOverdue(t *testing.T) {
	store := NewStore()
	seedListing(store, "l1")
	ctx := context.Background()

	err := store.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
		for _, proposer := range []string{"a", "b", "c"} {
			if err := repos.Offers().Create(ctx, newOffer(t, "l1", proposer)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed offers failed: %v", err)
	}

	tests := []struct {
		name  string
		at    time.Time
		limit int
		want  int
	}{
		{"before expiry", now.Add(30 * time.Minute), 10, 0},
		{"after expiry", now.Add(2 * time.Hour), 10, 3},
		{"limited", now.Add(2 * time.Hour), 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []domain.Offer
			_ = store.Do(ctx, func(ctx context.Context, repos ports.Repositories) error {
				var err error
				got, err = repos.Offers().ListOverdue(ctx, tt.at, tt.limit)
				return err
			})
			if len(got) != tt.want {
				t.Errorf("expected %d overdue offers, got %d", tt.want, len(got))
			}
		})
	}
}

func TestOrderRepository_ListHoldingByListing(t *testing.T) {
	store := NewStore()
	seedListing(store, "l1")

	live := domain.NewOrder("a", "l1", domain.PaymentBankTransfer, now.Add(time.Hour), now)
	cancelled := domain.NewOrder("b", "l1", domain.PaymentBankTransfer, now.Add(time.Hour), now)
	cancelled.Status = domain.OrderCancelled
	elsewhere := domain.NewOrder("c", "l2", domain.PaymentBankTransfer, now.Add(time.Hour), now)
	for _, o := range []*domain.Order{live, cancelled, elsewhere} {
		store.AddOrder(*o)
	}

	var got []domain.Order
	_ = store.Do(context.Background(), func(ctx context.Context, repos ports.Repositories) error {
		var err error
		got, err = repos.Orders().ListHoldingByListing(ctx, "l1")
		return err
	})
	if len(got) != 1 || got[0].ID != live.ID {
		t.Errorf("expected only the live order, got %+v", got)
	}
}

func TestUserDirectory_Exists(t *testing.T) {
	store := NewStore()
	store.AddUser("u1")

	check := func(id string) bool {
		var exists bool
		_ = store.Do(context.Background(), func(ctx context.Context, repos ports.Repositories) error {
			var err error
			exists, err = repos.Users().Exists(ctx, id)
			return err
		})
		return exists
	}

	if !check("u1") {
		t.Error("expected u1 to exist")
	}
	store.RemoveUser("u1")
	if check("u1") {
		t.Error("expected u1 to be removed")
	}
}
