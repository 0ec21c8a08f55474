package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/veloswap/market/internal/marketplace/domain"
	"github.com/veloswap/market/internal/marketplace/ports"
)

const listingColumns = `id, owner_id, title, price, status, weight_kg, region, created_at, updated_at`

type ListingRepository struct{ *repositories }

func scanListing(row pgx.Row) (*domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(
		&l.ID,
		&l.OwnerID,
		&l.Title,
		&l.Price,
		&l.Status,
		&l.WeightKg,
		&l.Region,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ListingRepository) Get(ctx context.Context, id string) (*domain.Listing, error) {
	defer r.record(ctx, "get_listing", time.Now())

	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	listing, err := scanListing(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("select listing: %w", notFound(err))
	}
	return listing, nil
}

func (r *ListingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Listing, error) {
	defer r.record(ctx, "lock_listing", time.Now())

	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 FOR UPDATE`
	listing, err := scanListing(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("lock listing: %w", notFound(err))
	}
	return listing, nil
}

func (r *ListingRepository) UpdateStatus(ctx context.Context, listing *domain.Listing) error {
	defer r.record(ctx, "update_listing_status", time.Now())

	query := `
		UPDATE listings
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.tx.Exec(ctx, query, listing.Status, listing.UpdatedAt, listing.ID)
	if err != nil {
		return fmt.Errorf("update listing status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update listing status: %w", notFound(pgx.ErrNoRows))
	}
	return nil
}

const offerColumns = `id, listing_id, message_id, proposer_id, counterparty_id, amount, status, note, expires_at, created_at, updated_at`

type OfferRepository struct{ *repositories }

func scanOffer(row pgx.Row) (*domain.Offer, error) {
	var o domain.Offer
	err := row.Scan(
		&o.ID,
		&o.ListingID,
		&o.MessageID,
		&o.ProposerID,
		&o.CounterpartyID,
		&o.Amount,
		&o.Status,
		&o.Note,
		&o.ExpiresAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOffers(rows pgx.Rows) ([]domain.Offer, error) {
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, *offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return offers, nil
}

func (r *OfferRepository) Create(ctx context.Context, offer *domain.Offer) error {
	defer r.record(ctx, "create_offer", time.Now())

	query := `
		INSERT INTO offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.tx.Exec(ctx, query,
		offer.ID,
		offer.ListingID,
		offer.MessageID,
		offer.ProposerID,
		offer.CounterpartyID,
		offer.Amount,
		offer.Status,
		offer.Note,
		offer.ExpiresAt,
		offer.CreatedAt,
		offer.UpdatedAt,
	)
	if err != nil {
		if isPendingOfferConflict(err) {
			return ports.ErrDuplicatePendingOffer
		}
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (r *OfferRepository) Get(ctx context.Context, id string) (*domain.Offer, error) {
	defer r.record(ctx, "get_offer", time.Now())

	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	offer, err := scanOffer(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("select offer: %w", notFound(err))
	}
	return offer, nil
}

func (r *OfferRepository) GetForUpdate(ctx context.Context, id string) (*domain.Offer, error) {
	defer r.record(ctx, "lock_offer", time.Now())

	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 FOR UPDATE`
	offer, err := scanOffer(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("lock offer: %w", notFound(err))
	}
	return offer, nil
}

func (r *OfferRepository) HasPending(ctx context.Context, listingID, proposerID string) (bool, error) {
	defer r.record(ctx, "has_pending_offer", time.Now())

	query := `
		SELECT EXISTS (
			SELECT 1 FROM offers
			WHERE listing_id = $1 AND proposer_id = $2 AND status = 'pending'
		)
	`

	var exists bool
	if err := r.tx.QueryRow(ctx, query, listingID, proposerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pending offer: %w", err)
	}
	return exists, nil
}

// ListPendingByListing locks the pending offers it returns.
func (r *OfferRepository) ListPendingByListing(ctx context.Context, listingID string) ([]domain.Offer, error) {
	defer r.record(ctx, "list_pending_offers", time.Now())

	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE listing_id = $1 AND status = 'pending'
		ORDER BY created_at
		FOR UPDATE
	`

	rows, err := r.tx.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("query pending offers: %w", err)
	}
	return collectOffers(rows)
}

func (r *OfferRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Offer, error) {
	defer r.record(ctx, "list_overdue_offers", time.Now())

	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`

	rows, err := r.tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query overdue offers: %w", err)
	}
	return collectOffers(rows)
}

func (r *OfferRepository) UpdateStatus(ctx context.Context, offer *domain.Offer) error {
	defer r.record(ctx, "update_offer_status", time.Now())

	query := `
		UPDATE offers
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.tx.Exec(ctx, query, offer.Status, offer.UpdatedAt, offer.ID)
	if err != nil {
		return fmt.Errorf("update offer status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update offer status: %w", notFound(pgx.ErrNoRows))
	}
	return nil
}

const orderColumns = `id, buyer_id, listing_id, COALESCE(offer_id, ''), subtotal, shipping_cost, tax, total_price,
	commission_fee, seller_receives, status, payment_status, payment_method, payment_deadline,
	shipping_method, shipping_address, rejection_reason, created_at, updated_at`

type OrderRepository struct{ *repositories }

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.BuyerID,
		&o.ListingID,
		&o.OfferID,
		&o.Subtotal,
		&o.ShippingCost,
		&o.Tax,
		&o.TotalPrice,
		&o.CommissionFee,
		&o.SellerReceives,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentMethod,
		&o.PaymentDeadline,
		&o.ShippingMethod,
		&o.ShippingAddress,
		&o.RejectionReason,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	defer r.record(ctx, "create_order", time.Now())

	query := `
		INSERT INTO orders (
			id, buyer_id, listing_id, offer_id, subtotal, shipping_cost, tax, total_price,
			commission_fee, seller_receives, status, payment_status, payment_method, payment_deadline,
			shipping_method, shipping_address, rejection_reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.tx.Exec(ctx, query,
		order.ID,
		order.BuyerID,
		order.ListingID,
		order.OfferID,
		order.Subtotal,
		order.ShippingCost,
		order.Tax,
		order.TotalPrice,
		order.CommissionFee,
		order.SellerReceives,
		order.Status,
		order.PaymentStatus,
		order.PaymentMethod,
		order.PaymentDeadline,
		order.ShippingMethod,
		order.ShippingAddress,
		order.RejectionReason,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	defer r.record(ctx, "get_order", time.Now())

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("select order: %w", notFound(err))
	}
	return order, nil
}

func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	defer r.record(ctx, "lock_order", time.Now())

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	order, err := scanOrder(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", notFound(err))
	}
	return order, nil
}

// ListHoldingByListing locks the live orders it returns.
func (r *OrderRepository) ListHoldingByListing(ctx context.Context, listingID string) ([]domain.Order, error) {
	defer r.record(ctx, "list_holding_orders", time.Now())

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE listing_id = $1 AND status <> 'cancelled'
		ORDER BY created_at
		FOR UPDATE
	`

	rows, err := r.tx.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("query holding orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *OrderRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	defer r.record(ctx, "list_overdue_orders", time.Now())

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = 'pending' AND payment_status = 'pending' AND payment_deadline < $1
		ORDER BY payment_deadline
		LIMIT $2
	`

	rows, err := r.tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query overdue orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	defer r.record(ctx, "update_order", time.Now())

	query := `
		UPDATE orders
		SET status = $1,
			payment_status = $2,
			commission_fee = $3,
			seller_receives = $4,
			rejection_reason = $5,
			updated_at = $6
		WHERE id = $7
	`

	result, err := r.tx.Exec(ctx, query,
		order.Status,
		order.PaymentStatus,
		order.CommissionFee,
		order.SellerReceives,
		order.RejectionReason,
		order.UpdatedAt,
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update order: %w", notFound(pgx.ErrNoRows))
	}
	return nil
}

type MessageRepository struct{ *repositories }

func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	defer r.record(ctx, "create_message", time.Now())

	query := `
		INSERT INTO messages (id, listing_id, sender_id, recipient_id, content, kind, offer_id, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
	`

	_, err := r.tx.Exec(ctx, query,
		message.ID,
		message.ListingID,
		message.SenderID,
		message.RecipientID,
		message.Content,
		message.Kind,
		message.OfferID,
		message.OrderID,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

type UserDirectory struct{ *repositories }

func (r *UserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	defer r.record(ctx, "user_exists", time.Now())

	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}
