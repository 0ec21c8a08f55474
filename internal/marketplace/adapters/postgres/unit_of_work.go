package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veloswap/market/internal/database"
	"github.com/veloswap/market/internal/marketplace/ports"
)

const (
	uniqueViolation        = "23505"
	pendingOfferConstraint = "uq_offers_one_pending_per_proposer"
)

// UnitOfWork runs each unit in one read-committed transaction. Rows that a
// unit changes are read with SELECT ... FOR UPDATE, listing first.
type UnitOfWork struct {
	pool    *pgxpool.Pool
	metrics *database.Metrics
}

// NewUnitOfWork builds a unit of work on pool. metrics may be nil.
func NewUnitOfWork(pool *pgxpool.Pool, metrics *database.Metrics) *UnitOfWork {
	return &UnitOfWork{pool: pool, metrics: metrics}
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &repositories{tx: tx, metrics: u.metrics}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type repositories struct {
	tx      pgx.Tx
	metrics *database.Metrics
}

func (r *repositories) Listings() ports.ListingRepository { return &ListingRepository{r} }
func (r *repositories) Offers() ports.OfferRepository     { return &OfferRepository{r} }
func (r *repositories) Orders() ports.OrderRepository     { return &OrderRepository{r} }
func (r *repositories) Messages() ports.MessageRepository { return &MessageRepository{r} }
func (r *repositories) Users() ports.UserDirectory        { return &UserDirectory{r} }

func (r *repositories) record(ctx context.Context, operation string, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds())
	}
}

func isPendingOfferConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == pendingOfferConstraint
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNotFound
	}
	return err
}
