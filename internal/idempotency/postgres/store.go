package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veloswap/market/internal/marketplace/ports"
)

// Store keeps idempotency responses in the idempotency_keys table. Rows older
// than ttl are ignored and overwritten. A reservation is a row with status
// code 0.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{pool: pool, ttl: ttl}
}

func (s *Store) cutoff() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(-s.ttl)
}

// Reserve inserts a placeholder row. It replaces rows whose response has
// expired and reservations that were abandoned.
func (s *Store) Reserve(ctx context.Context, key string) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, resource_id, created_at)
		VALUES ($1, 0, ''::bytea, '', NOW())
		ON CONFLICT (key) DO UPDATE
		SET status_code = 0,
			body = ''::bytea,
			resource_id = '',
			created_at = EXCLUDED.created_at
		WHERE idempotency_keys.created_at <= $2
			OR (idempotency_keys.status_code = 0 AND idempotency_keys.created_at <= $3)
	`

	lapsed := time.Now().UTC().Add(-ports.ReservationTimeout)
	tag, err := s.pool.Exec(ctx, query, key, s.cutoff(), lapsed)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT status_code, body, resource_id
		FROM idempotency_keys
		WHERE key = $1 AND status_code > 0 AND created_at > $2
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key, s.cutoff()).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.ResourceID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, resource_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
			body = EXCLUDED.body,
			resource_id = EXCLUDED.resource_id,
			created_at = EXCLUDED.created_at
		WHERE idempotency_keys.status_code = 0 OR idempotency_keys.created_at <= $5
	`

	body := response.Body
	if body == nil {
		body = []byte{}
	}

	_, err := s.pool.Exec(ctx, query, key, response.StatusCode, body, response.ResourceID, s.cutoff())
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}

// Release deletes an unanswered reservation.
func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND status_code = 0`, key)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
