package ports

import (
	"context"
	"time"
)

// ReservationTimeout bounds how long a reserved key blocks retries when its
// holder never saves or releases it.
const ReservationTimeout = time.Minute

// StoredResponse contains the response data to replay for a reused key.
type StoredResponse struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
	ResourceID string `json:"resource_id"`
}

// IdempotencyStore ensures create operations can be retried safely.
//
// A request first Reserves its key. Only the holder of the reservation runs
// the operation, then either Saves the response or Releases the key.
type IdempotencyStore interface {
	// Reserve reports false when the key is already reserved or answered.
	Reserve(ctx context.Context, key string) (bool, error)
	// Get returns the saved response, or nil while the key is unanswered.
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, response StoredResponse) error
	Release(ctx context.Context, key string) error
}
