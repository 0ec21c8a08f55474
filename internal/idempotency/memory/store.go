package memory

import (
	"context"
	"sync"
	"time"

	"github.com/veloswap/market/internal/marketplace/ports"
)

type entry struct {
	response ports.StoredResponse
	pending  bool
	storedAt time.Time
}

// Store retains idempotency responses for replaying duplicate requests.
// Entries older than ttl are treated as absent; a zero ttl keeps them forever.
type Store struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
	now   func() time.Time
}

// NewStore creates a new in-memory idempotency store.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		items: make(map[string]entry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Reserve claims key unless a live reservation or response holds it.
func (s *Store) Reserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && s.live(existing) {
		return false, nil
	}
	s.items[key] = entry{pending: true, storedAt: s.now()}
	return true, nil
}

// Get returns the stored response for a given key if present.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	if !ok || value.pending || !s.live(value) {
		return nil, nil
	}
	copy := value.response
	return &copy, nil
}

// Save stores the response for a key. The first live response wins.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && !existing.pending && s.live(existing) {
		return nil
	}
	s.items[key] = entry{response: response, storedAt: s.now()}
	return nil
}

// Release drops an unanswered reservation.
func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && existing.pending {
		delete(s.items, key)
	}
	return nil
}

func (s *Store) live(e entry) bool {
	age := s.now().Sub(e.storedAt)
	if e.pending {
		return age <= ports.ReservationTimeout
	}
	return s.ttl <= 0 || age <= s.ttl
}
