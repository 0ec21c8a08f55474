// Package redis keeps idempotency responses in Redis with a TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/veloswap/market/internal/marketplace/ports"
)

const defaultKeyPrefix = "marketplace:idempotency:"

// Config describes how to reach Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient dials Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// commands is the subset of the go-redis client the store needs.
type commands interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// A reservation is stored as a response with status code 0.
var reservation = []byte(`{"status_code":0}`)

type Store struct {
	client commands
	prefix string
	ttl    time.Duration
}

// NewStore wraps a Redis client. Entries expire after ttl; zero keeps them.
func NewStore(client goredis.UniversalClient, ttl time.Duration) *Store {
	return newStore(client, ttl)
}

func newStore(client commands, ttl time.Duration) *Store {
	return &Store{client: client, prefix: defaultKeyPrefix, ttl: ttl}
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

// Reserve sets the placeholder with SETNX. It expires after
// ports.ReservationTimeout unless Save replaces it first.
func (s *Store) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), reservation, ports.ReservationTimeout).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	resp, err := s.load(ctx, key)
	if err != nil || resp == nil || resp.StatusCode == 0 {
		return nil, err
	}
	return resp, nil
}

func (s *Store) load(ctx context.Context, key string) (*ports.StoredResponse, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}

	var resp ports.StoredResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode idempotency key: %w", err)
	}
	return &resp, nil
}

// Save replaces the caller's reservation with the response.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode idempotency key: %w", err)
	}

	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

// Release deletes the key if it still holds a reservation.
func (s *Store) Release(ctx context.Context, key string) error {
	resp, err := s.load(ctx, key)
	if err != nil || resp == nil || resp.StatusCode != 0 {
		return err
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
