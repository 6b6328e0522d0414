package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPendingTTL is how long an unverified submission is kept (7 days)
const DefaultPendingTTL = 7 * 24 * time.Hour

// Store holds the pending, aggregate and history stores on a single Redis client.
// It is safe for concurrent use by multiple goroutines and multiple processes.
type Store struct {
	client     *redis.Client
	pendingTTL time.Duration
}

// NewStore creates a new Redis store. A non-positive pendingTTL falls back to DefaultPendingTTL.
func NewStore(client *redis.Client, pendingTTL time.Duration) *Store {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &Store{
		client:     client,
		pendingTTL: pendingTTL,
	}
}

// Ping checks that Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
