package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/snaps/internal/domain"
)

// claimScript atomically removes a pending submission and records it in the
// intent log. Only one caller can ever get the payload back for a given ID.
var claimScript = redis.NewScript(`
local payload = redis.call("GET", KEYS[1])
if not payload then
	return false
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[2], ARGV[1], payload)
redis.call("ZADD", KEYS[3], ARGV[2], ARGV[1])
return payload
`)

// SavePending stores a new pending submission with the store's TTL.
func (s *Store) SavePending(ctx context.Context, sub *domain.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	ok, err := s.client.SetNX(ctx, PendingKey(sub.ID), data, s.pendingTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}
	if !ok {
		return fmt.Errorf("submission %s already exists", sub.ID)
	}

	return nil
}

// GetPending reads a pending submission without consuming it.
func (s *Store) GetPending(ctx context.Context, id string) (*domain.Submission, error) {
	data, err := s.client.Get(ctx, PendingKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	return decodeSubmission(data)
}

// TakePending atomically removes and returns a pending submission, moving it
// into the intent log stamped with claimedAt. Returns domain.ErrNotFound when
// the submission does not exist or another caller already took it.
func (s *Store) TakePending(ctx context.Context, id string, claimedAt time.Time) (*domain.Submission, error) {
	keys := []string{PendingKey(id), KeyMigrating, KeyMigratingSince}
	data, err := claimScript.Run(ctx, s.client, keys, id, claimedAt.Unix()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim submission: %w", err)
	}

	return decodeSubmission([]byte(data))
}

func decodeSubmission(data []byte) (*domain.Submission, error) {
	var sub domain.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
	}
	return &sub, nil
}
