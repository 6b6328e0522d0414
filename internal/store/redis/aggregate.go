package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/snaps/internal/domain"
)

// applyScript consumes an intent and applies its increments. Gating both
// writes on HDEL makes the apply happen at most once per submission ID.
var applyScript = redis.NewScript(`
if redis.call("HDEL", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("HINCRBY", KEYS[3], ARGV[2], ARGV[3])
redis.call("RPUSH", KEYS[4], ARGV[4])
return 1
`)

// ApplyMigration adds a claimed submission to the URL count and appends it to
// the submitter's history. It returns false if the intent was already applied.
func (s *Store) ApplyMigration(ctx context.Context, sub *domain.Submission, at time.Time) (bool, error) {
	entry, err := json.Marshal(domain.HistoryEntry{
		CanonicalURL: sub.CanonicalURL,
		Weight:       sub.Weight,
		Timestamp:    at.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal history entry: %w", err)
	}

	keys := []string{KeyMigrating, KeyMigratingSince, KeyCounts, HistoryKey(sub.Email)}
	applied, err := applyScript.Run(ctx, s.client, keys, sub.ID, sub.CanonicalURL, sub.Weight, entry).Int()
	if err != nil {
		return false, fmt.Errorf("failed to apply migration: %w", err)
	}

	return applied == 1, nil
}

// Count returns the total snaps for a canonical URL, 0 if none were migrated yet.
func (s *Store) Count(ctx context.Context, canonicalURL string) (int64, error) {
	v, err := s.client.HGet(ctx, KeyCounts, canonicalURL).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get count: %w", err)
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count for %s: %w", canonicalURL, err)
	}
	return n, nil
}

// History returns a user's snap history in migration order.
func (s *Store) History(ctx context.Context, email string) ([]domain.HistoryEntry, error) {
	raw, err := s.client.LRange(ctx, HistoryKey(email), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	entries := make([]domain.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var e domain.HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// StaleIntents returns claimed submissions whose apply has not landed and
// that were claimed at or before cutoff, oldest first. Intents that no longer
// decode are moved to KeyMigratingDead so they cannot stall later ones.
func (s *Store) StaleIntents(ctx context.Context, cutoff time.Time, limit int64) ([]*domain.Submission, error) {
	ids, err := s.client.ZRangeByScore(ctx, KeyMigratingSince, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(cutoff.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.client.HMGet(ctx, KeyMigrating, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read intents: %w", err)
	}

	subs := make([]*domain.Submission, 0, len(ids))
	for i, v := range values {
		payload, ok := v.(string)
		if !ok {
			// applied between the two reads, drop the dangling index entry
			_ = s.client.ZRem(ctx, KeyMigratingSince, ids[i]).Err()
			continue
		}
		sub, err := decodeSubmission([]byte(payload))
		if err != nil {
			if err := s.deadLetter(ctx, ids[i], payload); err != nil {
				return nil, err
			}
			continue
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

// deadLetter parks an undecodable intent for manual inspection.
func (s *Store) deadLetter(ctx context.Context, id, payload string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, KeyMigratingDead, id, payload)
	pipe.HDel(ctx, KeyMigrating, id)
	pipe.ZRem(ctx, KeyMigratingSince, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to dead-letter intent %s: %w", id, err)
	}
	return nil
}

// DeadIntents returns the IDs of intents parked by StaleIntents.
func (s *Store) DeadIntents(ctx context.Context) ([]string, error) {
	ids, err := s.client.HKeys(ctx, KeyMigratingDead).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead intents: %w", err)
	}
	return ids, nil
}
