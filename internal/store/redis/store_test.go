package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/snaps/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, time.Hour), mr
}

func testSubmission(id string) *domain.Submission {
	return &domain.Submission{
		ID:                id,
		RawURL:            "http://blog.com/post/",
		CanonicalURL:      "blog.com/post",
		Email:             "a@x.com",
		Weight:            5,
		CreatedAt:         time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		VerificationToken: "token-" + id,
	}
}

func TestPendingSaveAndGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	sub := testSubmission("s1")

	require.NoError(t, store.SavePending(ctx, sub))

	got, err := store.GetPending(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	assert.Equal(t, time.Hour, mr.TTL(PendingKey("s1")))

	// reading does not consume
	_, err = store.GetPending(ctx, "s1")
	assert.NoError(t, err)
}

func TestPendingSaveDuplicateID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePending(ctx, testSubmission("s1")))
	assert.Error(t, store.SavePending(ctx, testSubmission("s1")))
}

func TestPendingGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetPending(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPendingExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePending(ctx, testSubmission("s1")))

	mr.FastForward(2 * time.Hour)

	_, err := store.GetPending(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTakePendingOnlyOnce(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	sub := testSubmission("s1")
	require.NoError(t, store.SavePending(ctx, sub))

	got, err := store.TakePending(ctx, "s1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, sub, got)
	assert.False(t, mr.Exists(PendingKey("s1")))

	// intent is logged
	intents, err := mr.HKeys(KeyMigrating)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, intents)

	_, err = store.TakePending(ctx, "s1", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTakePendingConcurrent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePending(ctx, testSubmission("s1")))

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.TakePending(ctx, "s1", time.Now())
			switch {
			case err == nil:
				winners.Add(1)
			case !errors.Is(err, domain.ErrNotFound):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestApplyMigration(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	sub := testSubmission("s1")
	require.NoError(t, store.SavePending(ctx, sub))

	claimed, err := store.TakePending(ctx, "s1", time.Now())
	require.NoError(t, err)

	at := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	applied, err := store.ApplyMigration(ctx, claimed, at)
	require.NoError(t, err)
	assert.True(t, applied)

	count, err := store.Count(ctx, "blog.com/post")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	history, err := store.History(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.HistoryEntry{CanonicalURL: "blog.com/post", Weight: 5, Timestamp: at}, history[0])

	assert.False(t, mr.Exists(KeyMigrating))
	assert.False(t, mr.Exists(KeyMigratingSince))

	// a second apply of the same intent is a no-op
	applied, err = store.ApplyMigration(ctx, claimed, at)
	require.NoError(t, err)
	assert.False(t, applied)

	count, err = store.Count(ctx, "blog.com/post")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestApplyWithoutClaimIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	applied, err := store.ApplyMigration(ctx, testSubmission("ghost"), time.Now())
	require.NoError(t, err)
	assert.False(t, applied)

	count, err := store.Count(ctx, "blog.com/post")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCountsAndHistoryAccumulate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	weights := []int{5, 1, 50}
	for i, w := range weights {
		sub := testSubmission(string(rune('a' + i)))
		sub.Weight = w
		require.NoError(t, store.SavePending(ctx, sub))
		claimed, err := store.TakePending(ctx, sub.ID, time.Now())
		require.NoError(t, err)
		_, err = store.ApplyMigration(ctx, claimed, time.Now())
		require.NoError(t, err)
	}

	count, err := store.Count(ctx, "blog.com/post")
	require.NoError(t, err)
	assert.Equal(t, int64(56), count)

	history, err := store.History(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, history, 3)

	var sum int64
	for i, e := range history {
		assert.Equal(t, weights[i], e.Weight, "history must keep migration order")
		sum += int64(e.Weight)
	}
	assert.Equal(t, count, sum)
}

func TestCountUnknownURL(t *testing.T) {
	store, _ := newTestStore(t)

	count, err := store.Count(context.Background(), "never.com")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHistoryUnknownUser(t *testing.T) {
	store, _ := newTestStore(t)

	history, err := store.History(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStaleIntents(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"old", "fresh"} {
		require.NoError(t, store.SavePending(ctx, testSubmission(id)))
	}
	_, err := store.TakePending(ctx, "old", now.Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = store.TakePending(ctx, "fresh", now)
	require.NoError(t, err)

	stale, err := store.StaleIntents(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)

	applied, err := store.ApplyMigration(ctx, stale[0], now)
	require.NoError(t, err)
	assert.True(t, applied)

	stale, err = store.StaleIntents(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestStaleIntentsSkipsCorruptPayload(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// oldest entry is garbage
	mr.HSet(KeyMigrating, "broken", "{not json")
	_, err := mr.ZAdd(KeyMigratingSince, float64(now.Add(-time.Hour).Unix()), "broken")
	require.NoError(t, err)

	require.NoError(t, store.SavePending(ctx, testSubmission("good")))
	_, err = store.TakePending(ctx, "good", now.Add(-10*time.Minute))
	require.NoError(t, err)

	stale, err := store.StaleIntents(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "good", stale[0].ID)

	dead, err := store.DeadIntents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, dead)
	assert.Equal(t, "{not json", mr.HGet(KeyMigratingDead, "broken"))

	// the corrupt intent is no longer listed
	stale, err = store.StaleIntents(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "good", stale[0].ID)
}

func TestStoreUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()
	ctx := context.Background()

	assert.Error(t, store.SavePending(ctx, testSubmission("s1")))

	_, err := store.TakePending(ctx, "s1", time.Now())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	_, err = store.GetPending(ctx, "s1")
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	assert.Error(t, store.Ping(ctx))
}
