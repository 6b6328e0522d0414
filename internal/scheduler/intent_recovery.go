package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/snaps/internal/domain"
	"github.com/MrSnakeDoc/snaps/internal/logger"
	"github.com/MrSnakeDoc/snaps/internal/metrics"
)

const (
	// DefaultRecoveryInterval is how often stranded migrations are looked for
	DefaultRecoveryInterval = time.Minute
	// DefaultRecoveryGrace is how long a claimed migration may stay unapplied
	// before the recoverer takes over
	DefaultRecoveryGrace = 2 * time.Minute
	// DefaultRecoveryBatch bounds the intents handled per pass
	DefaultRecoveryBatch = 100
)

// IntentStore is the subset of the Redis store the recoverer needs.
type IntentStore interface {
	StaleIntents(ctx context.Context, cutoff time.Time, limit int64) ([]*domain.Submission, error)
	ApplyMigration(ctx context.Context, sub *domain.Submission, at time.Time) (bool, error)
}

// IntentRecoverer finishes migrations whose submission was claimed but whose
// aggregate update never landed (process crash, Redis hiccup between the two
// scripts).
type IntentRecoverer struct {
	store    IntentStore
	logger   logger.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	grace    time.Duration
	batch    int64
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewIntentRecoverer creates a recoverer. Zero durations fall back to defaults.
func NewIntentRecoverer(
	store IntentStore,
	log logger.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	grace time.Duration,
) *IntentRecoverer {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	if grace <= 0 {
		grace = DefaultRecoveryGrace
	}

	return &IntentRecoverer{
		store:    store,
		logger:   log.With(logger.Component("intent_recovery")),
		metrics:  m,
		interval: interval,
		grace:    grace,
		batch:    DefaultRecoveryBatch,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs one pass immediately then keeps running on the interval until
// Stop is called or ctx is done.
func (r *IntentRecoverer) Start(ctx context.Context) {
	r.started.Store(true)
	if _, err := r.Recover(ctx); err != nil {
		r.logger.Warn("initial intent recovery failed", logger.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	go func() {
		defer close(r.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := r.Recover(ctx); err != nil {
					r.logger.Error("intent recovery failed", logger.Error(err))
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the background loop and waits for an in-flight pass to finish.
// Safe to call more than once, and before Start.
func (r *IntentRecoverer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.started.Load() {
		<-r.done
	}
}

// Recover applies every intent claimed more than grace ago. It returns the
// number of intents that were applied by this pass.
func (r *IntentRecoverer) Recover(ctx context.Context) (int, error) {
	now := r.now().UTC()
	recovered := 0

	for {
		subs, err := r.store.StaleIntents(ctx, now.Add(-r.grace), r.batch)
		if err != nil {
			return recovered, err
		}
		if len(subs) == 0 {
			break
		}

		progressed := false
		for _, sub := range subs {
			applied, err := r.store.ApplyMigration(ctx, sub, now)
			if err != nil {
				return recovered, err
			}
			progressed = true
			if !applied {
				continue
			}

			recovered++
			r.metrics.RecoveredOne()
			r.metrics.Migrated(sub.Weight)
			r.logger.Info("recovered stranded migration",
				logger.String("submission_id", sub.ID),
				logger.String("url", sub.CanonicalURL),
				logger.Int("snaps", sub.Weight))
		}

		if !progressed || int64(len(subs)) < r.batch {
			break
		}
	}

	if recovered == 0 {
		r.logger.Debug("no stranded migrations")
	}
	return recovered, nil
}
