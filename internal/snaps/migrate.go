package snaps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/snaps/internal/domain"
	"github.com/MrSnakeDoc/snaps/internal/logger"
	"github.com/MrSnakeDoc/snaps/internal/metrics"
)

const (
	// applyTimeout bounds one apply attempt once the claim has committed.
	applyTimeout = 5 * time.Second
	// applyAttempts is how many times the apply is tried inline before the
	// intent is left to the recoverer.
	applyAttempts = 2
)

// Migrator moves a pending submission into the aggregates exactly once.
type Migrator struct {
	pending    PendingStore
	aggregates AggregateStore
	logger     logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewMigrator creates a migration engine.
func NewMigrator(pending PendingStore, aggregates AggregateStore, log logger.Logger, m *metrics.Metrics) *Migrator {
	return &Migrator{
		pending:    pending,
		aggregates: aggregates,
		logger:     log.With(logger.Component("migrator")),
		metrics:    m,
		now:        time.Now,
	}
}

// Migrate claims the submission and applies it.
//
// The claim is an atomic remove-and-return, so concurrent calls for the same
// ID produce a single Migrated; the rest get AlreadyMigratedOrUnknown. A
// storage error during the claim leaves the submission pending.
//
// Once claimed, the submission sits in the intent log until the apply lands.
// The apply ignores ctx cancellation and is retried once. If it still fails
// (storage down) it is left to the intent recoverer and the result is still
// Migrated: the submission cannot be claimed again.
func (m *Migrator) Migrate(ctx context.Context, id string) (domain.MigrationResult, error) {
	now := m.now()

	sub, err := m.pending.TakePending(ctx, id, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AlreadyMigratedOrUnknown, nil
		}
		return domain.AlreadyMigratedOrUnknown, fmt.Errorf("claim submission %s: %w", id, err)
	}

	applied, err := m.apply(ctx, sub, now)
	if err != nil {
		m.logger.Warn("apply failed after claim, deferring to recovery",
			logger.String("submission_id", sub.ID),
			logger.Error(err))
		return domain.Migrated, nil
	}

	if applied {
		m.metrics.Migrated(sub.Weight)
		m.logger.Info("submission migrated",
			logger.String("submission_id", sub.ID),
			logger.String("url", sub.CanonicalURL),
			logger.Int("weight", sub.Weight))
	} else {
		m.logger.Debug("submission already applied by recovery",
			logger.String("submission_id", sub.ID))
	}

	return domain.Migrated, nil
}

// apply runs detached from the caller's cancellation: once the claim has
// committed, a client hanging up must not leave the counts behind the answer.
// ApplyMigration is idempotent per submission, so a retry is safe.
func (m *Migrator) apply(ctx context.Context, sub *domain.Submission, at time.Time) (bool, error) {
	base := context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= applyAttempts; attempt++ {
		var applied bool
		attemptCtx, cancel := context.WithTimeout(base, applyTimeout)
		applied, err = m.aggregates.ApplyMigration(attemptCtx, sub, at)
		cancel()
		if err == nil {
			return applied, nil
		}
		m.logger.Debug("apply attempt failed",
			logger.String("submission_id", sub.ID),
			logger.Int("attempt", attempt),
			logger.Error(err))
	}
	return false, err
}
