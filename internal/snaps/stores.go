// Package snaps implements the submission, verification and migration
// workflow: a snap is only counted once its submitter confirms it.
package snaps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/snaps/internal/domain"
)

// PendingStore holds unverified submissions keyed by ID.
type PendingStore interface {
	// SavePending persists a new submission.
	SavePending(ctx context.Context, sub *domain.Submission) error

	// GetPending reads a submission without consuming it.
	// Returns domain.ErrNotFound when absent.
	GetPending(ctx context.Context, id string) (*domain.Submission, error)

	// TakePending atomically removes and returns a submission. At most one
	// caller ever receives a given submission; all others get domain.ErrNotFound.
	TakePending(ctx context.Context, id string, claimedAt time.Time) (*domain.Submission, error)
}

// AggregateStore holds per-URL totals and per-user history.
type AggregateStore interface {
	// ApplyMigration increments the URL total by the submission weight and
	// appends to the submitter's history. Both writes are upserts. It returns
	// false when this submission was already applied.
	ApplyMigration(ctx context.Context, sub *domain.Submission, at time.Time) (bool, error)

	// Count returns the total snaps for a canonical URL, 0 when unknown.
	Count(ctx context.Context, canonicalURL string) (int64, error)
}

// Notifier delivers the verification link out of band. Notify must not block.
type Notifier interface {
	Notify(sub *domain.Submission)
}
