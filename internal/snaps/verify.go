package snaps

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/snaps/internal/domain"
	"github.com/MrSnakeDoc/snaps/internal/logger"
	"github.com/MrSnakeDoc/snaps/internal/metrics"
)

// Verifier checks a verification link and hands the submission to the Migrator.
type Verifier struct {
	pending  PendingStore
	migrator *Migrator
	logger   logger.Logger
	metrics  *metrics.Metrics
}

// NewVerifier creates a verification service.
func NewVerifier(pending PendingStore, migrator *Migrator, log logger.Logger, m *metrics.Metrics) *Verifier {
	return &Verifier{
		pending:  pending,
		migrator: migrator,
		logger:   log,
		metrics:  m,
	}
}

// Verify authenticates (id, token) against the pending submission and migrates it.
//
// A malformed ID is VerifyInvalidID. A well-formed ID with no pending
// submission is VerifyAlreadyUsedOrUnknown: never existed and already used
// are deliberately indistinguishable.
//
// The lookup is read-only; the state change goes through Migrator.Migrate
// alone, so a valid link used concurrently still yields one VerifySuccess.
// A non-nil error means storage failed and the caller may retry.
func (v *Verifier) Verify(ctx context.Context, id, token string) (domain.VerifyResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return v.done(domain.VerifyInvalidID, id), nil
	}

	sub, err := v.pending.GetPending(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Re-verifying a consumed link lands here too, and must read as
			// already used rather than invalid.
			return v.done(domain.VerifyAlreadyUsedOrUnknown, id), nil
		}
		v.metrics.Verification("error")
		return domain.VerifyInvalidID, fmt.Errorf("lookup submission %s: %w", id, err)
	}

	if !domain.TokensEqual(token, sub.VerificationToken) {
		return v.done(domain.VerifyInvalidToken, id), nil
	}

	result, err := v.migrator.Migrate(ctx, id)
	if err != nil {
		v.metrics.Verification("error")
		return domain.VerifyAlreadyUsedOrUnknown, err
	}
	if result == domain.AlreadyMigratedOrUnknown {
		return v.done(domain.VerifyAlreadyUsedOrUnknown, id), nil
	}

	return v.done(domain.VerifySuccess, id), nil
}

func (v *Verifier) done(result domain.VerifyResult, id string) domain.VerifyResult {
	v.metrics.Verification(result.String())
	v.logger.Debug("verification handled",
		logger.String("submission_id", id),
		logger.String("result", result.String()))
	return result
}
