package snaps

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/snaps/internal/domain"
	"github.com/MrSnakeDoc/snaps/internal/logger"
	"github.com/MrSnakeDoc/snaps/internal/metrics"
)

// SubmitInput is the validated-at-the-boundary shape of a new snap.
// Snaps is kept as text so that non-numeric input is reported as ErrInvalidWeight.
type SubmitInput struct {
	URL   string
	Snaps string
	Email string
}

// Submitter accepts new submissions and queues them for verification.
type Submitter struct {
	pending  PendingStore
	tokens   *domain.TokenGenerator
	notifier Notifier
	logger   logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

// NewSubmitter creates a submission service.
func NewSubmitter(
	pending PendingStore,
	tokens *domain.TokenGenerator,
	notifier Notifier,
	log logger.Logger,
	m *metrics.Metrics,
) *Submitter {
	return &Submitter{
		pending:  pending,
		tokens:   tokens,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Submit validates the input, persists a pending submission and triggers the
// verification email. The email is sent asynchronously and its failure never
// fails the submission. Validation errors match domain.ErrValidation.
func (s *Submitter) Submit(ctx context.Context, in SubmitInput) (*domain.Submission, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		s.metrics.Submission("invalid")
		return nil, domain.ErrMissingEmail
	}

	weight, err := strconv.Atoi(strings.TrimSpace(in.Snaps))
	if err != nil || !domain.ValidWeight(weight) {
		s.metrics.Submission("invalid")
		return nil, domain.ErrInvalidWeight
	}

	canonical, err := domain.Canonicalize(in.URL)
	if err != nil {
		s.metrics.Submission("invalid")
		return nil, err
	}

	createdAt := s.now().UTC()
	sub := &domain.Submission{
		ID:                s.newID(),
		RawURL:            in.URL,
		CanonicalURL:      canonical,
		Email:             email,
		Weight:            weight,
		CreatedAt:         createdAt,
		VerificationToken: s.tokens.Generate(email, createdAt),
	}

	if err := s.pending.SavePending(ctx, sub); err != nil {
		s.metrics.Submission("error")
		return nil, fmt.Errorf("save submission: %w", err)
	}

	s.metrics.Submission("accepted")
	s.logger.Info("submission accepted",
		logger.String("submission_id", sub.ID),
		logger.String("url", sub.CanonicalURL),
		logger.Int("weight", sub.Weight))

	s.notifier.Notify(sub)

	return sub, nil
}
