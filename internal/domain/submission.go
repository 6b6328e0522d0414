package domain

import (
	"errors"
	"time"
)

const (
	// MinWeight and MaxWeight bound the number of snaps a single submission may carry.
	MinWeight = 1
	MaxWeight = 50
)

var (
	// ErrValidation is the parent of every input validation error.
	ErrValidation = errors.New("validation failed")

	ErrMissingEmail  = validationError("email is required")
	ErrInvalidWeight = validationError("snaps must be an integer between 1 and 50")
	ErrInvalidURL    = validationError("url must be an absolute URL")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

type validationErr struct{ msg string }

func (e *validationErr) Error() string        { return e.msg }
func (e *validationErr) Is(target error) bool { return target == ErrValidation }

func validationError(msg string) error { return &validationErr{msg: msg} }

// Submission is a pending, unverified snap.
//
// Its existence in the pending store IS the pending state: it is never
// flagged as verified in place, it is removed when migrated.
type Submission struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is assigned at creation.
	ID string `json:"id"`

	// ─────────────────────────────
	// Payload
	// ─────────────────────────────

	// RawURL is the URL as submitted.
	RawURL string `json:"rawUrl"`

	// CanonicalURL is host+path, used as the aggregation key.
	CanonicalURL string `json:"canonicalUrl"`

	// Email of the submitter; the verification link is sent there.
	Email string `json:"email"`

	// Weight is the number of snaps, in [MinWeight, MaxWeight].
	Weight int `json:"weight"`

	// CreatedAt is stamped when the submission is accepted.
	CreatedAt time.Time `json:"createdAt"`

	// ─────────────────────────────
	// Verification
	// ─────────────────────────────

	// VerificationToken is derived from Email and CreatedAt. Single use.
	VerificationToken string `json:"verificationToken"`
}

// HistoryEntry is one append event in a user's snap history.
type HistoryEntry struct {
	CanonicalURL string    `json:"canonicalUrl"`
	Weight       int       `json:"weight"`
	Timestamp    time.Time `json:"timestamp"`
}

// MigrationResult is the terminal outcome of a migration attempt.
type MigrationResult int

const (
	Migrated MigrationResult = iota
	AlreadyMigratedOrUnknown
)

func (r MigrationResult) String() string {
	switch r {
	case Migrated:
		return "migrated"
	case AlreadyMigratedOrUnknown:
		return "already_migrated_or_unknown"
	default:
		return "unknown"
	}
}

// VerifyResult is the outcome of a verification request.
type VerifyResult int

const (
	VerifySuccess VerifyResult = iota
	VerifyInvalidID
	VerifyInvalidToken
	VerifyAlreadyUsedOrUnknown
)

func (r VerifyResult) String() string {
	switch r {
	case VerifySuccess:
		return "success"
	case VerifyInvalidID:
		return "invalid_id"
	case VerifyInvalidToken:
		return "invalid_token"
	case VerifyAlreadyUsedOrUnknown:
		return "already_used"
	default:
		return "unknown"
	}
}

// ValidWeight reports whether w is an acceptable submission weight.
func ValidWeight(w int) bool {
	return w >= MinWeight && w <= MaxWeight
}
