/*
errors.go - Centralized error types for the billing engine

ERROR CATEGORIES:
  1. State conflicts - expected business errors (already submitted, nothing
     to revoke) returned to the caller for user-facing handling
  2. Configuration errors - alias collisions, missing rates; fatal, never
     silently defaulted
  3. Malformed records - a single bad booking payload; counted and skipped
  4. Not found - absent entity references in lookups

USAGE:
  Callers classify with errors.Is or the helpers at the bottom:

    if errors.Is(err, billing.ErrAlreadySubmitted) { ... }
    if billing.IsConflict(err) { http 409 }
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrAlreadySubmitted is returned by Submit when an active settlement
	// already exists for the (practitioner, period) pair.
	ErrAlreadySubmitted = errors.New("settlement already submitted for period")

	// ErrNotSubmitted is returned by Validate/Revoke when no active
	// settlement exists, or by Validate when it was already validated.
	ErrNotSubmitted = errors.New("no settlement to act on")

	// ErrNotFound is returned for absent entity references.
	ErrNotFound = errors.New("not found")

	// ErrMalformedRecord marks a single booking payload that fails to
	// parse. Sync counts and skips these; it never aborts on one.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrConfiguration marks fatal configuration problems (alias
	// collisions, missing rates). Surfaced immediately, never defaulted.
	ErrConfiguration = errors.New("configuration error")

	// ErrCalendarUnavailable is a whole-run sync failure: the calendar
	// collaborator could not be reached. Retried by the caller, not here.
	ErrCalendarUnavailable = errors.New("calendar collaborator unavailable")

	// ErrInvalidPeriod is returned for malformed (year, month) input.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrReasonRequired is returned by Revoke when no reason is supplied.
	// Revoking - especially after validation - un-pays a practitioner on
	// record, so it must be explicit.
	ErrReasonRequired = errors.New("revoke reason required")
)

// =============================================================================
// STRUCTURED ERRORS - carry additional context
// =============================================================================

// AliasCollisionError reports two practitioners claiming the same calendar
// alias. This is a fail-fast configuration error, not a runtime ambiguity
// to paper over.
type AliasCollisionError struct {
	Alias  string
	First  PractitionerID
	Second PractitionerID
}

func (e *AliasCollisionError) Error() string {
	return fmt.Sprintf("alias %q claimed by both %s and %s", e.Alias, e.First, e.Second)
}

func (e *AliasCollisionError) Unwrap() error { return ErrConfiguration }

// MissingRateError reports an unusable commission or withholding rate.
type MissingRateError struct {
	PractitionerID PractitionerID
	Rate           string // "commission" or "withholding"
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("practitioner %s: %s rate missing or out of [0,1]", e.PractitionerID, e.Rate)
}

func (e *MissingRateError) Unwrap() error { return ErrConfiguration }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict reports whether the error is an expected settlement
// state-machine conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadySubmitted) || errors.Is(err, ErrNotSubmitted)
}

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfiguration reports whether the error is a fatal configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsClientError reports whether the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrMalformedRecord)
}
