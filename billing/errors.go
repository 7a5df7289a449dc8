/*
errors.go - Centralized error types for the fee engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As and never on message text.

ERROR CATEGORIES:
  1. Validation errors - block submission, surfaced inline
     ErrInvalidPeriod, ErrInvalidRange, ErrParse, ErrInvalidContract,
     ErrInvalidPayment
  2. Degraded data - non-fatal, render "N/A"
     ErrMissingRateData
  3. Boundary errors - request does not line up with stored data
     ErrOwnershipMismatch, ErrNotFound, ErrInvalidTransition,
     ErrDuplicatePayment, ErrTermsChanged

PARSE ERRORS:
  A ParseError matches both ErrParse and ErrInvalidPeriod so callers that
  only care about "bad period" need a single check.

SEE ALSO:
  - period.go: Produces PeriodError, RangeError, ParseError
  - fees/reconcile.go: LargeVarianceError (a soft gate, not a failure)
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned for an unknown kind or an out-of-range index.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidRange is returned when a split payment ends before it starts.
	ErrInvalidRange = errors.New("invalid period range: end before start")

	// ErrParse is returned for a malformed "<index>-<year>" string.
	ErrParse = errors.New("malformed period")

	// ErrMissingRateData means no dollar figure can be derived (e.g. a
	// percentage contract without AUM). Callers render "N/A".
	ErrMissingRateData = errors.New("missing rate data")

	// ErrMissingFeeTerms is returned when a contract carries no fee terms.
	ErrMissingFeeTerms = errors.New("contract has no fee terms")

	// ErrInvalidContract is returned when contract terms are unusable.
	ErrInvalidContract = errors.New("invalid contract")

	// ErrInvalidPayment is returned when payment fields fail validation.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrOwnershipMismatch is returned when a contract does not belong to the
	// client named in the request.
	ErrOwnershipMismatch = errors.New("contract does not belong to client")

	// ErrNotFound is returned when a referenced client, contract or payment
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for a payment status change the
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicatePayment is returned when a payment ID is written twice.
	ErrDuplicatePayment = errors.New("payment already exists")

	// ErrTermsChanged is returned when a save would change the fee terms or
	// frequency of an existing contract. A new version must be created instead.
	ErrTermsChanged = errors.New("fee terms cannot change within a contract version")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PeriodError describes why a period is invalid.
type PeriodError struct {
	Period Period
	Reason string
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("invalid period %s %d-%d: %s", e.Period.Kind, e.Period.Index, e.Period.Year, e.Reason)
}

func (e *PeriodError) Unwrap() error { return ErrInvalidPeriod }

// RangeError describes an inverted split range.
type RangeError struct {
	Start Period
	End   Period
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("end period %s cannot be before start period %s", e.End.Label(), e.Start.Label())
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// ParseError describes a malformed serialized period.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse period %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, ErrInvalidPeriod} }

// OwnershipMismatchError names the client the request claimed and the client
// that actually owns the contract.
type OwnershipMismatchError struct {
	ContractID ContractID
	ClientID   ClientID
	OwnerID    ClientID
}

func (e *OwnershipMismatchError) Error() string {
	return fmt.Sprintf("contract %s belongs to client %s, not %s", e.ContractID, e.OwnerID, e.ClientID)
}

func (e *OwnershipMismatchError) Unwrap() error { return ErrOwnershipMismatch }

// FieldError is a validation failure on a single input field.
type FieldError struct {
	Field   string
	Message string
	Err     error // sentinel the failure belongs to
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

func (e *FieldError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid caller input and
// should block submission.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidContract) ||
		errors.Is(err, ErrMissingFeeTerms) ||
		errors.Is(err, ErrInvalidPayment)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
