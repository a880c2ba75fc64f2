/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Callers classify failures with errors.Is / errors.As; the HTTP layer maps
  them onto status codes without string matching.

ERROR KINDS:
  validation        - missing or malformed input
  not found         - referenced record does not exist
  already generated - installments requested twice for one transaction
  invalid hierarchy - cyclic or over-deep upline chain
  invalid transition- approval status change not permitted
  conflict          - optimistic-concurrency check lost (retryable)
  persistence       - the store failed; batch writes roll back as a unit

SEE ALSO:
  - store.go: store implementations return these sentinels
  - api/handlers.go: maps kinds onto HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base kind for invalid input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced transaction, schedule,
	// installment, agent or approval does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyGenerated is returned when installment generation is
	// requested for a transaction already flagged as generated. The caller
	// must explicitly regenerate.
	ErrAlreadyGenerated = errors.New("installments already generated")

	// ErrInvalidHierarchy is returned when the upline chain is cyclic or
	// exceeds the configured traversal depth.
	ErrInvalidHierarchy = errors.New("invalid agent hierarchy")

	// ErrInvalidTransition is returned when an approval status change is not
	// permitted from the current state.
	ErrInvalidTransition = errors.New("invalid approval transition")

	// ErrConflict is returned when an optimistic-concurrency check fails on
	// a concurrent write. Retryable: re-read current state and reissue.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrPersistence is returned when the underlying store operation failed.
	// Batch installment inserts never leave partial rows behind.
	ErrPersistence = errors.New("persistence failed")

	// ErrNoDefaultSchedule is returned when a transaction carries no
	// schedule and no template is flagged as default. A configuration
	// error, not a runtime one.
	ErrNoDefaultSchedule = errors.New("no default payment schedule configured")

	// ErrInstallmentsPaid is returned when regeneration would discard
	// installments already marked paid.
	ErrInstallmentsPaid = errors.New("installments already paid")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a specific invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidTransitionError names the attempted (current -> requested) pair.
type InvalidTransitionError struct {
	From ApprovalStatus
	To   ApprovalStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid approval transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// HierarchyError reports a malformed upline chain.
type HierarchyError struct {
	AgentID AgentID
	Depth   int
	Reason  string // "cycle" or "max depth exceeded"
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("hierarchy invalid at agent %s (depth %d): %s", e.AgentID, e.Depth, e.Reason)
}

func (e *HierarchyError) Unwrap() error { return ErrInvalidHierarchy }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid client input or
// a request that can never succeed as issued.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidHierarchy)
}

// IsStateConflict returns true if the request was well-formed but the
// resource is in a state that refuses it: installments already generated, or
// regeneration blocked by paid installments. Not retryable as issued.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrAlreadyGenerated) ||
		errors.Is(err, ErrInstallmentsPaid)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
