/*
errors.go - Centralized error types for the payroll ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Component packages (rates, daily, accounts) wrap these errors with
  additional context; the api layer maps them to HTTP status codes.

ERROR CATEGORIES:
  1. Not-found errors - Unknown worker, record, account, transaction
  2. Validation errors - Malformed input, non-positive amounts
  3. Guard errors - Edits rejected to protect settled history

Non-fatal outcomes (stale balances, clamped advances) are NOT errors;
they travel as Warning values next to the result. See types.go.
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrWorkerNotFound          = errors.New("worker not found")
	ErrRecordNotFound          = errors.New("daily record not found")
	ErrDeferredAdvanceNotFound = errors.New("deferred advance not found")
	ErrAccountNotFound         = errors.New("account not found")
	ErrTransactionNotFound     = errors.New("transaction not found")

	// ErrValidation is returned for malformed commands. Wrapped with detail.
	ErrValidation = errors.New("validation error")

	// ErrInvalidAmount is returned when a deferred advance or transaction
	// amount is zero or negative where a positive value is required.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidParty is returned when payer/payee are not parties of the account.
	ErrInvalidParty = errors.New("party does not belong to account")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrCheckpointLocked is returned when editing or deleting a
	// reconciliation checkpoint that is no longer the most recent one.
	ErrCheckpointLocked = errors.New("reconciliation checkpoint is locked")

	// ErrDuplicate is returned when creating an entity whose id already exists.
	ErrDuplicate = errors.New("already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing object. Unwraps to the matching sentinel.
type NotFoundError struct {
	Kind error
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Kind
}

// NotFound builds a NotFoundError for the given sentinel.
func NotFound(kind error, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// CheckpointLockedError provides details about a guarded checkpoint.
type CheckpointLockedError struct {
	TransactionID string
	LatestID      string
}

func (e *CheckpointLockedError) Error() string {
	return fmt.Sprintf("reconciliation %s is locked: newer checkpoint %s exists", e.TransactionID, e.LatestID)
}

func (e *CheckpointLockedError) Unwrap() error {
	return ErrCheckpointLocked
}

// Invalid wraps ErrValidation with a formatted message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidParty) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the command clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCheckpointLocked) || errors.Is(err, ErrDuplicate)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrDeferredAdvanceNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
