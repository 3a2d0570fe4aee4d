package remittance

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a driver, vehicle, assignment or remittance
	// does not exist within the tenant.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a review does not change the status
	// or targets a status that cannot be reviewed into.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidPaymentConfig is returned when a payment config does not match
	// its model or fails validation.
	ErrInvalidPaymentConfig = errors.New("invalid payment config")

	// ErrPrimaryAssignmentExists is returned when a driver already holds an
	// active primary assignment.
	ErrPrimaryAssignmentExists = errors.New("driver already has a primary assignment")

	// ErrAssignmentExists is returned when the driver is already actively
	// assigned to the vehicle.
	ErrAssignmentExists = errors.New("driver already assigned to vehicle")

	// ErrDuplicateIdempotencyKey is returned when a ledger entry with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidAmount is returned for negative or zero remittance amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidInput is returned for missing or malformed fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTenantRequired is returned when an operation is attempted without a tenant.
	ErrTenantRequired = errors.New("tenant required")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// TransitionError describes a rejected review.
type TransitionError struct {
	RemittanceID string
	From         Status
	To           Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("remittance %s: cannot move from %s to %s", e.RemittanceID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPaymentConfig) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrTenantRequired)
}

// IsConflict returns true if the request conflicts with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPrimaryAssignmentExists) ||
		errors.Is(err, ErrAssignmentExists) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
