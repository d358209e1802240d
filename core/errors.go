/*
errors.go - Centralized error types for the enrollment engine

PURPOSE:
  All error kinds in one place so the HTTP adapter, the orchestrator and the
  report service classify failures the same way.

ERROR CATEGORIES:
  1. Contention errors - Lock busy, caller should retry shortly
  2. Conflict errors - Payer already owns the course
  3. Resolution errors - Course or payer missing
  4. Validation errors - Malformed requests and date ranges
  5. Infrastructure errors - Store and gateway failures

USAGE:
  tx, err := orch.Enroll(ctx, req)
  switch {
  case errors.Is(err, core.ErrAlreadyEnrolled):
      // 409
  case core.IsRetryable(err):
      // 429 + Retry-After
  }

SEE ALSO:
  - ledger.go: Returns ErrDuplicateChargeID
  - period.go: Returns ErrInvalidDateRange
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEnrollmentInProgress is returned when another call holds the
	// enrollment lock for the same (payer, course).
	ErrEnrollmentInProgress = errors.New("enrollment in progress")

	// ErrAlreadyEnrolled is returned when the ledger already holds a
	// transaction for (payer, course).
	ErrAlreadyEnrolled = errors.New("already enrolled")

	ErrCourseNotFound = errors.New("course not found")
	ErrPayerNotFound  = errors.New("payer not found")

	// ErrInvalidDateRange is returned for unparsable custom dates or start > end.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidRequest is returned when required request fields are missing.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStorageFailure marks any document store or KV failure surfaced to callers.
	ErrStorageFailure = errors.New("storage failure")

	// ErrGatewayFailure marks payment gateway errors. Never treated as success.
	ErrGatewayFailure = errors.New("payment gateway failure")

	// ErrDuplicateChargeID is returned when an external charge id was already recorded.
	ErrDuplicateChargeID = errors.New("duplicate external charge id")

	// ErrDuplicateProgress is returned when progress already exists for (payer, course).
	ErrDuplicateProgress = errors.New("progress already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StorageError wraps a failing store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches
// ErrStorageFailure as well as e.g. ErrDuplicateChargeID.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// GatewayError wraps a failing payment gateway call.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrGatewayFailure, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEnrollmentInProgress)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidDateRange)
}

// IsConflict returns true if the request conflicts with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyEnrolled) ||
		errors.Is(err, ErrDuplicateChargeID)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCourseNotFound) ||
		errors.Is(err, ErrPayerNotFound)
}
