/*
errors.go - Centralized error types for the override engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these onto status codes; domain packages wrap
  them with additional context.

ERROR CATEGORIES:
  1. Validation errors  - Malformed payloads, rejected before any transaction
  2. Scope conflicts    - An override already occupies the target scope
  3. Lookup errors      - Referenced record/user/company does not exist
  4. Forbidden          - ADMIN-priority mutations, malformed scopes
  5. Store errors       - Persistence failures; the whole transaction aborts

USAGE:
  if errors.Is(err, policy.ErrScopeConflict) {
      // tell the caller to update the existing record instead
  }
*/
package policy

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or rule-violating payloads.
	// No transaction is opened when this is returned.
	ErrValidation = errors.New("validation failed")

	// ErrScopeConflict is returned when an override already exists for the
	// target (domain, priority, scope). The caller should update it instead.
	ErrScopeConflict = errors.New("scope conflict")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned for ADMIN-priority mutations from clients and
	// for SUB_DEPARTMENT records that carry a user id.
	ErrForbidden = errors.New("forbidden")

	// ErrStore is returned for persistence failures inside the transaction.
	// The transaction is rolled back; no partial pointer state is committed.
	ErrStore = errors.New("store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a payload rule violation.
type ValidationError struct {
	Domain  Domain
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s payload: %s", e.Domain, e.Message)
	}
	return fmt.Sprintf("%s payload: %s: %s", e.Domain, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ScopeConflictError reports which existing record occupies the scope.
type ScopeConflictError struct {
	Domain     Domain
	Priority   Priority
	Scope      Scope
	ExistingID string
}

func (e *ScopeConflictError) Error() string {
	return fmt.Sprintf("override already exists for %s/%s (existing: %s)",
		e.Domain, e.Priority, e.ExistingID)
}

func (e *ScopeConflictError) Unwrap() error { return ErrScopeConflict }

// NotFoundError identifies what was missing.
type NotFoundError struct {
	Kind string // "exception", "user", "company", "pointer"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrScopeConflict) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
