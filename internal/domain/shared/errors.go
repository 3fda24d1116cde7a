// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Catalog errors - fatal at load time, never surfaced at runtime
	ErrInvalidCatalog = errors.New("invalid catalog")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "task", "milestone", "maturity"
	Op      string // Operation that failed, e.g., "CompleteTask", "TrackAction"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Shared identity errors
var (
	ErrInvalidUserID = NewDomainError("shared", "Validate", ErrInvalidID, "invalid user ID")
)

// Task domain errors
var (
	ErrTaskNotFound         = NewDomainError("task", "Find", ErrNotFound, "task not found in catalog")
	ErrTaskAlreadyCompleted = NewDomainError("task", "Complete", ErrAlreadyProcessed, "task already completed")
	ErrCatalogCycle         = NewDomainError("task", "Validate", ErrInvalidCatalog, "requirement cycle in mustComplete graph")
	ErrCatalogDanglingRef   = NewDomainError("task", "Validate", ErrInvalidCatalog, "mustComplete references unknown task")
	ErrCatalogDuplicateID   = NewDomainError("task", "Validate", ErrInvalidCatalog, "duplicate task id in catalog")
	ErrCatalogBadMilestone  = NewDomainError("task", "Validate", ErrInvalidCatalog, "task assigned to unknown milestone")
)

// Maturity domain errors
var (
	ErrInvalidCategory = NewDomainError("maturity", "Validate", ErrInvalidInput, "unknown maturity category")
	ErrInvalidPoints   = NewDomainError("maturity", "Validate", ErrValueOutOfRange, "points must be a positive integer")
	ErrEmptyActionID   = NewDomainError("maturity", "Validate", ErrEmptyValue, "action ID is required")
)

// Achievement domain errors
var (
	ErrAchievementNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found in catalog")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsCatalogError checks if the error is a catalog-load failure.
func IsCatalogError(err error) bool {
	return errors.Is(err, ErrInvalidCatalog)
}
