// Package apperror provides structured error handling for the audit layer.
// Every failure that crosses a package boundary is an AppError or wraps one.
package apperror

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Infrastructure errors
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Audit pipeline errors. Capture and resolve failures are recovered by the
	// orchestrator; construction failures indicate broken invariants.
	CodeCapture      = "AUDIT_CAPTURE_FAILED"
	CodeResolve      = "AUDIT_RESOLVE_FAILED"
	CodeConstruction = "AUDIT_CONSTRUCTION"
	CodeAuditWrite   = "AUDIT_WRITE_FAILED"

	// Unit of Work misuse (commit without begin, double commit)
	CodeUnitOfWork = "UNIT_OF_WORK_MISUSE"

	// Validation
	CodeValidation = "VALIDATION_ERROR"

	// Not found
	CodeNotFound = "NOT_FOUND"

	// Optimistic locking: the row changed or vanished since it was loaded
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is the standard error type for the module.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (table, field, ids)
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying error
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// New creates an error with an arbitrary code.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewValidation creates a validation error
func NewValidation(message string) *AppError {
	return New(CodeValidation, message)
}

// NewNotFound creates a not found error
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal error wrapping err.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal error",
		Err:     err,
	}
}

// NewDatabase wraps a store failure.
func NewDatabase(op string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabase,
		Message: op,
		Err:     err,
	}
}

// NewConcurrentModification reports an update or delete that matched no row.
func NewConcurrentModification(table string, key any) *AppError {
	return &AppError{
		Code:    CodeConcurrentModification,
		Message: fmt.Sprintf("%s row was modified or removed concurrently", table),
		Details: map[string]any{"table": table, "key": key},
	}
}

// NewCapture wraps a failure raised while diffing tracked entries.
func NewCapture(err error) *AppError {
	return &AppError{
		Code:    CodeCapture,
		Message: "change capture failed",
		Err:     err,
	}
}

// NewResolve wraps a failure raised while finalizing deferred entries.
func NewResolve(err error) *AppError {
	return &AppError{
		Code:    CodeResolve,
		Message: "deferred audit resolution failed",
		Err:     err,
	}
}

// NewConstruction reports an audit record that cannot be built from its entry.
func NewConstruction(message string) *AppError {
	return New(CodeConstruction, message)
}

// NewAuditWrite wraps a failure while appending audit rows.
func NewAuditWrite(err error) *AppError {
	return &AppError{
		Code:    CodeAuditWrite,
		Message: "append audit records",
		Err:     err,
	}
}

// NewUnitOfWork reports an invalid Unit of Work state transition.
func NewUnitOfWork(op, state string) *AppError {
	return &AppError{
		Code:    CodeUnitOfWork,
		Message: fmt.Sprintf("%s is not allowed in state %s", op, state),
		Details: map[string]any{"operation": op, "state": state},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsUnitOfWorkMisuse checks if error is CodeUnitOfWork
func IsUnitOfWorkMisuse(err error) bool {
	return HasCode(err, CodeUnitOfWork)
}
