package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a voidmem error code.
type ErrorCode string

const (
	ErrValidation         ErrorCode = "VALIDATION"          // 400, exit 1
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404, exit 1
	ErrPersistenceFormat  ErrorCode = "PERSISTENCE_FORMAT"  // 422, exit 2
	ErrPersistenceVersion ErrorCode = "PERSISTENCE_VERSION" // 422, exit 2
	ErrReinforceMiss      ErrorCode = "REINFORCE_MISS"      // event only
	ErrCapacityInvariant  ErrorCode = "CAPACITY_INVARIANT"  // 500, exit 3
	ErrAnomaly            ErrorCode = "ANOMALY"             // 200, exit 4
	ErrInternal           ErrorCode = "INTERNAL"            // 500, exit 3
)

// Process exit codes for the CLI.
const (
	ExitOK          = 0
	ExitValidation  = 1
	ExitPersistence = 2
	ExitInternal    = 3
	ExitAnomaly     = 4
)

// VoidError represents a structured error with code, status, and details.
type VoidError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *VoidError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ExitCode maps the error code to a CLI exit status.
func (e *VoidError) ExitCode() int {
	switch e.Code {
	case ErrValidation, ErrNotFound:
		return ExitValidation
	case ErrPersistenceFormat, ErrPersistenceVersion:
		return ExitPersistence
	case ErrAnomaly:
		return ExitAnomaly
	default:
		return ExitInternal
	}
}

// NewValidation creates a 400 error for bad caller input.
func NewValidation(msg string) *VoidError {
	return &VoidError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
}

// NewValidationf is NewValidation with formatting.
func NewValidationf(format string, args ...any) *VoidError {
	return NewValidation(fmt.Sprintf(format, args...))
}

// NewNotFound creates a 404 error for a missing chunk, snapshot, or file.
func NewNotFound(kind, identifier string) *VoidError {
	return &VoidError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewPersistenceFormat creates a 422 error for a malformed snapshot.
func NewPersistenceFormat(msg string) *VoidError {
	return &VoidError{
		Code:    ErrPersistenceFormat,
		Status:  422,
		Message: msg,
	}
}

// NewPersistenceVersion creates a 422 error for an unknown snapshot version.
func NewPersistenceVersion(got, want int) *VoidError {
	return &VoidError{
		Code:    ErrPersistenceVersion,
		Status:  422,
		Message: fmt.Sprintf("unsupported snapshot version %d (supported: %d)", got, want),
		Details: map[string]any{"version": got, "supported": want},
	}
}

// NewReinforceMiss describes a reinforcement that named an id not in the live set.
// It is recorded as an event and never returned to callers.
func NewReinforceMiss(id string) *VoidError {
	return &VoidError{
		Code:    ErrReinforceMiss,
		Status:  404,
		Message: fmt.Sprintf("reinforced id not live: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewCapacityInvariant creates an error for a prune pass that could not
// bring the live set back under capacity.
func NewCapacityInvariant(count, capacity int) *VoidError {
	return &VoidError{
		Code:    ErrCapacityInvariant,
		Status:  500,
		Message: fmt.Sprintf("prune did not converge: %d live chunks, capacity %d", count, capacity),
		Details: map[string]any{"count": count, "capacity": capacity},
	}
}

// NewAnomaly reports telemetry anomalies found by a probe run.
func NewAnomaly(count int) *VoidError {
	return &VoidError{
		Code:    ErrAnomaly,
		Status:  200,
		Message: fmt.Sprintf("telemetry detected %d anomalies", count),
		Details: map[string]any{"anomalies": count},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *VoidError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &VoidError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Wrap returns err unchanged when it already carries a VoidError and wraps
// anything else as internal.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var vErr *VoidError
	if stderrors.As(err, &vErr) {
		return err
	}
	return NewInternal(err)
}

// Is checks if an error is a VoidError with the given code.
func Is(err error, code ErrorCode) bool {
	var vErr *VoidError
	if stderrors.As(err, &vErr) {
		return vErr.Code == code
	}
	return false
}

// IsPersistence reports whether err is a snapshot format or version error.
func IsPersistence(err error) bool {
	return Is(err, ErrPersistenceFormat) || Is(err, ErrPersistenceVersion)
}

// ExitCode returns the CLI exit status for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var vErr *VoidError
	if stderrors.As(err, &vErr) {
		return vErr.ExitCode()
	}
	return ExitInternal
}
