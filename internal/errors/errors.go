// Package errors provides error code definitions shared across the core and
// the platform bindings above it.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code that can be bridged to the UI layer.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase   ErrorCode = "DATABASE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Note errors
	ErrNoteNotFound ErrorCode = "NOTE_NOT_FOUND"

	// Network / remote API errors
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrRemote       ErrorCode = "REMOTE_ERROR"
	ErrRemoteStatus ErrorCode = "REMOTE_STATUS"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"

	// Job errors
	ErrJobRejected  ErrorCode = "JOB_REJECTED"
	ErrJobDuplicate ErrorCode = "JOB_DUPLICATE"
	ErrJobNotFound  ErrorCode = "JOB_NOT_FOUND"
	ErrJobTimeout   ErrorCode = "JOB_TIMEOUT"
	ErrJobFailed    ErrorCode = "JOB_FAILED"

	// Sync errors
	ErrSyncFailed ErrorCode = "SYNC_FAILED"
	ErrSyncBusy   ErrorCode = "SYNC_BUSY"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error (anywhere in its chain) carries a specific code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or ErrInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
