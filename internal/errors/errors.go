package errors

import (
	"fmt"
)

// NoteragError is the structured error type for noterag.
// It provides rich context for error handling, logging, and user presentation.
type NoteragError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *NoteragError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *NoteragError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with NoteragError.
func (e *NoteragError) Is(target error) bool {
	if t, ok := target.(*NoteragError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *NoteragError) WithDetail(key, value string) *NoteragError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new NoteragError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *NoteragError {
	return &NoteragError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a NoteragError from an existing error.
// The error's message becomes the NoteragError message.
func Wrap(code string, err error) *NoteragError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *NoteragError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *NoteragError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *NoteragError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *NoteragError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a NoteragError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(*NoteragError); ok {
		return ne.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(*NoteragError); ok {
		return ne.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a NoteragError.
// Returns empty string if not a NoteragError.
func GetCode(err error) string {
	if ne, ok := err.(*NoteragError); ok {
		return ne.Code
	}
	return ""
}

// GetCategory extracts the category from a NoteragError.
// Returns empty string if not a NoteragError.
func GetCategory(err error) Category {
	if ne, ok := err.(*NoteragError); ok {
		return ne.Category
	}
	return ""
}
