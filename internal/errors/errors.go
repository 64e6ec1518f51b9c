package errors

import (
	"fmt"
)

// LanternError is the structured error type for Lantern.
// It provides rich context for error handling, logging, and user presentation.
type LanternError struct {
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

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *LanternError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LanternError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with LanternError.
func (e *LanternError) Is(target error) bool {
	if t, ok := target.(*LanternError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *LanternError) WithDetail(key, value string) *LanternError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *LanternError) WithSuggestion(suggestion string) *LanternError {
	e.Suggestion = suggestion
	return e
}

// New creates a new LanternError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *LanternError {
	return &LanternError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a LanternError from an existing error.
// The error's message becomes the LanternError message.
func Wrap(code string, err error) *LanternError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *LanternError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *LanternError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *LanternError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *LanternError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *LanternError {
	return New(ErrCodeInternal, message, cause)
}

// StoreError creates a store-related error.
func StoreError(message string, cause error) *LanternError {
	return New(ErrCodeUpsertFailed, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a LanternError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*LanternError); ok {
		return le.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*LanternError); ok {
		return le.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a LanternError.
// Returns empty string if not a LanternError.
func GetCode(err error) string {
	if le, ok := err.(*LanternError); ok {
		return le.Code
	}
	return ""
}

// GetCategory extracts the category from a LanternError.
// Returns empty string if not a LanternError.
func GetCategory(err error) Category {
	if le, ok := err.(*LanternError); ok {
		return le.Category
	}
	return ""
}
