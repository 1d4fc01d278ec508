// Package errors provides a lightweight structured error type (DocScopeError)
// for category-based classification across the build pipeline and CLI.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a docscope error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Scoping errors are global: the scoped manifest is one unit and a
	// contradiction anywhere makes every downstream output unsound.
	CategoryScope ErrorCategory = "scope"

	// Per-document processing errors
	CategoryReference  ErrorCategory = "reference"
	CategoryStructural ErrorCategory = "structural"

	// Build and infrastructure errors
	CategoryBuild      ErrorCategory = "build"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategorySource     ErrorCategory = "source"
	CategoryWatch      ErrorCategory = "watch"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// DocScopeError is a structured error with category, severity, and context
type DocScopeError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for DocScopeError
type ContextFields map[string]any

// Error implements the error interface
func (e *DocScopeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *DocScopeError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *DocScopeError) WithContext(key string, value any) *DocScopeError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new DocScopeError
func New(category ErrorCategory, severity ErrorSeverity, message string) *DocScopeError {
	return &DocScopeError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new DocScopeError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocScopeError {
	return &DocScopeError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	var dse *DocScopeError
	if errors.As(err, &dse) {
		return dse.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if not a DocScopeError
func GetCategory(err error) ErrorCategory {
	var dse *DocScopeError
	if errors.As(err, &dse) {
		return dse.Category
	}
	return CategoryInternal
}
