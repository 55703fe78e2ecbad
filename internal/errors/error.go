package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryTransport Category = "transport"
	CategorySession   Category = "session"
	CategoryDiscovery Category = "discovery"
	CategoryCLI       Category = "cli"
)

// PeerlinkError is a coded error with an explanation and a fix hint,
// printed by the CLI.
type PeerlinkError struct {
	// Code is a unique error identifier (e.g., "P100").
	Code string

	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *PeerlinkError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *PeerlinkError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *PeerlinkError) WithSuggestion(s string) *PeerlinkError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *PeerlinkError) WithDetail(d string) *PeerlinkError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *PeerlinkError) Wrap(err error) *PeerlinkError {
	e.Wrapped = err
	return e
}

// New creates a PeerlinkError from a registered error code.
func New(code string) *PeerlinkError {
	template, ok := registry[code]
	if !ok {
		return &PeerlinkError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &PeerlinkError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new PeerlinkError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *PeerlinkError {
	return &PeerlinkError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err under code unless it already carries one.
func FromError(err error, code string) *PeerlinkError {
	if err == nil {
		return nil
	}
	var pe *PeerlinkError
	if stderrors.As(err, &pe) {
		return pe
	}
	return New(code).Wrap(err)
}
