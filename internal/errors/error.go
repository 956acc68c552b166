package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
)

// Category represents the type of error.
type Category string

const (
	CategoryProtocol Category = "protocol"
	CategoryInput    Category = "input"
	CategoryConfig   Category = "config"
	CategoryManifest Category = "manifest"
	CategoryServer   Category = "server"
)

// PipError is a structured CLI error with a code, an explanation and a hint.
type PipError struct {
	// Code is a unique error identifier (e.g., "P001").
	Code string

	// Category is the error type.
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
func (e *PipError) Error() string {
	msg := e.Message
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *PipError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *PipError) WithSuggestion(s string) *PipError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *PipError) WithDetail(d string) *PipError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *PipError) Wrap(err error) *PipError {
	e.Wrapped = err
	return e
}

// New creates a PipError from a registered error code.
func New(code string) *PipError {
	template, ok := registry[code]
	if !ok {
		return &PipError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &PipError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new PipError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *PipError {
	return &PipError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in a PipError. Errors that already are PipErrors are
// returned as is; protocol errors get the code of their class; anything
// else gets fallback.
func FromError(err error, fallback string) *PipError {
	if err == nil {
		return nil
	}
	var pe *PipError
	if stderrors.As(err, &pe) {
		return pe
	}
	if code, ok := protocolCodes[protocol.Classify(err)]; ok {
		return New(code).Wrap(err)
	}
	return New(fallback).Wrap(err)
}

// protocolCodes maps protocol error classes to error codes.
var protocolCodes = map[protocol.ErrorClass]string{
	protocol.ClassSchema:           "P001",
	protocol.ClassUnregisteredCode: "P002",
	protocol.ClassMalformedField:   "P003",
	protocol.ClassUnknownPacket:    "P004",
	protocol.ClassGroup:            "P005",
	protocol.ClassLimit:            "P006",
}
