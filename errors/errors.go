package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Resolution errors
	ErrorTypeLookup ErrorType = "lookup"

	// Programmer errors: contract violations, missing descriptors, mode mismatches
	ErrorTypeAssertion ErrorType = "assertion"

	// Storage errors
	ErrorTypeAdapter ErrorType = "adapter"

	// Configuration errors
	ErrorTypeValidation ErrorType = "validation"
)

// Sentinels for errors.Is; matching compares ErrorType only.
var (
	ErrLookup     = &AppError{Type: ErrorTypeLookup}
	ErrAssertion  = &AppError{Type: ErrorTypeAssertion}
	ErrAdapter    = &AppError{Type: ErrorTypeAdapter}
	ErrValidation = &AppError{Type: ErrorTypeValidation}
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	InnerError error          `json:"-"`
	Stack      []string       `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		if e.InnerError != nil {
			return e.Message + ": " + e.InnerError.Error()
		}
		return e.Message
	}
	if e.InnerError != nil {
		return e.InnerError.Error()
	}
	return string(e.Type)
}

// Unwrap returns the inner error
func (e *AppError) Unwrap() error {
	return e.InnerError
}

// WithMessage adds a message to the error
func (e *AppError) WithMessage(msg string) *AppError {
	e.Message = msg
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithStack captures the call stack
func (e *AppError) WithStack() *AppError {
	e.Stack = captureStack(3)
	return e
}

// Is checks if this error is of a specific type
func (e *AppError) Is(target error) bool {
	if targetApp, ok := target.(*AppError); ok {
		return e.Type == targetApp.Type
	}
	return false
}

// New creates a new AppError
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Code:    string(errType),
	}
}

// WrapWithType wraps an error with a specific type
func WrapWithType(err error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		InnerError: err,
		Code:       string(errType),
	}
}

// NewLookup reports a specifier no resolver could locate.
func NewLookup(specifier string) *AppError {
	return New(ErrorTypeLookup, fmt.Sprintf("no entry found for %q", specifier)).
		WithDetail("specifier", specifier)
}

// NewAssertion reports a programmer error. It is never retried.
func NewAssertion(format string, args ...any) *AppError {
	return New(ErrorTypeAssertion, fmt.Sprintf(format, args...)).WithStack()
}

func NewValidation(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

// IsLookup reports whether err is, or wraps, a lookup error.
func IsLookup(err error) bool {
	return errors.Is(err, ErrLookup)
}

// IsAssertion reports whether err is, or wraps, an assertion error.
func IsAssertion(err error) bool {
	return errors.Is(err, ErrAssertion)
}

// captureStack captures the call stack
func captureStack(skip int) []string {
	var stack []string
	for i := skip; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		funcName := fn.Name()
		if idx := strings.LastIndex(funcName, "/"); idx >= 0 {
			funcName = funcName[idx+1:]
		}

		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, funcName))
	}
	return stack
}
