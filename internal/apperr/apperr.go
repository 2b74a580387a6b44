package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable identifier for a failure mode.
type Code string

const (
	// AccessDenied indicates a path that resolves outside the workspace root.
	AccessDenied Code = "ACCESS_DENIED"
	// NotFound indicates a missing file or directory.
	NotFound Code = "NOT_FOUND"
	// UnsupportedType indicates a known binary file type.
	UnsupportedType Code = "UNSUPPORTED_TYPE"
	// MalformedArguments indicates tool arguments that fail schema parsing.
	MalformedArguments Code = "MALFORMED_ARGUMENTS"
	// ToolNotFound indicates a tool name that is not registered or not advertised.
	ToolNotFound Code = "TOOL_NOT_FOUND"
	// ToolInvocation indicates a failure raised inside a tool handler.
	ToolInvocation Code = "TOOL_INVOCATION_ERROR"
	// StepBudgetExceeded indicates the loop ran out of reasoning steps.
	StepBudgetExceeded Code = "STEP_BUDGET_EXCEEDED"
	// ReasoningService indicates the reasoning service call itself failed.
	ReasoningService Code = "REASONING_SERVICE"
)

// Error carries a code, a human-readable message and an optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

// New returns an Error without a cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error that wraps cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by code so errors.Is(err, apperr.New(NotFound, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Has reports whether err carries the given code.
func Has(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
