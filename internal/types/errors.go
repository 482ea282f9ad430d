package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for engine errors.
type ErrorCode string

// Planning error codes
const (
	PLAN_REQUEST_FAILED     ErrorCode = "PLAN_REQUEST_FAILED"
	PLAN_INVALID_STRUCTURE  ErrorCode = "PLAN_INVALID_STRUCTURE"
	PLAN_UNKNOWN_CAPABILITY ErrorCode = "PLAN_UNKNOWN_CAPABILITY"
	PLAN_IMPOSSIBLE         ErrorCode = "PLAN_IMPOSSIBLE"
)

// Execution error codes
const (
	CAPABILITY_FAILED      ErrorCode = "CAPABILITY_FAILED"
	CAPABILITY_NOT_FOUND   ErrorCode = "CAPABILITY_NOT_FOUND"
	DEPENDENCY_FAILED      ErrorCode = "DEPENDENCY_FAILED"
	ESCALATION_UNAVAILABLE ErrorCode = "ESCALATION_UNAVAILABLE"
	RUN_CANCELLED          ErrorCode = "RUN_CANCELLED"
)

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// EngineError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type EngineError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *EngineError) Is(target error) bool {
	var engineErr *EngineError
	if errors.As(target, &engineErr) {
		return e.Code == engineErr.Code
	}
	return false
}

// NewError creates a new non-retryable EngineError with the given code and message.
func NewError(code ErrorCode, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewErrorf creates a new non-retryable EngineError with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a new EngineError wrapping an underlying cause.
func WrapError(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{Code: code, Message: message, Cause: cause}
}
