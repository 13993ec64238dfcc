package mediation

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every externally visible failure
type ErrorCode string

const (
	// ErrorCodePrecondition covers missing or empty identifiers and other
	// locally detectable failures that preclude any partner call
	ErrorCodePrecondition ErrorCode = "PRECONDITION"
	// ErrorCodeUnsupportedFormat is returned for an unrecognized ad format
	ErrorCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	// ErrorCodeNotInitialized is returned when the partner SDK has not
	// completed its one-time setup
	ErrorCodeNotInitialized ErrorCode = "NOT_INITIALIZED"
	// ErrorCodeLoadFailed wraps a partner-reported load failure
	ErrorCodeLoadFailed ErrorCode = "LOAD_FAILED"
	// ErrorCodeShowFailed wraps a partner-reported show failure or a
	// synchronous not-ready signal
	ErrorCodeShowFailed ErrorCode = "SHOW_FAILED"
	// ErrorCodeNotFound is returned for operations on an absent or
	// already-released handle
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeCancelled is returned when the awaiting caller abandoned
	// the operation before a terminal callback arrived
	ErrorCodeCancelled ErrorCode = "CANCELLED"
	// ErrorCodeSetupFailed wraps a partner-reported SDK init failure
	ErrorCodeSetupFailed ErrorCode = "SETUP_FAILED"
)

// Error is the single structured failure shape surfaced to the host.
// Partner-reported message text is carried verbatim in Message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewPreconditionError creates a precondition failure
func NewPreconditionError(message string) *Error {
	return &Error{Code: ErrorCodePrecondition, Message: message}
}

// NewUnsupportedFormatError creates an unsupported-format failure
func NewUnsupportedFormatError(format Format) *Error {
	return &Error{
		Code:    ErrorCodeUnsupportedFormat,
		Message: fmt.Sprintf("unsupported ad format: %q", string(format)),
	}
}

// NewNotInitializedError creates a not-initialized failure
func NewNotInitializedError() *Error {
	return &Error{Code: ErrorCodeNotInitialized, Message: "partner SDK not initialized"}
}

// NewLoadError wraps a partner-reported load failure, preserving the
// partner-supplied message text
func NewLoadError(reason string) *Error {
	return &Error{Code: ErrorCodeLoadFailed, Message: reason}
}

// NewShowError wraps a partner-reported show failure
func NewShowError(reason string) *Error {
	return &Error{Code: ErrorCodeShowFailed, Message: reason}
}

// NewNotFoundError creates a not-found failure for an absent handle
func NewNotFoundError(handleID string) *Error {
	return &Error{
		Code:    ErrorCodeNotFound,
		Message: fmt.Sprintf("no ad handle with id %q", handleID),
	}
}

// NewSetupFailedError wraps a partner-reported init failure
func NewSetupFailedError(cause error) *Error {
	return &Error{Code: ErrorCodeSetupFailed, Message: "partner SDK setup failed", Cause: cause}
}

// NewCancelledError wraps a context cancellation
func NewCancelledError(cause error) *Error {
	return &Error{Code: ErrorCodeCancelled, Message: "operation abandoned by caller", Cause: cause}
}

// CodeOf extracts the error code from err, or empty if err is not a
// mediation error
func CodeOf(err error) ErrorCode {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
