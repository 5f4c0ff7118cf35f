package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the orchestration core.
type ErrorCode string

// Orchestration error codes
const (
	ErrGraphInvalid       ErrorCode = "GRAPH_INVALID"
	ErrConfiguration      ErrorCode = "CONFIGURATION"
	ErrTransientOperation ErrorCode = "TRANSIENT_OPERATION"
	ErrExhaustedRetry     ErrorCode = "EXHAUSTED_RETRY"
	ErrDependencyNotMet   ErrorCode = "DEPENDENCY_NOT_MET"
)

// Upstream error codes used by the model and tool adapters.
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrArtifactNotFound   ErrorCode = "ARTIFACT_NOT_FOUND"
	ErrToolNotPermitted   ErrorCode = "TOOL_NOT_PERMITTED"
	ErrDelegationRejected ErrorCode = "DELEGATION_REJECTED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Attempts   int       `json:"attempts,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAttempts records how many attempts were made before the error surfaced.
func (e *Error) WithAttempts(n int) *Error {
	e.Attempts = n
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewGraphInvalid reports a malformed step or task graph.
func NewGraphInvalid(format string, args ...any) *Error {
	return Errorf(ErrGraphInvalid, format, args...)
}

// NewConfiguration reports missing or malformed worker/task configuration.
func NewConfiguration(format string, args ...any) *Error {
	return Errorf(ErrConfiguration, format, args...)
}

// NewTransient wraps a failure that may succeed on a later attempt.
func NewTransient(cause error, format string, args ...any) *Error {
	return Errorf(ErrTransientOperation, format, args...).WithCause(cause).WithRetryable(true)
}

// NewDependencyNotMet reports a unit that cannot run because its inputs are not complete.
func NewDependencyNotMet(format string, args ...any) *Error {
	return Errorf(ErrDependencyNotMet, format, args...)
}

// NewExhaustedRetry wraps the last failure once every attempt has been used.
func NewExhaustedRetry(attempts int, cause error) *Error {
	return Errorf(ErrExhaustedRetry, "all %d attempts failed", attempts).
		WithCause(cause).
		WithAttempts(attempts)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the outermost error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether any *Error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsFatal reports whether the error must never be retried or absorbed.
func IsFatal(err error) bool {
	switch GetErrorCode(err) {
	case ErrGraphInvalid, ErrConfiguration, ErrDependencyNotMet:
		return true
	}
	return false
}
