// Package errors provides coded errors for the livewatch coordinator.
//
// Every error raised by a task, the live-reload server or the configuration
// layer carries a Code. The code decides how the coordinator reacts:
//
//	var coded *errors.Error
//	if errors.As(err, &coded) {
//	    switch coded.Severity() {
//	    case errors.SeverityWarning:
//	        // log, beep, reset and restart the watch
//	    case errors.SeverityFatal:
//	        // same, but reported as a fatal error
//	    }
//	}
//
// Codes compare with errors.Is against the sentinels below:
//
//	if errors.Is(err, errors.ErrPortInUse) {
//	    os.Exit(1)
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout livewatch.
const (
	CodeTaskFailed    Code = "TASK_FAILED"
	CodeTaskNotFound  Code = "TASK_NOT_FOUND"
	CodeTaskStart     Code = "TASK_START"
	CodePortInUse     Code = "PORT_IN_USE"
	CodeServe         Code = "SERVE"
	CodeInvalidConfig Code = "INVALID_CONFIG"
	CodeNotFound      Code = "NOT_FOUND"
	CodeValidation    Code = "VALIDATION"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL"
)

// Severity classifies how the coordinator treats an error.
type Severity string

// Severities.
const (
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// Severity returns the severity for an error code.
// Task-level problems are warnings; anything that prevents a task or the
// reload server from running at all is fatal.
func (c Code) Severity() Severity {
	switch c {
	case CodeTaskFailed, CodeTaskNotFound, CodeValidation, CodeNotFound, CodeRateLimited:
		return SeverityWarning
	default:
		return SeverityFatal
	}
}

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound, CodeTaskNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeInvalidConfig:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodePortInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Severity returns the severity of the error's code.
func (e *Error) Severity() Severity {
	return e.Code.Severity()
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrTaskFailed    = &Error{Code: CodeTaskFailed, Message: "task failed"}
	ErrTaskNotFound  = &Error{Code: CodeTaskNotFound, Message: "task not found"}
	ErrTaskStart     = &Error{Code: CodeTaskStart, Message: "task could not start"}
	ErrPortInUse     = &Error{Code: CodePortInUse, Message: "port already in use"}
	ErrServe         = &Error{Code: CodeServe, Message: "server failed"}
	ErrInvalidConfig = &Error{Code: CodeInvalidConfig, Message: "invalid configuration"}
	ErrNotFound      = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation    = &Error{Code: CodeValidation, Message: "validation error"}
	ErrRateLimited   = &Error{Code: CodeRateLimited, Message: "rate limited"}
	ErrInternal      = &Error{Code: CodeInternal, Message: "internal error"}
)

// TaskNotFoundf creates a task-not-found error with a formatted message.
func TaskNotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeTaskNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidConfig creates an invalid configuration error.
func InvalidConfig(msg string) *Error {
	return &Error{Code: CodeInvalidConfig, Message: msg}
}

// InvalidConfigf creates an invalid configuration error with a formatted message.
func InvalidConfigf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidConfig, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Internalf creates an internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// SeverityOf returns the severity of any error. Uncoded errors are fatal.
func SeverityOf(err error) Severity {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Severity()
	}
	return SeverityFatal
}
