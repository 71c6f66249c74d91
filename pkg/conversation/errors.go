package conversation

import (
	"errors"
	"fmt"
)

// ErrorType classifies remote-service failures for retry and reporting.
type ErrorType int8

const (
	// ErrorTypeRateLimit is a 429 / quota error.
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient is a 5xx, timeout or connection failure.
	ErrorTypeTransient
	// ErrorTypeAuth is a 401/403.
	ErrorTypeAuth
	// ErrorTypeBadRequest is a 400/409/422: the request itself is wrong.
	ErrorTypeBadRequest
	// ErrorTypeNotFound is a 404 on a thread, run or agent.
	ErrorTypeNotFound
	// ErrorTypeUnknown is anything unclassified.
	ErrorTypeUnknown
	// ErrorTypeServiceUnavailable is emitted once retries are exhausted or the circuit is open.
	ErrorTypeServiceUnavailable
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// Error is a classified remote-service failure.
type Error struct {
	Err        error
	Op         Op
	Message    string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	detail := e.Message
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if detail == "" {
		detail = fmt.Sprintf("status %d", e.StatusCode)
	}
	if e.Op != "" {
		return fmt.Sprintf("conversation %s failed (%s): %s", e.Op, e.Type, detail)
	}
	return fmt.Sprintf("conversation error (%s): %s", e.Type, detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// ClassifyStatus maps an HTTP status code onto an ErrorType.
func ClassifyStatus(status int) ErrorType {
	switch {
	case status == 429:
		return ErrorTypeRateLimit
	case status == 401 || status == 403:
		return ErrorTypeAuth
	case status == 404:
		return ErrorTypeNotFound
	case status == 408 || status >= 500:
		return ErrorTypeTransient
	case status >= 400:
		return ErrorTypeBadRequest
	default:
		return ErrorTypeUnknown
	}
}

// Is reports whether err is a classified error of the given type.
func Is(err error, t ErrorType) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Type == t
	}
	return false
}

// TypeOf returns the classification of err, ErrorTypeUnknown if unclassified.
func TypeOf(err error) ErrorType {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Type
	}
	return ErrorTypeUnknown
}

// NewServiceUnavailableError wraps the last failure after attempts were exhausted.
func NewServiceUnavailableError(op Op, cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Op:      op,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts: %v", attempts, cause),
	}
}
