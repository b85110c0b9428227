// Package errs defines the normalized error taxonomy shared by every
// layer above the API client. Raw failures are classified exactly once
// at the client boundary; upstream code inspects only *Error values.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"
)

// Code identifies the failure category.
type Code string

const (
	CodeNetwork        Code = "NETWORK_ERROR"
	CodeTimeout        Code = "TIMEOUT_ERROR"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeAuthentication Code = "AUTHENTICATION_ERROR"
	CodeAuthorization  Code = "AUTHORIZATION_ERROR"
	CodeNotFound       Code = "NOT_FOUND_ERROR"
	CodeRateLimit      Code = "RATE_LIMIT_ERROR"
	CodeServer         Code = "SERVER_ERROR"
	CodeHTTP           Code = "HTTP_ERROR"
	CodeUnknown        Code = "UNKNOWN_ERROR"
)

// defaultRetryAfter is used for rate-limit errors when the backend
// does not supply a Retry-After hint.
const defaultRetryAfter = 5 * time.Second

// Error is the normalized representation of any failure. UserMessage
// is safe to show to the administrator; Message is internal.
type Error struct {
	Code        Code
	Message     string
	UserMessage string
	Retryable   bool

	// RetryAfter is a backoff hint. Only set for rate-limit errors.
	RetryAfter time.Duration

	// Status is the HTTP status that produced this error, when one was
	// received. Zero for transport-level failures.
	Status int

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, keeping errors.Is/As usable.
func (e *Error) Unwrap() error {
	return e.cause
}

var userMessages = map[Code]string{
	CodeNetwork:        "Network connection failed. Please check your internet connection.",
	CodeTimeout:        "The request timed out. Please try again.",
	CodeValidation:     "The submitted data is invalid.",
	CodeAuthentication: "Your session has expired. Please sign in again.",
	CodeAuthorization:  "You do not have permission to perform this action.",
	CodeNotFound:       "The requested notification could not be found.",
	CodeRateLimit:      "Too many requests. Please wait a moment and try again.",
	CodeServer:         "The server encountered an error. Please try again later.",
	CodeHTTP:           "The request failed. Please try again.",
	CodeUnknown:        "Something went wrong. Please try again.",
}

// New constructs a normalized error with the canonical user message
// for its code.
func New(code Code, message string, retryable bool) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		UserMessage: userMessages[code],
		Retryable:   retryable,
	}
}

// Wrap is New with an underlying cause attached.
func Wrap(code Code, message string, retryable bool, cause error) *Error {
	e := New(code, message, retryable)
	e.cause = cause
	return e
}

// FromStatus maps an HTTP status code received from the backend into a
// normalized error. retryAfter applies only to 429 responses; pass
// zero to use the default hint.
func FromStatus(status int, message string, retryAfter time.Duration) *Error {
	var e *Error
	switch status {
	case 400:
		e = New(CodeValidation, message, false)
	case 401:
		e = New(CodeAuthentication, message, false)
	case 403:
		e = New(CodeAuthorization, message, false)
	case 404:
		e = New(CodeNotFound, message, false)
	case 429:
		e = New(CodeRateLimit, message, true)
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfter
		}
		e.RetryAfter = retryAfter
	case 500, 502, 503, 504:
		e = New(CodeServer, message, true)
	default:
		e = New(CodeHTTP, message, status >= 500)
	}
	e.Status = status
	return e
}

// Classify maps an arbitrary failure into a normalized error. An error
// that is already normalized passes through unchanged, so
// classification happens at most once per failure.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var norm *Error
	if errors.As(err, &norm) {
		return norm
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, "request deadline exceeded", true, err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(CodeTimeout, "request canceled", true, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Wrap(CodeTimeout, "network timeout", true, err)
		}
		return Wrap(CodeNetwork, "network failure", true, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Wrap(CodeNetwork, "request transport failure", true, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Wrap(CodeNetwork, "connection failure", true, err)
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return Wrap(CodeNetwork, "connection failure", true, err)
	}

	// Optimistic default: most unclassified failures are transient.
	return Wrap(CodeUnknown, err.Error(), true, err)
}

// IsRetryable reports whether err classifies as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}

// IsConnectivity reports whether err is a network- or timeout-shaped
// failure, i.e. one that should be handled by queuing rather than
// surfaced while offline handling is available.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err).Code {
	case CodeNetwork, CodeTimeout:
		return true
	}
	return false
}
