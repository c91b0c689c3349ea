package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category defines the normalized failure taxonomy for remote calls.
type Category string

const (
	// CategoryTimeout indicates the call exceeded its deadline
	CategoryTimeout Category = "timeout"

	// CategoryBadData indicates a malformed or unparseable response
	CategoryBadData Category = "bad_data"

	// CategoryAuthentication indicates rejected or missing credentials
	CategoryAuthentication Category = "authentication"

	// CategoryOutage indicates the service is unreachable or returned 5xx
	CategoryOutage Category = "provider_outage"

	// CategoryNotFound indicates the service has no record for the item
	CategoryNotFound Category = "not_found"

	// CategoryRateLimited indicates the service or the local limiter throttled the call
	CategoryRateLimited Category = "rate_limited"

	// CategoryCircuitOpen indicates the call was skipped by an open breaker
	CategoryCircuitOpen Category = "circuit_open"

	// CategoryInternal indicates an unexpected local failure
	CategoryInternal Category = "internal"
)

// Error wraps a remote failure with its category.
type Error struct {
	Category   Category
	Verifier   string
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("verifier %s [%s]: %s: %v", e.Verifier, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("verifier %s [%s]: %s", e.Verifier, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a categorized remote error.
func NewError(category Category, verifier, message string, underlying error) *Error {
	return &Error{Category: category, Verifier: verifier, Message: message, Underlying: underlying}
}

// CategoryOf extracts the category of err. Context deadline and network
// timeouts are reported as CategoryTimeout even when not wrapped.
func CategoryOf(err error) Category {
	var re *Error
	if errors.As(err, &re) {
		return re.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CategoryTimeout
	}
	return CategoryInternal
}

// transportError classifies an error returned by http.Client.Do.
func transportError(verifier string, err error) *Error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return NewError(CategoryTimeout, verifier, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(CategoryTimeout, verifier, "request canceled", err)
	}
	return NewError(CategoryOutage, verifier, "request failed", err)
}

// statusError classifies a non-200 response.
func statusError(verifier string, code int, body string) *Error {
	msg := fmt.Sprintf("http %d", code)
	if body != "" {
		msg = fmt.Sprintf("http %d: %s", code, body)
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return NewError(CategoryAuthentication, verifier, msg, nil)
	case code == http.StatusNotFound:
		return NewError(CategoryNotFound, verifier, msg, nil)
	case code == http.StatusTooManyRequests:
		return NewError(CategoryRateLimited, verifier, msg, nil)
	case code >= 500:
		return NewError(CategoryOutage, verifier, msg, nil)
	default:
		return NewError(CategoryBadData, verifier, msg, nil)
	}
}
