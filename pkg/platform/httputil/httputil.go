// Package httputil writes JSON responses and decodes JSON requests with a
// uniform error body: {"error": "<code>", "error_description": "<message>"}.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"triplecheck/pkg/platform/sentinel"
)

// Code is the machine-readable error identifier in an error body.
type Code string

const (
	CodeBadRequest       Code = "bad_request"
	CodeValidation       Code = "validation_error"
	CodeNotFound         Code = "not_found"
	CodePayloadTooLarge  Code = "payload_too_large"
	CodeUnsupportedMedia Code = "unsupported_media_type"
	CodeRateLimited      Code = "rate_limit_exceeded"
	CodeUnavailable      Code = "service_unavailable"
	CodeInternal         Code = "internal_error"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes int64 = 10 << 20

// Error is a client-facing error with a code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validatable is implemented by request bodies that check and normalize themselves.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and error body. Internal errors never
// expose their message.
func WriteError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	body := map[string]string{"error": string(code)}
	if code != CodeInternal && message != "" {
		body["error_description"] = message
	}
	WriteJSON(w, status, body)
}

func classify(err error) (int, Code, string) {
	var httpErr *Error
	switch {
	case errors.As(err, &httpErr):
		return statusFor(httpErr.Code), httpErr.Code, httpErr.Message
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "resource not found"
	case errors.Is(err, sentinel.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable, "dependency unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, ""
	}
}

func statusFor(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure it writes the error response and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (PT, bool) {
	var req T
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request", "request_id", requestID, "error", err)
		WriteError(w, decodeError(err))
		return nil, false
	}
	if decoder.More() {
		WriteError(w, NewError(CodeBadRequest, "request body must contain a single JSON value"))
		return nil, false
	}
	prepared := PT(&req)
	if err := prepared.Validate(); err != nil {
		logger.InfoContext(ctx, "invalid request", "request_id", requestID, "error", err)
		WriteError(w, err)
		return nil, false
	}
	return prepared, true
}

func decodeError(err error) *Error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return NewError(CodePayloadTooLarge, "request body exceeds %d bytes", maxErr.Limit)
	case errors.Is(err, io.EOF):
		return NewError(CodeBadRequest, "request body is required")
	default:
		return NewError(CodeBadRequest, "invalid JSON: %v", err)
	}
}
