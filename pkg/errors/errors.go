package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Callers classify failures with errors.Is against these.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrStorageCorrupt = errors.New("storage corrupt")
	ErrRateLimited    = errors.New("rate limited")
)

const (
	internalCode    = "INTERNAL_ERROR"
	internalMessage = "an internal error occurred"
)

// kind binds a sentinel to its wire code, HTTP status and the message shown
// when the sentinel arrives bare. An empty public message means the error
// text itself is safe to show.
type kind struct {
	sentinel error
	code     string
	status   int
	public   string
}

// kinds is checked in order; the first sentinel matched wins.
var kinds = []kind{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found"},
	{ErrConflict, "CONFLICT", http.StatusConflict, "resource conflict"},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, ""},
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "authentication required"},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden, "access denied"},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "cart service unavailable"},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests, "too many requests"},
	{ErrStorageCorrupt, "STORAGE_CORRUPT", http.StatusInternalServerError, internalMessage},
}

func kindOf(sentinel error) kind {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return k
		}
	}
	return kind{sentinel: ErrInternal, code: internalCode, status: http.StatusInternalServerError, public: internalMessage}
}

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// newError builds an AppError of the sentinel's kind. A non-nil cause is
// chained behind the sentinel so both match errors.Is.
func newError(sentinel error, message string, cause error) *AppError {
	k := kindOf(sentinel)
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: err}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id), nil)
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return newError(ErrInvalidInput, message, nil)
}

// Unauthorized creates a 401 error. The storefront treats it as a request
// to re-authenticate.
func Unauthorized(message string) *AppError {
	return newError(ErrUnauthorized, message, nil)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return newError(ErrForbidden, message, nil)
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return newError(ErrConflict, message, nil)
}

// ServiceUnavailable creates a 503 error for a remote dependency that could
// not be reached or answered with a server error. The cause is kept for logs.
func ServiceUnavailable(message string, cause error) *AppError {
	return newError(ErrServiceUnavail, message, cause)
}

// StorageCorrupt reports a persisted record that could not be decoded.
func StorageCorrupt(key string, cause error) *AppError {
	return newError(ErrStorageCorrupt, fmt.Sprintf("stored value at %s is malformed", key), cause)
}

// RateLimited creates a 429 error.
func RateLimited(message string) *AppError {
	return newError(ErrRateLimited, message, nil)
}

// Internal creates a 500 error. The message never carries err's text.
func Internal(err error) *AppError {
	return &AppError{Code: internalCode, Message: internalMessage, Status: http.StatusInternalServerError, Err: err}
}

// Classify returns the status, wire code and browser-safe message for err.
// AppErrors keep their own code and message. Bare sentinels get a generic
// message so internal detail never leaks; anything else is a 500.
func Classify(err error) (status int, code, message string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code, appErr.Message
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			message = k.public
			if message == "" {
				message = err.Error()
			}
			return k.status, k.code, message
		}
	}
	return http.StatusInternalServerError, internalCode, internalMessage
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	status, _, _ := Classify(err)
	return status
}
