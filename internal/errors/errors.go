package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types shared by the adstat client packages
var (
	// Transport errors
	ErrUnreachable = errors.New("backend unreachable")
	ErrRateLimited = errors.New("rate limited")

	// Authentication errors
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRejected          = errors.New("credential rejected")
	ErrMalformedResponse = errors.New("malformed response")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session expired")

	// General errors
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// HTTPError is a non-2xx answer from the backend. Detail carries the
// `{detail: string}` body when the backend sent one.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Is lets callers match an HTTPError against the shared sentinels with errors.Is.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers importing this package under
// the name errors keep access to it.
func New(text string) error {
	return errors.New(text)
}
