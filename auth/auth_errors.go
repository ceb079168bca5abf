package auth

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/azkaraz/adstat/internal/errors"
)

var (
	ErrNoHostCredentials   = errors.New("no signed credential from host")
	ErrNoURLCredentials    = errors.New("no credential in url")
	ErrManualLoginRequired = errors.New("manual login required")
)

// FailureKind classifies why a login attempt failed.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureRateLimited
	FailureUnreachable
	FailureRejected
	FailureMalformed
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureUnreachable:
		return "unreachable"
	case FailureRejected:
		return "rejected"
	case FailureMalformed:
		return "malformed"
	}
	return "other"
}

// Transient kinds may succeed if the same credential is tried again later.
func (k FailureKind) Transient() bool {
	return k == FailureRateLimited || k == FailureUnreachable
}

// Classify maps an error from the login path to a FailureKind.
func Classify(err error) FailureKind {
	var httpErr *apperrors.HTTPError
	switch {
	case err == nil:
		return FailureOther
	case errors.Is(err, apperrors.ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, apperrors.ErrUnreachable), errors.Is(err, context.DeadlineExceeded):
		return FailureUnreachable
	case errors.Is(err, apperrors.ErrMalformedResponse):
		return FailureMalformed
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrRejected):
		return FailureRejected
	case errors.As(err, &httpErr) && httpErr.Status >= 400 && httpErr.Status < http.StatusInternalServerError:
		return FailureRejected
	}
	return FailureOther
}

// LoginError is returned by failed login attempts. Its Error text is the
// message shown to the user.
type LoginError struct {
	Kind FailureKind
	Err  error
}

func NewLoginError(err error) *LoginError {
	return &LoginError{Kind: Classify(err), Err: err}
}

func (e *LoginError) Error() string {
	switch e.Kind {
	case FailureRateLimited:
		return "too many login attempts, please wait a moment and try again"
	case FailureUnreachable:
		return "cannot reach the server, check your connection and try again"
	case FailureMalformed:
		return "the server returned an incomplete login response"
	case FailureRejected:
		var httpErr *apperrors.HTTPError
		if errors.As(e.Err, &httpErr) && httpErr.Detail != "" {
			return "login rejected: " + httpErr.Detail
		}
		return "login rejected: the Telegram credential could not be verified"
	}
	return "login failed: " + e.Err.Error()
}

func (e *LoginError) Unwrap() error {
	return e.Err
}
