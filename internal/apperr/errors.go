// Package apperr defines the error taxonomy shared by the core services.
// Business-rule failures are returned synchronously to callers and never
// retried automatically; transient failures are retryable.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrCapacityExceeded   = errors.New("event capacity exceeded")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state")
	ErrScanCodeGeneration = errors.New("scan code generation failed")

	// ErrUpstreamUnavailable triggers fallback behaviour (e.g. fallback
	// ticket expiry); it is never surfaced to end users.
	ErrUpstreamUnavailable = errors.New("upstream event catalog unavailable")

	// ErrTransient wraps storage/broker failures that are safe to retry.
	ErrTransient = errors.New("transient failure")
)

func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func CapacityExceededf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCapacityExceeded, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func InvalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func Transientf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

// IsBusiness reports whether err is a business-rule failure that should be
// surfaced to the caller rather than retried.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidState)
}
