// Package errors provides the relay's domain error sentinels. Module errors wrap one of them
// so handlers and the relay client can map any failure to a status code without
// knowing which module produced it.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPayloadTooLarge indicates the submitted payload exceeds the configured ceiling.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrForbidden indicates the supplied credentials do not grant access to the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrIntegrity indicates persisted state is internally inconsistent (e.g., metadata without bytes).
	ErrIntegrity = errors.New("integrity violation")

	// ErrUnavailable indicates a backing service failed after the allowed number of attempts.
	ErrUnavailable = errors.New("service unavailable")
)

// New creates an error that matches no sentinel; HandleErrorGin treats it as internal.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Retryable reports whether a caller may repeat the operation later with the same input.
// Only unavailability qualifies: a denied, invalid or inconsistent request fails the same way again.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) &&
		!errors.Is(err, ErrForbidden) &&
		!errors.Is(err, ErrInvalidInput) &&
		!errors.Is(err, ErrIntegrity)
}
