// Package errors holds the sentinel errors the identity domains wrap. Use cases wrap
// them with context; HTTP handlers map them to status codes and the relay uses Transient
// to tell a flaky downstream from a message that will never dispatch.
package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the user, token or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate registration or a token that was already used.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates malformed input or an unusable token.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTooManyRequests indicates a per-user or per-caller limit was reached.
	ErrTooManyRequests = errors.New("too many requests")

	// ErrUnavailable indicates a downstream dependency failed and the operation may
	// succeed if retried later.
	ErrUnavailable = errors.New("unavailable")
)

// New creates an error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Wrap prefixes err with message and keeps it in the chain. A nil err stays nil.
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

// Transient reports whether err came from an unavailable dependency or a deadline, so the
// same call may succeed later.
func Transient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
