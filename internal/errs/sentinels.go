// Package errs defines sentinel errors shared across layers, plus the
// classification used by the dispatcher to decide between retry and dead-letter.
package errs

import "errors"

var (
	// ErrNotFound is returned when an exact (sender_id, channel) scope or a task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a contact already exists for the (sender_id, channel) pair.
	ErrConflict = errors.New("already exists")
	// ErrInvalidArgument marks malformed input (empty sender, unknown trust level).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthorized is returned when a caller presents no valid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when an authenticated caller lacks the sovereign tier.
	ErrForbidden = errors.New("forbidden")
	// ErrResolverUnavailable is returned when the contact registry cannot be read during a check.
	ErrResolverUnavailable = errors.New("resolver unavailable")
	// ErrDispatchUnavailable is returned when a task could not be handed to the dispatcher
	// and was buffered locally instead.
	ErrDispatchUnavailable = errors.New("dispatch unavailable")
	// ErrLeaseLost is returned when a task or job lease is no longer held by the caller.
	ErrLeaseLost = errors.New("lease lost")
)
