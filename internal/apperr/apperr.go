package apperr

import "fmt"

// Caller-recoverable engine errors. Handlers match these with errors.As
// and translate them to HTTP status codes; anything else is treated as an
// internal failure.

// ConflictError reports an operation that collides with existing open state,
// e.g. a second open duel for the same pair or a group that is already queued.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func Conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// AuthorizationError reports that the acting user is not allowed to perform
// the requested transition (wrong participant, not group staff).
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return e.Reason }

func Authorizationf(format string, args ...any) error {
	return &AuthorizationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports a transition attempted from a state that does not
// allow it.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return e.Reason }

func InvalidStatef(format string, args ...any) error {
	return &InvalidStateError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}
