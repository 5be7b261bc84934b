// Package fault defines the error kinds shared by the store and the
// governance layer.
//
// Every rejected operation returns a *Error whose Message names the invariant
// that was violated. Persistence errors wrap the driver error so callers can
// still inspect it with errors.Is / errors.As.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes an error.
type Kind string

const (
	// NotFound is returned when an operation requires an entity that does
	// not exist. Plain lookups report absence with a boolean instead.
	NotFound Kind = "NOT_FOUND"

	// InvalidState is returned when the current state forbids the operation:
	// voting on a resolved proposal, withdrawing a terminal proposal, a
	// capability mode that does not allow the action.
	InvalidState Kind = "INVALID_STATE"

	// InvalidInput is returned for malformed arguments: bad ids, negative
	// weights, decay factors outside [0,1].
	InvalidInput Kind = "INVALID_INPUT"

	// Persistence is returned when the underlying byte-store fails.
	// It is never retried inside the core.
	Persistence Kind = "PERSISTENCE"
)

// Error is the structured error returned by core operations.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "cast vote"
	Message string // the violated invariant
	Err     error  // wrapped cause, optional
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err,
// &fault.Error{Kind: fault.NotFound}) works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == ""
}

// New creates an error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a NotFound error.
func NotFoundf(op, format string, args ...any) *Error {
	return New(NotFound, op, format, args...)
}

// InvalidStatef creates an InvalidState error.
func InvalidStatef(op, format string, args ...any) *Error {
	return New(InvalidState, op, format, args...)
}

// InvalidInputf creates an InvalidInput error.
func InvalidInputf(op, format string, args ...any) *Error {
	return New(InvalidInput, op, format, args...)
}

// Persist wraps a byte-store failure. A nil err returns nil.
func Persist(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: Persistence, Op: op, Message: "storage failure", Err: err}
}

// KindOf returns the kind of err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return KindOf(err) == NotFound }

// IsInvalidState reports whether err is an InvalidState error.
func IsInvalidState(err error) bool { return KindOf(err) == InvalidState }

// IsInvalidInput reports whether err is an InvalidInput error.
func IsInvalidInput(err error) bool { return KindOf(err) == InvalidInput }

// IsPersistence reports whether err is a Persistence error.
func IsPersistence(err error) bool { return KindOf(err) == Persistence }
