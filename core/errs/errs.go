// Package errs defines the error taxonomy shared by the dispatch and session
// packages. Callers branch on the error kind with the Is* predicates rather
// than matching message strings.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input. It is returned synchronously and
// never worth retrying.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown session or volunteer id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error { return &NotFoundError{Entity: entity, ID: id} }

// PermissionError reports an actor not authorized for the requested transition.
type PermissionError struct {
	Actor  string
	Action string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s is not allowed to %s", e.Actor, e.Action)
}

// Permission builds a PermissionError.
func Permission(actor, action string) error { return &PermissionError{Actor: actor, Action: action} }

// StateError reports an illegal lifecycle transition, e.g. rating before
// resolution or resolving twice.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

// Statef builds a StateError from a format string.
func Statef(format string, args ...any) error {
	return &StateError{Msg: fmt.Sprintf(format, args...)}
}

// TransientError wraps a failed persistent-store call. It propagates on the
// write path so the caller may retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err with the failing operation name. A nil err yields nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsPermission reports whether err is a PermissionError.
func IsPermission(err error) bool {
	var e *PermissionError
	return errors.As(err, &e)
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var e *TransientError
	return errors.As(err, &e)
}
