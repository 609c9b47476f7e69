// Package errs implements the error taxonomy shared by every Conveyor
// package. It follows the same shape as OPA's storage.Error: a small Code
// enum plus a message and an optional wrapped cause, rather than one Go
// error type per failure kind.
package errs

import "fmt"

// Code classifies an Error. The zero Code is never produced by this
// package's constructors; compare with the named constants only.
type Code int

const (
	// NotFound indicates a blob or row absent when one was required by a
	// read, a delete, or a conditional update that matched zero rows.
	NotFound Code = iota + 1
	// IntegrityCheck indicates a stored blob's decoded bytes did not match
	// the digest under which it was requested.
	IntegrityCheck
	// SchemaConflict indicates a metadata key's type disagrees with the
	// type of the column already present for that key.
	SchemaConflict
	// StorageBackend wraps an opaque underlying database or filesystem I/O
	// failure.
	StorageBackend
	// Reserved indicates an attempt to mutate or delete an item held by a
	// different reserver.
	Reserved
	// ValidationError indicates a malformed Word, a digest mismatch at
	// Data construction, a non-positive query limit, or an empty parts
	// list.
	ValidationError
	// PartialCommit indicates a composite transaction committed on some
	// parts and failed on others after the point of no return.
	PartialCommit
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "not_found"
	case IntegrityCheck:
		return "integrity_check"
	case SchemaConflict:
		return "schema_conflict"
	case StorageBackend:
		return "storage_backend"
	case Reserved:
		return "reserved"
	case ValidationError:
		return "validation_error"
	case PartialCommit:
		return "partial_commit"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every Conveyor operation that can
// fail in a classifiable way.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("conveyor: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("conveyor: %s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error with the given code and formatted message.
func New(code Code, format string, a ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...)}
}

// Wrap builds an *Error with the given code, formatted message, and wrapped
// cause.
func Wrap(code Code, err error, format string, a ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...), Err: err}
}

// NotFoundf is a convenience constructor for the NotFound code.
func NotFoundf(format string, a ...any) error { return New(NotFound, format, a...) }

// Reservedf is a convenience constructor for the Reserved code.
func Reservedf(format string, a ...any) error { return New(Reserved, format, a...) }

// ValidationErrorf is a convenience constructor for the ValidationError code.
func ValidationErrorf(format string, a ...any) error { return New(ValidationError, format, a...) }

// SchemaConflictf is a convenience constructor for the SchemaConflict code.
func SchemaConflictf(format string, a ...any) error { return New(SchemaConflict, format, a...) }

// Is reports whether err is, or wraps, an *Error of the given code.
func Is(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
