// Package errs defines the single error family raised by the mapping layer.
//
// Every validation failure of the compilers and decoders, and every backend
// failure that bubbles through them, is reported as an *Error. Callers test
// for the family with IsInvalidOption and for a specific cause with HasCode.
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes an invalid query option.
type Code string

const (
	// CodeUnknownOption indicates an option key the compiler does not know.
	CodeUnknownOption Code = "UNKNOWN_OPTION"

	// CodeInvalidShape indicates an option value of the wrong kind, e.g. a
	// scalar where a collection is required.
	CodeInvalidShape Code = "INVALID_SHAPE"

	// CodeUnknownField indicates a field, alias or column that is not part
	// of the entity metadata.
	CodeUnknownField Code = "UNKNOWN_FIELD"

	// CodeUnresolvedToken indicates a symbolic :name: token that survived
	// substitution.
	CodeUnresolvedToken Code = "UNRESOLVED_TOKEN"

	// CodeInvalidValue indicates a value that cannot be bound or decoded.
	CodeInvalidValue Code = "INVALID_VALUE"

	// CodeNullNotAllowed indicates nil for a non-nullable field.
	CodeNullNotAllowed Code = "NULL_NOT_ALLOWED"

	// CodeAmbiguousLimit indicates a single-row query with a limit other than 1.
	CodeAmbiguousLimit Code = "AMBIGUOUS_LIMIT"

	// CodeMissingWhere indicates a mutation or join without restrictions.
	CodeMissingWhere Code = "MISSING_WHERE"

	// CodeMissingChanges indicates an update without changes.
	CodeMissingChanges Code = "MISSING_CHANGES"

	// CodeConnectionMismatch indicates entities bound to different connections.
	CodeConnectionMismatch Code = "CONNECTION_MISMATCH"

	// CodeReadOnly indicates a write through a read-only handle.
	CodeReadOnly Code = "READ_ONLY"

	// CodeUnknownType indicates a semantic type the caster does not handle.
	CodeUnknownType Code = "UNKNOWN_TYPE"

	// CodeNoAutoincrement indicates an insert id request for an entity
	// without autoincrement column.
	CodeNoAutoincrement Code = "NO_AUTOINCREMENT"

	// CodeMissingIndexField indicates an upsert whose values lack an index field.
	CodeMissingIndexField Code = "MISSING_INDEX_FIELD"

	// CodeBackendFailure wraps an error returned by the database backend.
	CodeBackendFailure Code = "BACKEND_FAILURE"
)

// Error is an invalid query option.
//
// It is always a caller error or a re-wrapped backend failure and is never
// retried by this layer.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Option names the option being processed ("where", "fields", ...).
	Option string

	// Entity names the entity or alias involved, if any.
	Entity string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Entity != "" && e.Option != "":
		msg = fmt.Sprintf("%s (entity=%s, option=%s)", msg, e.Entity, e.Option)
	case e.Entity != "":
		msg = fmt.Sprintf("%s (entity=%s)", msg, e.Entity)
	case e.Option != "":
		msg = fmt.Sprintf("%s (option=%s)", msg, e.Option)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithOption returns a copy of e bound to an option name.
// An option that is already set is kept.
func (e *Error) WithOption(option string) *Error {
	c := *e
	if c.Option == "" {
		c.Option = option
	}
	return &c
}

// WithEntity returns a copy of e bound to an entity name.
// An entity that is already set is kept.
func (e *Error) WithEntity(entity string) *Error {
	c := *e
	if c.Entity == "" {
		c.Entity = entity
	}
	return &c
}

// Annotate binds an error of the family to an option and an entity.
// Errors outside the family are returned unchanged.
func Annotate(err error, option, entity string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	e = e.WithOption(option)
	if entity != "" {
		e = e.WithEntity(entity)
	}
	return e
}

// Backend wraps a backend error into the family.
// Errors already in the family are returned unchanged; nil stays nil.
func Backend(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeBackendFailure, Message: "database backend failed", Err: err}
}

// IsInvalidOption reports whether err belongs to the family.
// Uses errors.As to handle wrapped errors.
func IsInvalidOption(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// HasCode reports whether err belongs to the family with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
