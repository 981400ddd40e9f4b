// Package sqlgraph classifies database driver errors raised while applying
// planned statements.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/syssam/strata"
)

// ConstraintError wraps a driver error that was classified as a
// constraint violation.
type ConstraintError struct {
	Kind Violation
	Err  error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return "sqlgraph: " + e.Kind.String() + " constraint violation: " + e.Err.Error()
}

// Unwrap returns the driver error.
func (e *ConstraintError) Unwrap() error { return e.Err }

// Violation is the kind of a constraint violation.
type Violation int

// Violation kinds.
const (
	NoViolation Violation = iota
	UniqueViolation
	ForeignKeyViolation
	CheckViolation
)

// String implements fmt.Stringer.
func (v Violation) String() string {
	switch v {
	case UniqueViolation:
		return "unique"
	case ForeignKeyViolation:
		return "foreign-key"
	case CheckViolation:
		return "check"
	}
	return "none"
}

// errorCoder is implemented by pq.Error and modernc.org/sqlite errors.
type errorCoder interface {
	Code() string
}

// errorNumberer is implemented by drivers exposing numeric error codes.
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is implemented by pgconn.PgError and pq.Error.
type sqlStateError interface {
	SQLState() string
}

// signature describes how each driver reports one violation kind: the
// Postgres SQLSTATE (Class 23), the MySQL error numbers and the message
// fragments used when the driver error implements none of the interfaces.
type signature struct {
	kind      Violation
	sqlState  string
	mysql     []uint16
	fragments []string
}

var signatures = []signature{
	{
		kind:      UniqueViolation,
		sqlState:  "23505",
		mysql:     []uint16{1062},
		fragments: []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	},
	{
		kind:      ForeignKeyViolation,
		sqlState:  "23503",
		mysql:     []uint16{1451, 1452},
		fragments: []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	},
	{
		kind:      CheckViolation,
		sqlState:  "23514",
		mysql:     []uint16{3819},
		fragments: []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	},
}

// Classify returns the violation kind of a driver error.
func Classify(err error) Violation {
	if err == nil {
		return NoViolation
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	for _, s := range signatures {
		if s.matches(err) {
			return s.kind
		}
	}
	return NoViolation
}

func (s signature) matches(err error) bool {
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == s.sqlState {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == s.sqlState {
		return true
	}
	if e, ok := asError[errorNumberer](err); ok {
		for _, n := range s.mysql {
			if e.Number() == n {
				return true
			}
		}
	}
	return containsAny(err.Error(), s.fragments...)
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return Classify(err) != NoViolation
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	return Classify(err) == UniqueViolation
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return Classify(err) == ForeignKeyViolation
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return Classify(err) == CheckViolation
}

// AsValidationError maps a constraint violation raised by a statement on
// the given entity instance into the validation taxonomy: unique
// violations become NOT_UNIQUE, foreign-key violations NOT_FOUND. Other
// errors are returned unchanged.
func AsValidationError(err error, entity string, id any) error {
	var code strata.Code
	switch Classify(err) {
	case UniqueViolation:
		code = strata.CodeNotUnique
	case ForeignKeyViolation:
		code = strata.CodeNotFound
	default:
		return err
	}
	return strata.ValidationErrors{{
		Code:    code,
		Entity:  entity,
		ID:      id,
		Message: err.Error(),
	}}
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
