package strata

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for the error taxonomy.
var (
	// ErrNotFound is returned when a requested instance does not exist.
	ErrNotFound = errors.New("strata: instance not found")

	// ErrConfiguration marks defects of the loaded model or of the dialect
	// support (missing binding, missing permission annotation, unmapped
	// function signature). They are not recoverable at request scope.
	ErrConfiguration = errors.New("strata: configuration error")

	// ErrAuthenticationRequired is matched by authorization errors raised
	// for anonymous callers of non-public operations.
	ErrAuthenticationRequired = errors.New("strata: authentication required")

	// ErrPermissionDenied is matched by authorization errors raised when
	// a CRUD flag or a signed identifier check fails.
	ErrPermissionDenied = errors.New("strata: permission denied")

	// ErrConflict is returned when an optimistic lock check fails.
	ErrConflict = errors.New("strata: concurrent modification")

	// ErrValidation is matched by every validation failure.
	ErrValidation = errors.New("strata: validation failed")
)

// NotFoundError represents an error when an instance is not found.
type NotFoundError struct {
	label string
	id    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("strata: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("strata: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the identifier that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConfigError reports a model or dialect defect. Element names the model
// element (type, attribute, relation, operation or function signature) that
// is misconfigured.
type ConfigError struct {
	Element string
	Message string
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	if e.Element == "" {
		return "strata: configuration error: " + e.Message
	}
	return fmt.Sprintf("strata: configuration error on %s: %s", e.Element, e.Message)
}

// Is reports whether the target matches ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigError returns a new ConfigError.
func NewConfigError(element, format string, args ...any) *ConfigError {
	return &ConfigError{Element: element, Message: fmt.Sprintf(format, args...)}
}

// IsConfigError returns true if the error is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// Code is a machine-readable error code surfaced to clients.
type Code string

// Error codes of recoverable failures.
const (
	CodeAuthenticationRequired   Code = "AUTHENTICATION_REQUIRED"
	CodePermissionDenied         Code = "PERMISSION_DENIED"
	CodeInvalidSignedIdentifier  Code = "INVALID_SIGNED_IDENTIFIER"
	CodeSignedIdentifierMismatch Code = "SIGNED_IDENTIFIER_MISMATCH"
	CodeConflict                 Code = "CONFLICT"
	CodeNotUnique                Code = "NOT_UNIQUE"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeNotInRange               Code = "NOT_IN_RANGE"
	CodeMissingRequired          Code = "MISSING_REQUIRED"
	CodeInvalidValue             Code = "INVALID_VALUE"
)

// Severity of a recoverable failure.
type Severity string

// Severity levels.
const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// AuthorizationError is a recoverable access denial. It carries the
// offending model element so clients can localize the message.
type AuthorizationError struct {
	Code      Code
	Severity  Severity
	Element   string // model element the check failed on
	Operation string // operation name, if known
	Message   string
}

// Error returns the error string.
func (e *AuthorizationError) Error() string {
	var b strings.Builder
	b.WriteString("strata: ")
	b.WriteString(string(e.Code))
	if e.Operation != "" {
		b.WriteString(" on operation ")
		b.WriteString(e.Operation)
	}
	if e.Element != "" {
		b.WriteString(" (")
		b.WriteString(e.Element)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is reports whether the target matches the sentinel of the error code.
func (e *AuthorizationError) Is(target error) bool {
	switch target {
	case ErrAuthenticationRequired:
		return e.Code == CodeAuthenticationRequired
	case ErrPermissionDenied:
		return e.Code != CodeAuthenticationRequired
	}
	return false
}

// NewAuthorizationError returns a new AuthorizationError with error severity.
func NewAuthorizationError(code Code, element, message string) *AuthorizationError {
	return &AuthorizationError{Code: code, Severity: SeverityError, Element: element, Message: message}
}

// IsAuthorizationError returns true if the error is an AuthorizationError.
func IsAuthorizationError(err error) bool {
	if err == nil {
		return false
	}
	var e *AuthorizationError
	return errors.As(err, &e)
}

// ConflictError reports an optimistic lock mismatch: the stored row no
// longer carries the version the update was planned against.
type ConflictError struct {
	Entity  string
	ID      any
	Version int
}

// Error returns the error string.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("strata: %s (id=%v) was modified concurrently (expected version %d)", e.Entity, e.ID, e.Version)
}

// Is reports whether the target matches ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Code returns CodeConflict.
func (e *ConflictError) Code() Code { return CodeConflict }

// NewConflictError returns a new ConflictError.
func NewConflictError(entity string, id any, version int) *ConflictError {
	return &ConflictError{Entity: entity, ID: id, Version: version}
}

// IsConflict returns true if the error is an optimistic lock conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ValidationError represents a single validation failure.
type ValidationError struct {
	Code    Code
	Element string // attribute or relation name
	Entity  string
	ID      any
	Message string
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "strata: %s", e.Code)
	if e.Entity != "" {
		fmt.Fprintf(&b, " on %s", e.Entity)
		if e.Element != "" {
			fmt.Fprintf(&b, ".%s", e.Element)
		}
	}
	if e.ID != nil {
		fmt.Fprintf(&b, " (id=%v)", e.ID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Is reports whether the target matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidationErrors collects every violation found in one request.
type ValidationErrors []*ValidationError

// Error returns the error string.
func (es ValidationErrors) Error() string {
	switch len(es) {
	case 0:
		return "strata: no validation errors"
	case 1:
		return es[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("strata: multiple validation errors:")
	for i, err := range es {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Is reports whether the target matches ErrValidation.
func (es ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// Err returns es as an error, or nil if there are no violations.
func (es ValidationErrors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

// IsValidationError returns true if the error is a validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("strata: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // transfer or entity type being queried
	Op     string // operation (e.g., "select", "range")
	Err    error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("strata: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("strata: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// MutationError wraps a statement execution error with additional context.
type MutationError struct {
	Entity string
	Op     string // statement kind (e.g., "insert", "update", "delete")
	Err    error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("strata: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}
