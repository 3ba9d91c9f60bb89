// Package errors provides the error taxonomy shared by every RibbitDB layer.
//
// Each typed error unwraps to one sentinel so callers can classify failures
// with errors.Is without caring about the concrete type:
//
//	if errors.Is(err, errors.ErrConstraint) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for each failure class.
var (
	// ErrSyntax indicates malformed SQL text.
	ErrSyntax = errors.New("syntax error")
	// ErrSchema indicates a missing or duplicate table, column, index or view.
	ErrSchema = errors.New("schema error")
	// ErrType indicates a value that does not match its column type.
	ErrType = errors.New("type error")
	// ErrConstraint indicates a NOT NULL or validation failure.
	ErrConstraint = errors.New("constraint violation")
	// ErrTransaction indicates an operation on a missing or finished transaction.
	ErrTransaction = errors.New("transaction error")
	// ErrUnsupported indicates recognized but unimplemented SQL.
	ErrUnsupported = errors.New("unsupported")
	// ErrOperational indicates a file, I/O or format failure.
	ErrOperational = errors.New("operational error")
	// ErrMigration indicates a migration bookkeeping failure.
	ErrMigration = errors.New("migration error")
	// ErrInvalidInput indicates bad arguments passed through the Go API.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCorrupted indicates stored bytes that failed an integrity check.
	ErrCorrupted = errors.New("corrupted data")
)

// SyntaxError describes malformed SQL with its position in the source.
type SyntaxError struct {
	Message string // What went wrong
	Line    int    // 1-based line of the offending token
	Column  int    // 1-based column of the offending token
	Snippet string // Up to 50 characters of the source line around Column
	Caret   int    // Offset of Column inside Snippet
	Hint    string // Optional suggestion
}

func (e *SyntaxError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "syntax error: %s at line %d, column %d", e.Message, e.Line, e.Column)
	if e.Snippet != "" {
		sb.WriteString("\n\n  ")
		sb.WriteString(e.Snippet)
		sb.WriteString("\n  ")
		sb.WriteString(strings.Repeat(" ", e.Caret))
		sb.WriteString("^")
	}
	if e.Hint != "" {
		sb.WriteString("\n\nHint: ")
		sb.WriteString(e.Hint)
	}
	return sb.String()
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// SchemaError reports a catalog object that is missing or already present.
type SchemaError struct {
	Object string // "table", "column", "index" or "view"
	Name   string // Object name
	Reason string // e.g. "does not exist", "already exists"
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s '%s' %s", capitalize(e.Object), e.Name, e.Reason)
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

// TypeError reports a value rejected by its column's declared type.
type TypeError struct {
	Table    string
	Column   string
	Expected string // Declared column type
	Got      string // Type of the offending value
}

func (e *TypeError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("type mismatch for %s.%s: expected %s, got %s", e.Table, e.Column, e.Expected, e.Got)
	}
	return fmt.Sprintf("type mismatch for %s: expected %s, got %s", e.Column, e.Expected, e.Got)
}

func (e *TypeError) Unwrap() error {
	return ErrType
}

// ConstraintError reports a violated column constraint.
type ConstraintError struct {
	Constraint string // e.g. "NOT NULL"
	Details    string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s constraint violation: %s", e.Constraint, e.Details)
}

func (e *ConstraintError) Unwrap() error {
	return ErrConstraint
}

// TransactionError reports a transaction control statement that cannot run.
type TransactionError struct {
	Op     string // BEGIN, COMMIT, ROLLBACK, SAVEPOINT, RELEASE
	Reason string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
}

func (e *TransactionError) Unwrap() error {
	return ErrTransaction
}

// UnsupportedError represents recognized SQL that is not implemented.
type UnsupportedError struct {
	Feature string // Feature that is unsupported
	Reason  string // Why it's not supported
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("feature '%s' is not supported: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("feature '%s' is not supported yet", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// OperationalError represents a file or I/O failure with context.
type OperationalError struct {
	Op   string // Operation being performed (e.g., "open", "read page", "flush")
	Path string // File involved, if any
	Err  error  // Underlying error
}

func (e *OperationalError) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
	case e.Path != "":
		return fmt.Sprintf("failed to %s %s", e.Op, e.Path)
	}
	return fmt.Sprintf("failed to %s", e.Op)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *OperationalError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrOperational, e.Err}
	}
	return []error{ErrOperational}
}

// MigrationError reports a failure recording or applying a migration.
type MigrationError struct {
	Name   string
	Reason string
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s: %s", e.Name, e.Reason)
}

func (e *MigrationError) Unwrap() error {
	return ErrMigration
}

// ValidationError represents an invalid argument passed through the Go API.
type ValidationError struct {
	Field   string // Field name that failed validation
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Helper functions for creating common errors

// NewTableNotFound creates a SchemaError for a missing table.
func NewTableNotFound(name string) *SchemaError {
	return &SchemaError{Object: "table", Name: name, Reason: "does not exist"}
}

// NewTableExists creates a SchemaError for a duplicate table.
func NewTableExists(name string) *SchemaError {
	return &SchemaError{Object: "table", Name: name, Reason: "already exists"}
}

// NewColumnNotFound creates a SchemaError for a missing column.
func NewColumnNotFound(table, column string) *SchemaError {
	name := column
	if table != "" {
		name = table + "." + column
	}
	return &SchemaError{Object: "column", Name: name, Reason: "does not exist"}
}

// NewSchema creates a SchemaError for any catalog object.
func NewSchema(object, name, reason string) *SchemaError {
	return &SchemaError{Object: object, Name: name, Reason: reason}
}

// NewConstraint creates a ConstraintError.
func NewConstraint(constraint, details string) *ConstraintError {
	return &ConstraintError{Constraint: constraint, Details: details}
}

// NewTransaction creates a TransactionError.
func NewTransaction(op, reason string) *TransactionError {
	return &TransactionError{Op: op, Reason: reason}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// NewOperational creates an OperationalError
func NewOperational(op, path string, err error) *OperationalError {
	return &OperationalError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// NewMigration creates a MigrationError.
func NewMigration(name, reason string) *MigrationError {
	return &MigrationError{Name: name, Reason: reason}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// New wraps errors.New for convenience.
func New(text string) error {
	return errors.New(text)
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
