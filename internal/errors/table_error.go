// Package errors provides the error types shared by the ecomlake engines,
// storage backends and pipeline stages.
//
// TableError describes a failed table operation (join, null handling, casting,
// aggregation) with the operation and column involved. StageError tags a
// failure with the pipeline stage it aborted, and CommandError carries the
// result of an external command that exited unsuccessfully.
package errors

import (
	stderrors "errors"
	"fmt"
)

// TableError represents a failed operation on a table, regardless of engine.
type TableError struct {
	Op      string // Operation name (e.g., "Join", "DropNulls", "ToTimestamp")
	Table   string // Table name if applicable
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *TableError) Error() string {
	var where string
	switch {
	case e.Table != "" && e.Column != "":
		where = fmt.Sprintf(" on %s.%s", e.Table, e.Column)
	case e.Column != "":
		where = fmt.Sprintf(" on column '%s'", e.Column)
	case e.Table != "":
		where = fmt.Sprintf(" on table '%s'", e.Table)
	}
	msg := fmt.Sprintf("%s failed%s: %s", e.Op, where, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error wrapping support
func (e *TableError) Unwrap() error {
	return e.Cause
}

// Is matches another TableError with the same operation, column and message.
// Empty fields on the target act as wildcards so callers can match on Op alone.
func (e *TableError) Is(target error) bool {
	var te *TableError
	if !stderrors.As(target, &te) {
		return false
	}
	if te.Op != "" && te.Op != e.Op {
		return false
	}
	if te.Column != "" && te.Column != e.Column {
		return false
	}
	return te.Message == "" || te.Message == e.Message
}

// NewColumnNotFoundError creates an error for operations on non-existent columns
func NewColumnNotFoundError(op, column string) *TableError {
	return &TableError{
		Op:      op,
		Column:  column,
		Message: msgColumnNotFound,
	}
}

// NewTableNotFoundError creates an error for references to unknown catalog tables
func NewTableNotFoundError(op, table string) *TableError {
	return &TableError{
		Op:      op,
		Table:   table,
		Message: msgTableNotFound,
		Cause:   ErrTableNotFound,
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *TableError {
	return &TableError{
		Op:      op,
		Message: message,
	}
}

// NewUnsupportedTypeError creates an error for unsupported data types
func NewUnsupportedTypeError(op, column, typeName string) *TableError {
	return &TableError{
		Op:      op,
		Column:  column,
		Message: "unsupported type: " + typeName,
	}
}

// NewValidationError creates an error for input validation failures
func NewValidationError(op, column, message string) *TableError {
	return &TableError{
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewInternalError creates an error for engine-internal failures
func NewInternalError(op string, cause error) *TableError {
	return &TableError{
		Op:      op,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

const (
	msgColumnNotFound = "column does not exist"
	msgTableNotFound  = "table does not exist"
)

var (
	// ErrTableNotFound is the cause of every NewTableNotFoundError.
	ErrTableNotFound = stderrors.New("table not found")

	// ErrOutputExists is returned when output mode "error" finds prior output.
	ErrOutputExists = stderrors.New("output already exists")

	// ErrMismatchedLength indicates length mismatches between columns
	ErrMismatchedLength = &TableError{
		Op:      "validation",
		Message: "columns must have the same length",
	}
)
