package schema

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// TableErrorCode categorizes schema errors.
type TableErrorCode string

const (
	// CodeInvalidDefinition indicates a malformed property type. It is
	// raised before any DDL runs.
	CodeInvalidDefinition TableErrorCode = "INVALID_DEFINITION"

	// CodeTableNotFound indicates a property type has no backing table.
	CodeTableNotFound TableErrorCode = "TABLE_NOT_FOUND"
)

// Sentinels for errors.Is. A *TableError matches the sentinel of its code.
var (
	ErrInvalidDefinition = errors.New("invalid table definition")
	ErrTableNotFound     = errors.New("table not found")
)

// TableError carries structured context for schema failures.
type TableError struct {
	Code           TableErrorCode
	Table          string
	PropertyTypeID uuid.UUID
	Message        string
}

// Error implements the error interface.
func (e *TableError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches the sentinel for the error's code.
func (e *TableError) Is(target error) bool {
	switch target {
	case ErrInvalidDefinition:
		return e.Code == CodeInvalidDefinition
	case ErrTableNotFound:
		return e.Code == CodeTableNotFound
	}
	return false
}

// IsNotFound returns true if err is a missing-table error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var te *TableError
	if errors.As(err, &te) {
		return te.Code == CodeTableNotFound
	}
	return false
}

// IsInvalid returns true if err is a malformed-definition error.
func IsInvalid(err error) bool {
	var te *TableError
	if errors.As(err, &te) {
		return te.Code == CodeInvalidDefinition
	}
	return false
}

func invalid(id uuid.UUID, format string, args ...any) *TableError {
	return &TableError{
		Code:           CodeInvalidDefinition,
		PropertyTypeID: id,
		Message:        fmt.Sprintf(format, args...),
	}
}
