// Package errors provides structured error types for the minicql engine.
// All errors include a category, code and message for consistent handling
// across components; every error is recovered at the statement boundary and
// rendered as a wire-level ERROR response, except protocol errors, which end
// the connection.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by engine component.
type ErrorCategory string

const (
	ErrCategoryProtocol  ErrorCategory = "PROTOCOL"
	ErrCategoryParse     ErrorCategory = "PARSE"
	ErrCategorySchema    ErrorCategory = "SCHEMA"
	ErrCategoryType      ErrorCategory = "TYPE"
	ErrCategoryExecution ErrorCategory = "EXECUTION"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Protocol codes
	CodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	CodeMalformedFrame     = "MALFORMED_FRAME"
	CodeUnexpectedOpcode   = "UNEXPECTED_OPCODE"

	// Parse codes
	CodeSyntaxError = "SYNTAX_ERROR"

	// Schema codes
	CodeUnknownKeyspace  = "UNKNOWN_KEYSPACE"
	CodeUnknownTable     = "UNKNOWN_TABLE"
	CodeUnknownColumn    = "UNKNOWN_COLUMN"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeInvalidSchema    = "INVALID_SCHEMA"
	CodeIncompatibleDDL  = "INCOMPATIBLE_DDL"
	CodeKeyspaceRequired = "KEYSPACE_REQUIRED"

	// Type codes
	CodeTypeMismatch  = "TYPE_MISMATCH"
	CodeBadLiteral    = "BAD_LITERAL"
	CodeBadBindValue  = "BAD_BIND_VALUE"
	CodeBindCount     = "BIND_COUNT_MISMATCH"
	CodeNullInKey     = "NULL_IN_KEY"
	CodeNullElement   = "NULL_COLLECTION_ELEMENT"
	CodeTruncatedData = "TRUNCATED_DATA"

	// Execution codes
	CodeMissingPartitionKey = "MISSING_PARTITION_KEY"
	CodeInvalidBatch        = "INVALID_BATCH"
	CodeInvalidOrdering     = "INVALID_ORDERING"
	CodeUnprepared          = "UNPREPARED"
	CodeInvalidCondition    = "INVALID_CONDITION"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// EngineError is the structured error type used throughout the engine.
type EngineError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
}

// Error returns a formatted error string.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new EngineError.
func New(category ErrorCategory, code, message string) *EngineError {
	return &EngineError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Newf creates a new EngineError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *EngineError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new EngineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *EngineError {
	return &EngineError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an EngineError.
func GetCategory(err error) ErrorCategory {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an EngineError.
func GetCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewParseError(message string, position int) *EngineError {
	return Newf(ErrCategoryParse, CodeSyntaxError, "%s (at position %d)", message, position)
}

func NewTypeError(code, message string) *EngineError {
	return New(ErrCategoryType, code, message)
}

func NewExecutionError(code, message string) *EngineError {
	return New(ErrCategoryExecution, code, message)
}
