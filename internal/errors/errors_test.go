package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestEngineError_Error(t *testing.T) {
	err := New(ErrCategorySchema, CodeUnknownTable, "table ks.t does not exist")
	expected := "[SCHEMA:UNKNOWN_TABLE] table ks.t does not exist"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestEngineError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("unexpected end of input")
	err := Wrap(ErrCategoryType, CodeTruncatedData, "decoding int", cause)
	expected := "[TYPE:TRUNCATED_DATA] decoding int: unexpected end of input"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryInternal, CodeUnexpected, "bad partition state", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestEngineError_Is(t *testing.T) {
	err1 := New(ErrCategorySchema, CodeUnknownColumn, "first")
	err2 := New(ErrCategorySchema, CodeUnknownColumn, "second")
	err3 := New(ErrCategorySchema, CodeUnknownTable, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestNewParseError(t *testing.T) {
	err := NewParseError("expected FROM", 17)
	if GetCategory(err) != ErrCategoryParse {
		t.Errorf("got category %q, want %q", GetCategory(err), ErrCategoryParse)
	}
	expected := "[PARSE:SYNTAX_ERROR] expected FROM (at position 17)"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	te := NewTypeError(CodeBadBindValue, "expected int")
	if GetCategory(te) != ErrCategoryType || GetCode(te) != CodeBadBindValue {
		t.Errorf("type error = %q/%q", GetCategory(te), GetCode(te))
	}
	ee := NewExecutionError(CodeInvalidCondition, "bad relation")
	if GetCategory(ee) != ErrCategoryExecution || GetCode(ee) != CodeInvalidCondition {
		t.Errorf("execution error = %q/%q", GetCategory(ee), GetCode(ee))
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryExecution, CodeMissingPartitionKey, "pk required")
	if GetCategory(err) != ErrCategoryExecution {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryExecution)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-EngineError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryExecution, CodeUnprepared, "unknown id")
	if GetCode(err) != CodeUnprepared {
		t.Errorf("got %q, want %q", GetCode(err), CodeUnprepared)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-EngineError should return empty code")
	}
}
