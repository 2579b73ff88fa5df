package errors

import (
	"fmt"
)

// AppError is a structured error carrying a stable machine-readable code.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes. The first block is the inference taxonomy: all of these are
// raised immediately and never retried, since a malformed specification has
// no sensible partial result.
const (
	CodeShapeMismatch      = "SHAPE_MISMATCH"
	CodeInvalidBlock       = "INVALID_BLOCK"
	CodeAmbiguousStructure = "AMBIGUOUS_STRUCTURE"
	CodeInvalidParameter   = "INVALID_PARAMETER"
	CodeContractViolation  = "CONTRACT_VIOLATION"
	CodeInsufficientInput  = "INSUFFICIENT_INPUT"

	CodeConfigInvalid = "CONFIG_INVALID"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeInternalError = "INTERNAL_ERROR"
)

// New creates a new AppError with the given code.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates a new AppError with a formatted message.
func Newf(code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap adds context to an error, preserving an existing code when present.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	code := CodeInternalError
	if appErr, ok := err.(*AppError); ok {
		code = appErr.Code
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// WrapCode adds context to an error under an explicit code, overriding any
// code the cause carries.
func WrapCode(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the error code, or "UNKNOWN" for non-AppError values.
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// ShapeMismatch signals a dimension mismatch between data, design, contrast
// or exchangeability structures.
func ShapeMismatch(format string, args ...interface{}) *AppError {
	return Newf(CodeShapeMismatch, format, args...)
}

// InvalidBlock signals a zero or otherwise malformed exchangeability block index.
func InvalidBlock(format string, args ...interface{}) *AppError {
	return Newf(CodeInvalidBlock, format, args...)
}

// AmbiguousStructure signals mixed-sign sibling blocks or an otherwise
// inconsistent multi-level exchangeability structure.
func AmbiguousStructure(format string, args ...interface{}) *AppError {
	return Newf(CodeAmbiguousStructure, format, args...)
}

// InvalidParameter signals caller parameter misuse, e.g. a non-positive
// permutation count.
func InvalidParameter(format string, args ...interface{}) *AppError {
	return Newf(CodeInvalidParameter, format, args...)
}

// ContractViolation signals a pluggable collaborator breaking its contract,
// e.g. a statistic function returning the wrong feature count.
func ContractViolation(format string, args ...interface{}) *AppError {
	return Newf(CodeContractViolation, format, args...)
}

// InsufficientInput signals that there is nothing meaningful to compute,
// e.g. a correlation analysis over a single dataset with no references.
func InsufficientInput(format string, args ...interface{}) *AppError {
	return Newf(CodeInsufficientInput, format, args...)
}

// ConfigInvalid signals invalid or missing configuration.
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

// DatabaseError signals a persistence failure.
func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

// NotFound signals a missing resource.
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}
