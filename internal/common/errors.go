package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes for the pipeline's failure taxonomy.
const (
	CodeConfiguration      = "CONFIG_ERROR"
	CodeExtraction         = "EXTRACTION_ERROR"
	CodeMergeAmbiguity     = "MERGE_AMBIGUITY"
	CodeSchemaMismatch     = "SCHEMA_MISMATCH"
	CodeExportPrecondition = "EXPORT_PRECONDITION"
	CodeInvalidTransition  = "INVALID_TRANSITION"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match an AppError against the sentinel for its code.
func (e *AppError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// Common application errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
	ErrConfiguration      = errors.New("configuration error")
	ErrExtraction         = errors.New("extraction failed")
	ErrExportPrecondition = errors.New("export precondition not met")
	ErrInvalidTransition  = errors.New("invalid session transition")
)

var sentinels = map[string]error{
	CodeConfiguration:      ErrConfiguration,
	CodeExtraction:         ErrExtraction,
	CodeExportPrecondition: ErrExportPrecondition,
	CodeInvalidTransition:  ErrInvalidTransition,
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func ConfigError(message string, cause error) *AppError {
	return NewAppError(CodeConfiguration, message, cause)
}

func ConfigErrorf(format string, args ...any) *AppError {
	return NewAppError(CodeConfiguration, fmt.Sprintf(format, args...), nil)
}

func ExtractionError(page int, cause error) *AppError {
	return NewAppError(CodeExtraction, fmt.Sprintf("page %d", page), cause)
}

func PreconditionError(message string) *AppError {
	return NewAppError(CodeExportPrecondition, message, nil)
}

func TransitionError(from, to string) *AppError {
	return NewAppError(CodeInvalidTransition, fmt.Sprintf("cannot move from %s to %s", from, to), nil)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ToStatus maps pipeline errors onto gRPC status codes.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrExportPrecondition), errors.Is(err, ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
