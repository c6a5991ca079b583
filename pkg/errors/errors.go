package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Input errors
	ErrMalformedValue   = errors.New("malformed numeric value")
	ErrUnreadableSource = errors.New("unreadable source")
	ErrRowWidth         = errors.New("inconsistent row width")
	ErrEmptyRow         = errors.New("row has no fields")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInsufficientData     = errors.New("insufficient data for configuration")

	// Model errors
	ErrDimensionMismatch = errors.New("feature dimensionality mismatch")
	ErrModelNotBuilt     = errors.New("model topology not built")

	// Persistence errors
	ErrModelWriteFailed = errors.New("failed to write model")
	ErrModelReadFailed  = errors.New("failed to read model")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeParse             ErrorType = "parse"
	ErrorTypeSchema            ErrorType = "schema"
	ErrorTypeInvalidConfig     ErrorType = "invalid_config"
	ErrorTypeDimensionMismatch ErrorType = "dimension_mismatch"
	ErrorTypePersistence       ErrorType = "persistence"
	ErrorTypeStorage           ErrorType = "storage"
	ErrorTypeInternal          ErrorType = "internal"
)

// Error codes for different error scenarios
const (
	CodeMalformedValue    = "MALFORMED_VALUE"
	CodeReadFailed        = "READ_FAILED"
	CodeRowWidth          = "ROW_WIDTH"
	CodeEmptyRow          = "EMPTY_ROW"
	CodeInvalidValue      = "INVALID_VALUE"
	CodeInsufficientData  = "INSUFFICIENT_DATA"
	CodeDimensionMismatch = "DIMENSION_MISMATCH"
	CodeWriteFailed       = "WRITE_FAILED"
	CodeModelCorrupt      = "MODEL_CORRUPT"
	CodeConnectionFailed  = "CONNECTION_FAILED"
	CodePublishFailed     = "PUBLISH_FAILED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewParseError reports a malformed token or unreadable source.
// Line is 1-based; zero means the failure is not tied to a line.
func NewParseError(line int, cause error, message string) *AppError {
	e := WrapError(cause, ErrorTypeParse, CodeMalformedValue, message)
	if line > 0 {
		e.WithContext("line", line)
		e.Message = fmt.Sprintf("line %d: %s", line, message)
	} else {
		e.Code = CodeReadFailed
	}
	return e
}

// NewSchemaError reports a row whose width differs from the series width.
func NewSchemaError(line, expected, actual int) *AppError {
	e := NewAppError(ErrorTypeSchema, CodeRowWidth,
		fmt.Sprintf("line %d: expected %d fields, got %d", line, expected, actual))
	if actual == 0 {
		e.Code = CodeEmptyRow
		e.Cause = ErrEmptyRow
	} else {
		e.Cause = ErrRowWidth
	}
	return e.WithContext("line", line).
		WithContext("expected", expected).
		WithContext("actual", actual)
}

// NewInvalidConfigError reports an out-of-range configuration value.
func NewInvalidConfigError(field, message string) *AppError {
	e := WrapError(ErrInvalidConfiguration, ErrorTypeInvalidConfig, CodeInvalidValue,
		fmt.Sprintf("%s: %s", field, message))
	return e.WithContext("field", field)
}

// NewInsufficientDataError reports input too short for the configuration.
func NewInsufficientDataError(field, message string) *AppError {
	e := WrapError(ErrInsufficientData, ErrorTypeInvalidConfig, CodeInsufficientData,
		fmt.Sprintf("%s: %s", field, message))
	return e.WithContext("field", field)
}

// NewDimensionMismatchError reports a window whose width is not the model input width.
func NewDimensionMismatchError(expected, actual int) *AppError {
	e := WrapError(ErrDimensionMismatch, ErrorTypeDimensionMismatch, CodeDimensionMismatch,
		fmt.Sprintf("model expects %d features, window has %d", expected, actual))
	return e.WithContext("expected", expected).WithContext("actual", actual)
}

// NewPersistenceError reports a failure to write or read a model artifact.
func NewPersistenceError(cause error, location string) *AppError {
	e := WrapError(cause, ErrorTypePersistence, CodeWriteFailed, "failed to persist model")
	return e.WithContext("location", location)
}

// NewModelReadError reports a model artifact that cannot be read or decoded.
func NewModelReadError(cause error, location string) *AppError {
	e := NewPersistenceError(cause, location)
	e.Code = CodeModelCorrupt
	e.Message = "failed to load model"
	return e
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
// It returns an empty ErrorType when err carries no AppError.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}
