package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "not_found"
	ErrCodeConflict     ErrorCode = "conflict"
	ErrCodeValidation   ErrorCode = "validation"
	ErrCodeForeignKey   ErrorCode = "foreign_key"
	ErrCodeForbidden    ErrorCode = "forbidden"
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	ErrCodeRateLimited  ErrorCode = "rate_limited"
	ErrCodeInternal     ErrorCode = "internal"
	ErrCodeTimeout      ErrorCode = "timeout"
	ErrCodeCanceled     ErrorCode = "canceled"
)

// AppError is a categorised error that can be rendered to clients. It wraps an
// optional cause so errors.Is and errors.As keep working.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input for validation and conflict errors.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func newf(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg}
}

func newMsg(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func NotFound(message string) *AppError { return newMsg(ErrCodeNotFound, message) }

func NotFoundf(format string, args ...any) *AppError { return newf(ErrCodeNotFound, format, args...) }

func Conflict(message string) *AppError { return newMsg(ErrCodeConflict, message) }

func Conflictf(format string, args ...any) *AppError { return newf(ErrCodeConflict, format, args...) }

func Validation(message string) *AppError { return newMsg(ErrCodeValidation, message) }

func Validationf(format string, args ...any) *AppError {
	return newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field, message string) *AppError {
	e := newMsg(ErrCodeValidation, message)
	e.Field = field
	return e
}

func Forbidden(message string) *AppError { return newMsg(ErrCodeForbidden, message) }

func Unauthorized(message string) *AppError { return newMsg(ErrCodeUnauthorized, message) }

func RateLimited(message string) *AppError { return newMsg(ErrCodeRateLimited, message) }

func Internal(message string) *AppError { return newMsg(ErrCodeInternal, message) }

func Internalf(format string, args ...any) *AppError { return newf(ErrCodeInternal, format, args...) }

// Wrap wraps err with an AppError, preserving the cause. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// GetCode returns the code of the outermost AppError in err's chain.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the field of the outermost AppError in err's chain.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// Message returns the client-safe message of err, or fallback when err is not an AppError.
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

func isCode(err error, code ErrorCode) bool { return GetCode(err) == code }

func IsNotFound(err error) bool     { return isCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool     { return isCode(err, ErrCodeConflict) }
func IsValidation(err error) bool   { return isCode(err, ErrCodeValidation) }
func IsForeignKey(err error) bool   { return isCode(err, ErrCodeForeignKey) }
func IsForbidden(err error) bool    { return isCode(err, ErrCodeForbidden) }
func IsUnauthorized(err error) bool { return isCode(err, ErrCodeUnauthorized) }
func IsRateLimited(err error) bool  { return isCode(err, ErrCodeRateLimited) }
func IsInternal(err error) bool     { return isCode(err, ErrCodeInternal) }
func IsTimeout(err error) bool      { return isCode(err, ErrCodeTimeout) }
func IsCanceled(err error) bool     { return isCode(err, ErrCodeCanceled) }
