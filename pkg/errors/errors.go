// Package errors defines the sentinel error kinds shared by the index core and
// the command surface, plus a mapping from those kinds to HTTP status codes
// for the search server.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidConfig      = errors.New("invalid filter configuration")
	ErrIncompatibleFilter = errors.New("incompatible filter parameters")
	ErrDuplicateDocument  = errors.New("duplicate document")
	ErrCorruptData        = errors.New("corrupt dump data")
	ErrVersionMismatch    = fmt.Errorf("unsupported dump version: %w", ErrCorruptData)
	ErrInvalidSource      = errors.New("source must be a file or directory")
	ErrDumpNotFound       = errors.New("dump not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Is and As re-export the standard library helpers so callers importing this
// package under the name "errors" do not need a second import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDumpNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateDocument):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrCorruptData), errors.Is(err, ErrIncompatibleFilter):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
