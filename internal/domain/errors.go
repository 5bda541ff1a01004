package domain

import (
	"errors"
	"fmt"
)

// Error classes. Detailed errors wrap one of these; callers classify with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
)

type classified struct {
	class error
	msg   string
}

func (e *classified) Error() string { return e.msg }

func (e *classified) Unwrap() error { return e.class }

// Forbiddenf returns an ErrForbidden with a caller-facing message.
func Forbiddenf(format string, args ...any) error {
	return &classified{class: ErrForbidden, msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns an ErrNotFound with a caller-facing message.
func NotFoundf(format string, args ...any) error {
	return &classified{class: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Validationf returns an ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return &classified{class: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// Conflictf returns an ErrConflict with a caller-facing message.
func Conflictf(format string, args ...any) error {
	return &classified{class: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// Error codes sent to clients.
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// ErrorCode maps err onto a client error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return ErrCodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return ErrCodeForbidden
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrValidation):
		return ErrCodeBadRequest
	case errors.Is(err, ErrConflict):
		return ErrCodeConflict
	default:
		return ErrCodeInternalError
	}
}

// PublicMessage returns the message safe to show the caller. Unclassified
// errors are reported generically.
func PublicMessage(err error) string {
	if ErrorCode(err) == ErrCodeInternalError {
		return "internal error"
	}
	return err.Error()
}
