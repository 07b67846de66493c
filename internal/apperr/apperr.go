// Package apperr defines the error kinds surfaced by the service layer and
// their mapping to HTTP status codes at the boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeConflict     Code = "CONFLICT"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeInternal     Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Conflict(message string) error     { return New(CodeConflict, message) }
func Unauthorized(message string) error { return New(CodeUnauthorized, message) }
func NotFound(message string) error     { return New(CodeNotFound, message) }
func BadRequest(message string) error   { return New(CodeBadRequest, message) }
func Internal(message string) error     { return New(CodeInternal, message) }

// CodeOf extracts the code carried by err, or CodeInternal for plain errors.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Message returns the user-facing message for err. Plain errors get a generic
// message so internal detail never leaks to clients.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
