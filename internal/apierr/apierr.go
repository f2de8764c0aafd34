// Package apierr carries an HTTP status and a stable error code alongside the
// underlying cause, so services can decide how a failure surfaces to clients.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// InternalCode is what clients see for any failure with a 5xx status.
const InternalCode = "internal_error"

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Code != "" {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Internal wraps a storage or programming failure. The code follows the
// "operation.reason" convention and is only logged.
func Internal(operation, reason string, err error) *Error {
	return New(http.StatusInternalServerError, fmt.Sprintf("%s.%s", operation, reason), err)
}

func Validation(code string) *Error {
	return New(http.StatusBadRequest, code, nil)
}

func Unauthorized(code string) *Error {
	return New(http.StatusUnauthorized, code, nil)
}

func Forbidden(code string) *Error {
	return New(http.StatusForbidden, code, nil)
}

func NotFound(code string) *Error {
	return New(http.StatusNotFound, code, nil)
}

func Conflict(code string) *Error {
	return New(http.StatusConflict, code, nil)
}

// From finds the first *Error in err's chain. Anything else is reported as an
// internal failure.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return New(http.StatusInternalServerError, InternalCode, err)
}

// HTTPStatus reports the status to respond with for err.
func HTTPStatus(err error) int {
	apiErr := From(err)
	if apiErr == nil {
		return http.StatusOK
	}
	if apiErr.Status == 0 {
		return http.StatusInternalServerError
	}
	return apiErr.Status
}

// PublicCode reports the code safe to expose to clients.
func PublicCode(err error) string {
	apiErr := From(err)
	if apiErr == nil {
		return ""
	}
	if HTTPStatus(apiErr) >= http.StatusInternalServerError || apiErr.Code == "" {
		return InternalCode
	}
	return apiErr.Code
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
