package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects an email and
	// password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired is returned when the presented token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnauthorized is returned when the presented token is not accepted.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput is returned for malformed or rejected request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAuthServiceUnavailable is returned when the auth service cannot be
	// reached or reports itself unhealthy.
	ErrAuthServiceUnavailable = errors.New("auth service unavailable")
	// ErrServerError is returned for any other backend failure.
	ErrServerError = errors.New("server error")
)

// Code is the numeric error code carried in backend error bodies.
type Code int

const (
	CodeUnauthorized       Code = 1001
	CodeTokenExpired       Code = 1002
	CodeInvalidInput       Code = 1003
	CodeInvalidCredentials Code = 1004
	CodeServiceUnavailable Code = 1005
	CodeServerError        Code = 1006
)

// Sentinel returns the sentinel error for c, or nil for unknown codes.
func (c Code) Sentinel() error {
	switch c {
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeTokenExpired:
		return ErrTokenExpired
	case CodeInvalidInput:
		return ErrInvalidInput
	case CodeInvalidCredentials:
		return ErrInvalidCredentials
	case CodeServiceUnavailable:
		return ErrAuthServiceUnavailable
	case CodeServerError:
		return ErrServerError
	default:
		return nil
	}
}

// CodeOf returns the code a server should send for err. Unknown errors map
// to CodeServerError.
func CodeOf(err error) Code {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrAuthServiceUnavailable):
		return CodeServiceUnavailable
	default:
		return CodeServerError
	}
}

// StatusOf returns the HTTP status a server should send for err.
func StatusOf(err error) int {
	switch CodeOf(err) {
	case CodeUnauthorized, CodeTokenExpired, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Error is a backend failure with its transport details.
type Error struct {
	// Status is the HTTP status, or 0 when no response was received.
	Status  int
	Code    Code
	Message string
	// Err is the sentinel this error unwraps to.
	Err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s (status %d, code %d)", e.Err, e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%v (status %d, code %d)", e.Err, e.Status, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError classifies a non-2xx response. The body code wins over the
// status when it is known.
func newError(status int, body ErrorBody) *Error {
	e := &Error{Status: status, Code: body.Code, Message: body.Message}
	if sentinel := body.Code.Sentinel(); sentinel != nil {
		e.Err = sentinel
		return e
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Err, e.Code = ErrUnauthorized, CodeUnauthorized
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Err, e.Code = ErrInvalidInput, CodeInvalidInput
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		e.Err, e.Code = ErrAuthServiceUnavailable, CodeServiceUnavailable
	default:
		e.Err, e.Code = ErrServerError, CodeServerError
	}
	return e
}

// IsSessionRejected reports whether err means the backend no longer accepts
// the current session.
func IsSessionRejected(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrTokenExpired)
}
