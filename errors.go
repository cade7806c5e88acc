package goAuthClient

import (
	"errors"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/permission"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects the email
	// and password pair.
	ErrInvalidCredentials = backend.ErrInvalidCredentials
	// ErrTokenExpired is returned when a refresh token is no longer accepted.
	ErrTokenExpired = backend.ErrTokenExpired
	// ErrUnauthorized is returned when the backend rejects the access token.
	ErrUnauthorized = backend.ErrUnauthorized
	// ErrInvalidInput is returned for missing or malformed login and
	// registration input.
	ErrInvalidInput = backend.ErrInvalidInput
	// ErrAuthServiceUnavailable is returned when the preflight health check
	// fails or the service cannot be reached.
	ErrAuthServiceUnavailable = backend.ErrAuthServiceUnavailable
	// ErrServerError covers every other backend failure, including
	// malformed or already-expired sessions in a success response.
	ErrServerError = backend.ErrServerError
	// ErrPermissionDenied is returned by the Require helpers.
	ErrPermissionDenied = permission.ErrPermissionDenied

	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrManagerClosed is returned after [Manager.Close].
	ErrManagerClosed = errors.New("auth manager closed")
	// ErrSessionPersist is returned when the session could not be written
	// to storage.
	ErrSessionPersist = errors.New("session persist failed")
)

// ErrorCode returns the numeric backend code carried by err, defaulting to
// the server error code.
func ErrorCode(err error) backend.Code {
	return backend.CodeOf(err)
}
