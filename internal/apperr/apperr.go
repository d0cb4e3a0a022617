// Package apperr defines the error taxonomy shared by datapkg components and
// the mapping from those errors to process exit codes.
//
// Every recognized failure is one of four kinds:
//   - AuthError: expired or invalid credentials, 401 responses, refresh failures
//   - StoreError: missing local artifact, hash mismatch, filesystem failure
//   - RemoteError: any other non-2xx registry response
//   - ParseError: malformed package identifier
//
// Errors that are none of these (for example connection failures) are
// surfaced as-is and map to ExitUnhandled.
package apperr

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Exit codes for the datapkg CLI.
const (
	ExitSuccess   = 0 // command succeeded
	ExitFailure   = 1 // recognized command failure
	ExitUnhandled = 2 // connectivity or other unexpected failure
)

// Sentinel errors wrapped by StoreError.
var (
	ErrNotFound     = errors.New("package not found")
	ErrHashMismatch = errors.New("hash mismatch")
)

// AuthError reports a credential problem the user fixes by logging in again.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return format(e.Message, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// StoreError reports a local package store failure.
type StoreError struct {
	Message string
	Err     error
}

func (e *StoreError) Error() string { return format(e.Message, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// RemoteError reports a non-2xx registry response other than 401.
type RemoteError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string { return format(e.Message, e.Err) }
func (e *RemoteError) Unwrap() error { return e.Err }

// ParseError reports a malformed package identifier.
type ParseError struct {
	Input   string
	Message string
}

func (e *ParseError) Error() string { return e.Message }

// NewAuth returns an AuthError with the given message.
func NewAuth(format string, args ...any) *AuthError {
	return &AuthError{Message: fmt.Sprintf(format, args...)}
}

// WrapAuth returns an AuthError carrying err.
func WrapAuth(message string, err error) *AuthError {
	return &AuthError{Message: message, Err: err}
}

// NewStore returns a StoreError with the given message.
func NewStore(format string, args ...any) *StoreError {
	return &StoreError{Message: fmt.Sprintf(format, args...)}
}

// WrapStore returns a StoreError carrying err.
func WrapStore(message string, err error) *StoreError {
	return &StoreError{Message: message, Err: err}
}

// format joins message and err. A sentinel adds nothing to a message that
// already describes it.
func format(message string, err error) string {
	switch {
	case message == "" && err != nil:
		return err.Error()
	case err == nil, err == ErrNotFound, err == ErrHashMismatch:
		return message
	default:
		return fmt.Sprintf("%s: %v", message, err)
	}
}

// IsRecognized reports whether err belongs to the taxonomy above.
func IsRecognized(err error) bool {
	var (
		authErr   *AuthError
		storeErr  *StoreError
		remoteErr *RemoteError
		parseErr  *ParseError
	)
	return errors.As(err, &authErr) ||
		errors.As(err, &storeErr) ||
		errors.As(err, &remoteErr) ||
		errors.As(err, &parseErr)
}

// IsConnectivity reports whether err is a network-level failure such as a
// refused connection or DNS error.
func IsConnectivity(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ExitCode maps err to a process exit code.
// Taxonomy errors take precedence over connectivity: a timeout during
// download is wrapped in a RemoteError and exits 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case IsRecognized(err):
		return ExitFailure
	case IsConnectivity(err):
		return ExitUnhandled
	default:
		return ExitFailure
	}
}
