package runtime

import (
	"errors"
)

// ErrSessionUsed is returned when a session is run more than once.
var ErrSessionUsed = errors.New("session already started")

// SessionErrorKind classifies the reason a stream ended early.
type SessionErrorKind int

const (
	// SessionErrorTransport indicates a connection, read or framing failure
	// (failed outcome).
	SessionErrorTransport SessionErrorKind = iota
	// SessionErrorCanceled indicates an explicit abort (aborted outcome).
	SessionErrorCanceled
)

// SessionError is returned by Session.Run when the stream did not complete.
type SessionError struct {
	Kind SessionErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	return e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsCanceledError returns true if the stream was aborted.
func IsCanceledError(err error) bool {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Kind == SessionErrorCanceled
	}
	return false
}

// IsTransportError returns true if the stream failed in transport.
func IsTransportError(err error) bool {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Kind == SessionErrorTransport
	}
	return false
}
