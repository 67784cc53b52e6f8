package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportFailure is wrapped by every error a Transport returns.
	ErrTransportFailure = errors.New("transport: failure")

	// ErrNotConnected is returned when sending without an open session.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrHandshakeTimeout is returned when the server hello does not arrive in time.
	ErrHandshakeTimeout = errors.New("transport: hello timeout")

	// ErrHandshakeRejected is returned when the server hello is unusable.
	ErrHandshakeRejected = errors.New("transport: hello rejected")

	// ErrUnsupportedVersion is returned for an unknown protocol version.
	ErrUnsupportedVersion = errors.New("transport: unsupported protocol version")
)

// ConnectionError describes a failed session operation.
type ConnectionError struct {
	Op  string // dial, hello, read, write
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrTransportFailure and the cause.
func (e *ConnectionError) Unwrap() []error {
	return []error{ErrTransportFailure, e.Err}
}
