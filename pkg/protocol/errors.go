package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is wrapped by every MalformedError.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrUnknownType marks a well-formed message with an unrecognized type.
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// MalformedError reports a message that could not be classified.
type MalformedError struct {
	Type   MessageType
	Field  string
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	msg := "protocol: malformed"
	if e.Type != "" {
		msg += " " + string(e.Type)
	}
	msg += " message"
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the sentinel and the underlying cause.
func (e *MalformedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedMessage, e.Err}
	}
	return []error{ErrMalformedMessage}
}
