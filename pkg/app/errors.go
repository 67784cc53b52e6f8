package app

import (
	"errors"

	"github.com/teslashibe/go-voiceagent/pkg/audio"
	"github.com/teslashibe/go-voiceagent/pkg/mcp"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/transport"
)

// ErrorKind is the device-level category of an error.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMalformedMessage
	KindMethodNotFound
	KindInvalidParams
	KindHandlerFailure
	KindTransportFailure
	KindHardwareFailure
	KindUnknown
)

var kindNames = [...]string{
	KindNone:             "none",
	KindMalformedMessage: "malformed_message",
	KindMethodNotFound:   "method_not_found",
	KindInvalidParams:    "invalid_params",
	KindHandlerFailure:   "handler_failure",
	KindTransportFailure: "transport_failure",
	KindHardwareFailure:  "hardware_failure",
	KindUnknown:          "unknown",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Fatal reports whether errors of this kind end in FatalError.
func (k ErrorKind) Fatal() bool {
	return k == KindHardwareFailure
}

// Classify maps err onto the error taxonomy. Hardware faults win over
// transport faults when an error wraps both.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, audio.ErrHardwareFailure):
		return KindHardwareFailure
	case errors.Is(err, transport.ErrTransportFailure):
		return KindTransportFailure
	case errors.Is(err, protocol.ErrMalformedMessage):
		return KindMalformedMessage
	case errors.Is(err, mcp.ErrMethodNotFound):
		return KindMethodNotFound
	case errors.Is(err, mcp.ErrInvalidParams):
		return KindInvalidParams
	case errors.Is(err, mcp.ErrHandlerFailure):
		return KindHandlerFailure
	}
	return KindUnknown
}
