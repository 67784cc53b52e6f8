package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTool is returned when a tool name is registered twice.
	ErrDuplicateTool = errors.New("mcp: tool already registered")

	// ErrInvalidToolName is returned for empty or malformed tool names.
	ErrInvalidToolName = errors.New("mcp: invalid tool name")

	// ErrDuplicateProperty is returned when a property list repeats a name.
	ErrDuplicateProperty = errors.New("mcp: duplicate property")

	// ErrInvalidDefault is returned when a default does not satisfy its property.
	ErrInvalidDefault = errors.New("mcp: invalid default value")

	// ErrInvalidRange is returned when integer bounds are inverted or exceed int32.
	ErrInvalidRange = errors.New("mcp: invalid integer range")

	// ErrNilHandler is returned when registering a tool without a handler.
	ErrNilHandler = errors.New("mcp: nil handler")

	// ErrInvalidParams is wrapped by every ParamError.
	ErrInvalidParams = errors.New("mcp: invalid params")

	// ErrMethodNotFound covers unknown methods and unknown tools.
	ErrMethodNotFound = errors.New("mcp: method not found")

	// ErrHandlerFailure is wrapped around errors and panics from tool handlers.
	ErrHandlerFailure = errors.New("mcp: handler failure")
)

// ParamError describes a single argument that failed validation.
type ParamError struct {
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("mcp: invalid param %q: %s", e.Param, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidParams.
func (e *ParamError) Unwrap() error {
	return ErrInvalidParams
}
