package mcp

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Handler executes a tool with validated arguments. The returned value is
// rendered as text content; a returned error becomes an isError result.
type Handler func(ctx context.Context, args Values) (any, error)

// Tool is a named device capability.
type Tool struct {
	Name        string
	Description string
	Properties  PropertyList

	handler Handler
}

// Call runs the handler directly. Callers are expected to have validated args.
func (t *Tool) Call(ctx context.Context, args Values) (any, error) {
	return t.handler(ctx, args)
}

// Registrar is the registration surface handed to boards and features.
type Registrar interface {
	RegisterTool(name, description string, props PropertyList, handler Handler) error
}

var toolNameRe = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// Registry is an append-only, ordered set of tools.
type Registry struct {
	mu     sync.RWMutex
	tools  []*Tool
	byName map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Tool)}
}

// RegisterTool adds a tool. Names are unique for the registry's lifetime.
func (r *Registry) RegisterTool(name, description string, props PropertyList, handler Handler) error {
	if !toolNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidToolName, name)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	t := &Tool{
		Name:        name,
		Description: description,
		Properties:  props,
		handler:     handler,
	}
	r.tools = append(r.tools, t)
	r.byName[name] = t
	return nil
}

// Lookup finds a tool by name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Tools returns every tool in registration order.
func (r *Registry) Tools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
