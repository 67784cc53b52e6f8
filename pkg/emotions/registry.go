package emotions

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Fallback is the emotion shown for names nobody registered.
const Fallback = "neutral"

// Registry looks emotions up by name or alias, case-insensitively.
type Registry struct {
	mu       sync.RWMutex
	emotions map[string]*Emotion
	aliases  map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		emotions: make(map[string]*Emotion),
		aliases:  make(map[string]string),
	}
}

// NewBuiltInRegistry creates a registry holding the embedded emotions.
func NewBuiltInRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadBuiltIn(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadBuiltIn registers every embedded emotion.
func (r *Registry) LoadBuiltIn() error {
	list, err := LoadBuiltIn()
	if err != nil {
		return fmt.Errorf("emotions: load built-in: %w", err)
	}
	return r.registerAll(list)
}

// LoadFile registers every emotion in a YAML file, replacing same-named ones.
func (r *Registry) LoadFile(path string) error {
	list, err := LoadFromFile(path)
	if err != nil {
		return err
	}
	return r.registerAll(list)
}

func (r *Registry) registerAll(list []*Emotion) error {
	for _, e := range list {
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// Register adds or replaces an emotion.
func (r *Registry) Register(e *Emotion) error {
	if err := e.Validate(); err != nil {
		return err
	}
	key := strings.ToLower(e.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emotions[key] = e
	for _, a := range e.Aliases {
		r.aliases[strings.ToLower(a)] = key
	}
	return nil
}

// Get returns the emotion registered under name or one of its aliases.
func (r *Registry) Get(name string) (*Emotion, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.emotions[key]; ok {
		return e, nil
	}
	if target, ok := r.aliases[key]; ok {
		return r.emotions[target], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Resolve is Get falling back to the neutral emotion. It returns nil only
// when neither is registered.
func (r *Registry) Resolve(name string) *Emotion {
	if e, err := r.Get(name); err == nil {
		return e
	}
	e, _ := r.Get(Fallback)
	return e
}

// Emoji returns the emoji for name, or "" when unknown.
func (r *Registry) Emoji(name string) string {
	if e := r.Resolve(name); e != nil {
		return e.Emoji
	}
	return ""
}

// List returns all emotion names sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.emotions))
	for _, e := range r.emotions {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered emotions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.emotions)
}
