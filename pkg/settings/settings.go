package settings

import (
	"math"
	"sort"
)

// Settings is one namespace of a Store.
type Settings struct {
	store *Store
	ns    string
}

// Int returns key as an int, or def when unset or not a whole number.
func (s *Settings) Int(key string, def int) int {
	v, ok := s.store.get(s.ns, key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	}
	return def
}

// String returns key as a string, or def.
func (s *Settings) String(key, def string) string {
	if v, ok := s.store.get(s.ns, key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Bool returns key as a bool, or def.
func (s *Settings) Bool(key string, def bool) bool {
	if v, ok := s.store.get(s.ns, key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// SetInt stores an int and persists the store.
func (s *Settings) SetInt(key string, v int) error { return s.store.set(s.ns, key, v) }

// SetString stores a string and persists the store.
func (s *Settings) SetString(key, v string) error { return s.store.set(s.ns, key, v) }

// SetBool stores a bool and persists the store.
func (s *Settings) SetBool(key string, v bool) error { return s.store.set(s.ns, key, v) }

// Set stores an int, string or bool value.
func (s *Settings) Set(key string, v any) error { return s.store.set(s.ns, key, v) }

// Erase removes key.
func (s *Settings) Erase(key string) error { return s.store.erase(s.ns, key) }

// Keys lists the keys in the namespace, sorted.
func (s *Settings) Keys() []string {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	out := make([]string, 0, len(s.store.data[s.ns]))
	for k := range s.store.data[s.ns] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
