// Package settings persists small device settings (speaker volume, screen
// brightness, theme) in a namespaced YAML file.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidKey is returned for an empty namespace or key.
var ErrInvalidKey = errors.New("settings: invalid key")

const currentVersion = 1

// fileData is the YAML layout of the settings file.
type fileData struct {
	Version   int                       `yaml:"version"`
	UpdatedAt string                    `yaml:"updated_at"`
	Settings  map[string]map[string]any `yaml:"settings"`
}

// Store holds every namespace. A store opened with an empty path lives only
// in memory.
type Store struct {
	path string

	mu   sync.RWMutex
	data map[string]map[string]any
}

// Open loads the store at path, creating its directory. A missing file is
// an empty store; it is written on the first change.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[string]map[string]any)}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("settings: create directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Memory returns a store that is never written to disk.
func Memory() *Store {
	s, _ := Open("")
	return s
}

// Path returns the backing file, or "" for a memory store.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("settings: read %s: %w", s.path, err)
	}
	var fd fileData
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return fmt.Errorf("settings: parse %s: %w", s.path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ns, kv := range fd.Settings {
		if kv != nil {
			s.data[ns] = kv
		}
	}
	return nil
}

// save writes the file through a temp file and rename. Callers hold mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	out, err := yaml.Marshal(fileData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Settings:  s.data,
	})
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}

func (s *Store) get(ns, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[ns][key]
	return v, ok
}

func (s *Store) set(ns, key string, v any) error {
	if ns == "" || key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.data[ns]
	if !ok {
		kv = make(map[string]any)
		s.data[ns] = kv
	}
	kv[key] = v
	return s.save()
}

func (s *Store) erase(ns, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.data[ns]
	if !ok {
		return nil
	}
	if _, ok := kv[key]; !ok {
		return nil
	}
	delete(kv, key)
	if len(kv) == 0 {
		delete(s.data, ns)
	}
	return s.save()
}

// Namespaces lists the namespaces holding at least one key.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for ns := range s.data {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Namespace returns a view of one namespace, e.g. "audio" or "display".
func (s *Store) Namespace(name string) *Settings {
	return &Settings{store: s, ns: name}
}
