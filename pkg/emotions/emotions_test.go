package emotions

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBuiltIn(t *testing.T) {
	list, err := LoadBuiltIn()
	if err != nil {
		t.Fatalf("LoadBuiltIn failed: %v", err)
	}
	if len(list) < 20 {
		t.Errorf("Expected at least 20 built-in emotions, got %d", len(list))
	}
	seen := map[string]bool{}
	for _, e := range list {
		if seen[e.Name] {
			t.Errorf("duplicate built-in emotion %q", e.Name)
		}
		seen[e.Name] = true
	}
	if !seen[Fallback] {
		t.Errorf("built-in set lacks the fallback %q", Fallback)
	}
}

func TestRegistryLookup(t *testing.T) {
	r, err := NewBuiltInRegistry()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query string
		want  string
	}{
		{"happy", "happy"},
		{"HAPPY", "happy"},
		{" thinking ", "thinking"},
		{"laugh", "laughing"},
		{"wink", "winking"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e, err := r.Get(tt.query)
			if err != nil {
				t.Fatalf("Get(%q) error = %v", tt.query, err)
			}
			if e.Name != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.query, e.Name, tt.want)
			}
		})
	}
}

func TestRegistryUnknown(t *testing.T) {
	r, err := NewBuiltInRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get("ecstatic"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
	if e := r.Resolve("ecstatic"); e == nil || e.Name != Fallback {
		t.Errorf("Resolve(unknown) = %+v, want %s", e, Fallback)
	}
	if got := r.Emoji("happy"); got != "🙂" {
		t.Errorf("Emoji(happy) = %q", got)
	}
	if got := NewRegistry().Emoji("happy"); got != "" {
		t.Errorf("empty registry Emoji = %q, want empty", got)
	}
}

func TestRegisterValidates(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name string
		e    *Emotion
	}{
		{"empty name", &Emotion{Emoji: "🙂"}},
		{"no emoji", &Emotion{Name: "blank"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.e); !errors.Is(err, ErrInvalidEmotion) {
				t.Errorf("Register() error = %v, want ErrInvalidEmotion", err)
			}
		})
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d after rejected registrations", r.Count())
	}
}

func TestLoadFileOverrides(t *testing.T) {
	r, err := NewBuiltInRegistry()
	if err != nil {
		t.Fatal(err)
	}
	before := r.Count()

	path := filepath.Join(t.TempDir(), "custom.yaml")
	data := "- name: happy\n  emoji: \"😁\"\n- name: robot\n  emoji: \"🤖\"\n  aliases: [bot]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if r.Count() != before+1 {
		t.Errorf("Count() = %d, want %d", r.Count(), before+1)
	}
	if got := r.Emoji("happy"); got != "😁" {
		t.Errorf("overridden happy = %q", got)
	}
	if got := r.Emoji("bot"); got != "🤖" {
		t.Errorf("alias bot = %q", got)
	}
}

func TestLoadFileErrors(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("name: [unclosed"), 0o644)
	if err := r.LoadFile(path); !errors.Is(err, ErrInvalidEmotion) {
		t.Errorf("LoadFile(bad) error = %v, want ErrInvalidEmotion", err)
	}
}
