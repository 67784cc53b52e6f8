// Package emotions maps the emotion names sent by the assistant to what the
// device shows for them.
package emotions

import (
	"fmt"
	"strings"
)

// Emotion is one displayable assistant emotion.
type Emotion struct {
	// Name is the identifier the backend sends (e.g., "happy", "thinking").
	Name string `yaml:"name" json:"name"`

	// Emoji is shown on text and dashboard displays.
	Emoji string `yaml:"emoji" json:"emoji"`

	// Description explains when the emotion is used.
	Description string `yaml:"description" json:"description"`

	// Aliases are alternative names resolved to this emotion.
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Validate checks that the emotion can be registered.
func (e *Emotion) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEmotion)
	}
	if e.Emoji == "" {
		return fmt.Errorf("%w: %q has no emoji", ErrInvalidEmotion, e.Name)
	}
	return nil
}
