package emotions

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/emotions.yaml
var builtinEmotions []byte

// LoadBuiltIn parses the embedded emotion set.
func LoadBuiltIn() ([]*Emotion, error) {
	return parseEmotions(builtinEmotions)
}

// LoadFromFile parses a YAML list of emotions from disk.
// This allows boards to add their own faces.
func LoadFromFile(path string) ([]*Emotion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("emotions: read %s: %w", path, err)
	}
	return parseEmotions(data)
}

func parseEmotions(data []byte) ([]*Emotion, error) {
	var list []*Emotion
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmotion, err)
	}
	for _, e := range list {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return list, nil
}
