package emotions

import "errors"

var (
	// ErrNotFound is returned when an emotion is not registered.
	ErrNotFound = errors.New("emotions: not found")

	// ErrInvalidEmotion is returned when an emotion definition is malformed.
	ErrInvalidEmotion = errors.New("emotions: invalid emotion")
)
