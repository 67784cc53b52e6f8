package audio

import "errors"

var (
	// ErrHardwareFailure wraps capture and playback device faults.
	ErrHardwareFailure = errors.New("audio: hardware failure")

	// ErrQueueClosed is returned by Pop once a queue is closed and empty.
	ErrQueueClosed = errors.New("audio: queue closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("audio: pipeline already started")

	// ErrMissingDependency is returned by New when a collaborator is nil.
	ErrMissingDependency = errors.New("audio: missing dependency")
)
