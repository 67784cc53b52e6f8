package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when submitting to a pool that has been closed.
	ErrClosed = errors.New("worker: pool closed")

	// ErrQueueFull is returned by TrySubmit when the task queue has no room.
	ErrQueueFull = errors.New("worker: queue full")
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker: task panicked: %v", e.Value)
}
