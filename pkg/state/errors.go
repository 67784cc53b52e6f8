package state

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is wrapped by every TransitionError.
var ErrInvalidTransition = errors.New("state: invalid transition")

// TransitionError reports a rejected transition. The state is unchanged.
type TransitionError struct {
	From, To DeviceState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("state: invalid transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
