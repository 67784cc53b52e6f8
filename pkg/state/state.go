// Package state owns the device's single DeviceState and serializes every
// transition through a total transition policy.
package state

import (
	"encoding/json"
	"fmt"
)

// DeviceState is the device's lifecycle state.
type DeviceState int

const (
	Unknown DeviceState = iota
	Starting
	WifiConfiguring
	Idle
	Connecting
	Listening
	Speaking
	Upgrading
	Activating
	AudioTesting
	FatalError
)

var stateNames = [...]string{
	Unknown:         "unknown",
	Starting:        "starting",
	WifiConfiguring: "wifi_configuring",
	Idle:            "idle",
	Connecting:      "connecting",
	Listening:       "listening",
	Speaking:        "speaking",
	Upgrading:       "upgrading",
	Activating:      "activating",
	AudioTesting:    "audio_testing",
	FatalError:      "fatal_error",
}

// All lists every state in declaration order.
func All() []DeviceState {
	out := make([]DeviceState, 0, len(stateNames))
	for i := range stateNames {
		out = append(out, DeviceState(i))
	}
	return out
}

func (s DeviceState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Valid reports whether s is a declared state.
func (s DeviceState) Valid() bool {
	return s >= 0 && int(s) < len(stateNames)
}

// Parse returns the state with the given name.
func Parse(name string) (DeviceState, error) {
	for i, n := range stateNames {
		if n == name {
			return DeviceState(i), nil
		}
	}
	return Unknown, fmt.Errorf("state: unknown state %q", name)
}

// MarshalJSON encodes the state as its name.
func (s DeviceState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *DeviceState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, err := Parse(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// administrative states suspend conversation and may be entered from any
// non-fatal state.
func (s DeviceState) administrative() bool {
	switch s {
	case WifiConfiguring, Upgrading, Activating, AudioTesting:
		return true
	}
	return false
}

// Conversational reports whether s is part of a conversation turn.
func (s DeviceState) Conversational() bool {
	switch s {
	case Connecting, Listening, Speaking:
		return true
	}
	return false
}

// Allowed is the transition policy. It is defined for every pair of states.
// FatalError can only be left through Machine.Restart.
func Allowed(from, to DeviceState) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if to == FatalError {
		return true
	}
	if from == FatalError {
		return false
	}
	if to.administrative() {
		return true
	}

	switch from {
	case Unknown:
		return to == Starting
	case Starting:
		return to == Idle
	case Idle:
		return to == Connecting || to == Listening || to == Starting
	case Connecting:
		return to == Listening || to == Idle
	case Listening:
		return to == Speaking || to == Idle || to == Connecting
	case Speaking:
		return to == Idle || to == Listening || to == Connecting
	case WifiConfiguring, Upgrading, Activating, AudioTesting:
		return to == Idle || to == Starting
	}
	return false
}
