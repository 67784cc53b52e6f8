package ota

import "errors"

var (
	// ErrNoURL is returned when no OTA URL is configured.
	ErrNoURL = errors.New("ota: no URL configured")

	// ErrActivationTimeout is returned when the server never confirms
	// activation within the configured attempts.
	ErrActivationTimeout = errors.New("ota: activation timed out")
)
