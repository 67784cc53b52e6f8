package ota

import (
	"strconv"
	"strings"
)

// Identity describes the device to the OTA server.
type Identity struct {
	DeviceID string
	ClientID string
	Board    string
	Version  string
}

// checkRequest is the body posted on every version check.
type checkRequest struct {
	Application struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"application"`
	Board struct {
		Type string `json:"type"`
	} `json:"board"`
	MACAddress string `json:"mac_address,omitempty"`
	UUID       string `json:"uuid"`
}

// Firmware is an advertised firmware image.
type Firmware struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Activation is a pending device activation.
type Activation struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Challenge string `json:"challenge"`
	TimeoutMs int    `json:"timeout_ms"`
}

// WebSocket carries session server settings pushed by the OTA server.
type WebSocket struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// ServerTime is the server clock at response time.
type ServerTime struct {
	Timestamp      int64 `json:"timestamp"`
	TimezoneOffset int   `json:"timezone_offset"`
}

// CheckResult is the server's answer to a version check. Absent sections
// are nil.
type CheckResult struct {
	Firmware   *Firmware   `json:"firmware,omitempty"`
	Activation *Activation `json:"activation,omitempty"`
	WebSocket  *WebSocket  `json:"websocket,omitempty"`
	ServerTime *ServerTime `json:"server_time,omitempty"`
}

// NeedsActivation reports whether the device must be activated first.
func (r *CheckResult) NeedsActivation() bool {
	return r.Activation != nil && r.Activation.Code != ""
}

// HasNewVersion reports whether the advertised firmware is newer than current.
func (r *CheckResult) HasNewVersion(current string) bool {
	return r.Firmware != nil && r.Firmware.URL != "" && CompareVersions(r.Firmware.Version, current) > 0
}

// CompareVersions compares dotted numeric versions such as "1.6.2" and
// returns -1, 0 or 1. A leading "v" is ignored; missing or non-numeric
// parts count as zero.
func CompareVersions(a, b string) int {
	pa := strings.Split(strings.TrimPrefix(a, "v"), ".")
	pb := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		x, y := part(pa, i), part(pb, i)
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
	}
	return 0
}

func part(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}
