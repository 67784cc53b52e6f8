// Package board describes the hardware the agent runs on.
//
// Interfaces are small so that features depend only on what they use. A
// board implementation is selected by name from the plugins registered with
// Register, and contributes device tools to the MCP registry.
package board

import (
	"context"

	"github.com/teslashibe/go-voiceagent/pkg/mcp"
)

// SpeakerController controls the speaker volume, in percent.
type SpeakerController interface {
	SetVolume(percent int) error
	Volume() int
}

// ScreenController controls the screen.
type ScreenController interface {
	SetBrightness(percent int) error
	Brightness() int
	SetTheme(theme string) error
	Theme() string
}

// Rebooter restarts the device.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// Board is the composite interface every plugin implements.
type Board interface {
	Name() string
	SpeakerController
	ScreenController
	Rebooter
}

// Upgrader is implemented by boards that can install new firmware. The
// board reboots on its own once the image is installed.
type Upgrader interface {
	Upgrade(ctx context.Context, url string) error
}

// ToolProvider is implemented by boards that add tools of their own on top
// of the common set.
type ToolProvider interface {
	RegisterTools(r mcp.Registrar) error
}

// Status is the result of self.get_device_status.
type Status struct {
	Board        string        `json:"board"`
	State        string        `json:"state,omitempty"`
	AudioSpeaker SpeakerStatus `json:"audio_speaker"`
	Screen       ScreenStatus  `json:"screen"`
}

// SpeakerStatus is the speaker part of Status.
type SpeakerStatus struct {
	Volume int `json:"volume"`
}

// ScreenStatus is the screen part of Status.
type ScreenStatus struct {
	Brightness int    `json:"brightness"`
	Theme      string `json:"theme"`
}

// StatusOf reads the current status of b.
func StatusOf(b Board) Status {
	return Status{
		Board:        b.Name(),
		AudioSpeaker: SpeakerStatus{Volume: b.Volume()},
		Screen:       ScreenStatus{Brightness: b.Brightness(), Theme: b.Theme()},
	}
}
