// Package display is the device's user-facing output: a status line, the
// chat transcript and the assistant's emotion.
package display

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-voiceagent/internal/log"
)

// Role identifies who said a chat line.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Display receives presentation updates. Implementations serialize their
// own output; calls may come from several goroutines.
type Display interface {
	SetStatus(status string)
	SetChatMessage(role Role, text string)
	SetEmotion(name string)
}

// LogDisplay writes every update to a logger. It is the display of
// headless boards.
type LogDisplay struct {
	logger *slog.Logger
}

// NewLogDisplay creates a LogDisplay.
func NewLogDisplay(logger *slog.Logger) *LogDisplay {
	return &LogDisplay{logger: log.Or(logger, "display")}
}

func (d *LogDisplay) SetStatus(status string) {
	d.logger.Info("status", "status", status)
}

func (d *LogDisplay) SetChatMessage(role Role, text string) {
	d.logger.Info("chat", "role", role, "text", text)
}

func (d *LogDisplay) SetEmotion(name string) {
	d.logger.Info("emotion", "emotion", name)
}

// Nop discards updates.
type Nop struct{}

func (Nop) SetStatus(string)            {}
func (Nop) SetChatMessage(Role, string) {}
func (Nop) SetEmotion(string)           {}

// Multi fans updates out to several displays in order.
type Multi struct {
	mu       sync.RWMutex
	displays []Display
}

// NewMulti creates a fan-out display. nil entries are skipped.
func NewMulti(displays ...Display) *Multi {
	m := &Multi{}
	for _, d := range displays {
		m.Add(d)
	}
	return m
}

// Add appends a display.
func (m *Multi) Add(d Display) {
	if d == nil {
		return
	}
	m.mu.Lock()
	m.displays = append(m.displays, d)
	m.mu.Unlock()
}

func (m *Multi) each(fn func(Display)) {
	m.mu.RLock()
	ds := m.displays
	m.mu.RUnlock()
	for _, d := range ds {
		fn(d)
	}
}

func (m *Multi) SetStatus(status string) {
	m.each(func(d Display) { d.SetStatus(status) })
}

func (m *Multi) SetChatMessage(role Role, text string) {
	m.each(func(d Display) { d.SetChatMessage(role, text) })
}

func (m *Multi) SetEmotion(name string) {
	m.each(func(d Display) { d.SetEmotion(name) })
}
