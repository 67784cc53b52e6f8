// Package web serves the device dashboard: live state, chat transcript and
// emotion over a websocket, plus REST endpoints to list and trigger tools.
// The dashboard is a display.Display, so it receives the same updates as
// the device screen.
package web

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/display"
	"github.com/teslashibe/go-voiceagent/pkg/emotions"
	"github.com/teslashibe/go-voiceagent/pkg/hub"
	"github.com/teslashibe/go-voiceagent/pkg/mcp"
	"github.com/teslashibe/go-voiceagent/pkg/state"
)

//go:embed index.html
var indexHTML []byte

const maxChat = 100

// ToolService lists and runs tools. *mcp.Server satisfies it.
type ToolService interface {
	List() mcp.ListResult
	Call(ctx context.Context, name string, args map[string]any) (*mcp.CallResult, error)
}

// Config holds dashboard settings.
type Config struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig returns the dashboard defaults (disabled, port 8080).
func DefaultConfig() Config {
	return Config{Port: 8080}
}

// Snapshot is the device state shown on the dashboard.
type Snapshot struct {
	State     string    `json:"state"`
	Status    string    `json:"status"`
	Emotion   string    `json:"emotion"`
	Emoji     string    `json:"emoji"`
	SessionID string    `json:"session_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatEntry is one transcript line.
type ChatEntry struct {
	Time time.Time    `json:"time"`
	Role display.Role `json:"role"`
	Text string       `json:"text"`
}

// Server is the dashboard.
type Server struct {
	app      *fiber.App
	port     int
	logger   *slog.Logger
	hub      *hub.Hub
	tools    ToolService
	emotions *emotions.Registry

	mu     sync.RWMutex
	snap   Snapshot
	chat   []ChatEntry
	onWake func()
}

// NewServer creates the dashboard. tools and emo may be nil.
func NewServer(cfg Config, tools ToolService, emo *emotions.Registry, logger *slog.Logger) *Server {
	logger = log.Or(logger, "web")
	s := &Server{
		port:     cfg.Port,
		logger:   logger,
		hub:      hub.New("status", logger),
		tools:    tools,
		emotions: emo,
		snap:     Snapshot{State: state.Unknown.String(), Emotion: emotions.Fallback},
		chat:     make([]ChatEntry, 0, maxChat),
	}
	s.snap.Emoji = s.emoji(s.snap.Emotion)

	app := fiber.New(fiber.Config{
		AppName:               "Voice Agent Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/chat", s.handleChat)
	api.Get("/tools", s.handleListTools)
	api.Post("/tools/:name", s.handleCallTool)
	api.Post("/wake", s.handleWake)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the fiber app, for tests and for mounting extra routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// OnWake sets the action of the dashboard's talk button.
func (s *Server) OnWake(fn func()) {
	s.mu.Lock()
	s.onWake = fn
	s.mu.Unlock()
}

// Start runs the broadcast hub and serves in the background until ctx ends.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
	go func() {
		s.logger.Info("dashboard listening", "url", fmt.Sprintf("http://localhost:%d", s.port))
		if err := s.app.Listen(fmt.Sprintf(":%d", s.port)); err != nil {
			s.logger.Error("dashboard stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Snapshot returns the current dashboard state.
func (s *Server) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Server) update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.snap.UpdatedAt = time.Now()
	snap := s.snap
	s.mu.Unlock()
	_ = s.hub.BroadcastEvent("status", snap)
}

func (s *Server) emoji(name string) string {
	if s.emotions == nil {
		return ""
	}
	return s.emotions.Emoji(name)
}

// SetStatus implements display.Display.
func (s *Server) SetStatus(status string) {
	s.update(func(snap *Snapshot) { snap.Status = status })
}

// SetEmotion implements display.Display.
func (s *Server) SetEmotion(name string) {
	emoji := s.emoji(name)
	s.update(func(snap *Snapshot) {
		snap.Emotion = name
		snap.Emoji = emoji
	})
}

// SetChatMessage implements display.Display.
func (s *Server) SetChatMessage(role display.Role, text string) {
	entry := ChatEntry{Time: time.Now(), Role: role, Text: text}
	s.mu.Lock()
	s.chat = append(s.chat, entry)
	if len(s.chat) > maxChat {
		s.chat = s.chat[len(s.chat)-maxChat:]
	}
	s.mu.Unlock()
	_ = s.hub.BroadcastEvent("chat", entry)
}

// OnStateChange follows the device state machine. Register it with
// state.Machine.Subscribe.
func (s *Server) OnStateChange(from, to state.DeviceState) {
	s.update(func(snap *Snapshot) { snap.State = to.String() })
}

// SetSession shows the current session id ("" when disconnected).
func (s *Server) SetSession(id string) {
	s.update(func(snap *Snapshot) { snap.SessionID = id })
}

var _ display.Display = (*Server)(nil)
