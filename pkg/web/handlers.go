package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceagent/pkg/hub"
	"github.com/teslashibe/go-voiceagent/pkg/mcp"
)

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Snapshot())
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(s.chat)
}

func (s *Server) handleListTools(c *fiber.Ctx) error {
	if s.tools == nil {
		return c.JSON(mcp.ListResult{Tools: []mcp.ToolInfo{}})
	}
	return c.JSON(s.tools.List())
}

// CallRequest is the body of POST /api/tools/:name.
type CallRequest struct {
	Args map[string]any `json:"args"`
}

func (s *Server) handleCallTool(c *fiber.Ctx) error {
	if s.tools == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no tools configured"})
	}
	name := c.Params("name")

	var req CallRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body: " + err.Error()})
		}
	}

	res, err := s.tools.Call(c.UserContext(), name, req.Args)
	if err != nil {
		var pe *mcp.ParamError
		switch {
		case errors.Is(err, mcp.ErrMethodNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.As(err, &pe):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "param": pe.Param})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}
	s.logger.Info("tool triggered from dashboard", "tool", name, "is_error", res.IsError)
	return c.JSON(fiber.Map{"tool": name, "result": res})
}

func (s *Server) handleWake(c *fiber.Ctx) error {
	s.mu.RLock()
	fn := s.onWake
	s.mu.RUnlock()
	if fn == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "wake not configured"})
	}
	go fn()
	return c.SendStatus(fiber.StatusAccepted)
}

// handleStatusWS sends a snapshot and the transcript, then live events.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.mu.RLock()
	chat := append([]ChatEntry(nil), s.chat...)
	snap := s.snap
	s.mu.RUnlock()

	initial := make([]hub.Message, 0, len(chat)+1)
	if msg, err := hub.NewEvent("snapshot", snap); err == nil {
		initial = append(initial, msg)
	}
	for _, e := range chat {
		if msg, err := hub.NewEvent("chat", e); err == nil {
			initial = append(initial, msg)
		}
	}
	hub.NewClient(s.hub, c, initial...).Run()
}
