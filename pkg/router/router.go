// Package router classifies backend session messages and hands each one to
// the state machine, the display or the tool dispatcher.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/display"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
)

// Handler receives the messages that affect device state. Methods are called
// on the transport's read goroutine and must return quickly.
type Handler interface {
	OnSpeakingStarted()
	OnSpeakingStopped()
	OnGoodbye(sessionID string)
	OnSystemCommand(command string)
	OnAlert(alert protocol.AlertEvent)
}

// Dispatcher accepts JSON-RPC payloads. Dispatch must not wait for tool
// execution. *mcp.Server satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload []byte)
}

// Stats counts routed messages.
type Stats struct {
	Routed uint64 `json:"routed"`
	Errors uint64 `json:"errors"`
}

// Router routes raw inbound messages. Route is safe to call from one
// goroutine at a time; message order is the order of Route calls.
type Router struct {
	ctx        context.Context
	handler    Handler
	display    display.Display
	dispatcher Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	onError func(err error)

	routed   atomic.Uint64
	failures atomic.Uint64
}

// New creates a router. ctx is passed to the dispatcher for every tool call.
func New(ctx context.Context, h Handler, d display.Display, disp Dispatcher, logger *slog.Logger) *Router {
	if d == nil {
		d = display.Nop{}
	}
	return &Router{
		ctx:        ctx,
		handler:    h,
		display:    d,
		dispatcher: disp,
		logger:     log.Or(logger, "router"),
	}
}

// OnRoutingError registers a callback for messages that could not be routed.
func (r *Router) OnRoutingError(fn func(err error)) {
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
}

// Route decodes raw once and dispatches it. Malformed and unknown messages
// are reported through OnRoutingError and returned; they never panic.
func (r *Router) Route(raw []byte) error {
	in, err := protocol.ParseInbound(raw)
	if err != nil {
		return r.fail(err)
	}

	switch m := in.(type) {
	case protocol.TTSEvent:
		switch m.State {
		case protocol.StateStart:
			r.handler.OnSpeakingStarted()
		case protocol.StateStop:
			r.handler.OnSpeakingStopped()
		case protocol.StateSentenceStart:
			if m.Text != "" {
				r.display.SetChatMessage(display.RoleAssistant, m.Text)
			}
		}

	case protocol.STTEvent:
		r.display.SetChatMessage(display.RoleUser, m.Text)

	case protocol.EmotionEvent:
		r.display.SetEmotion(m.Emotion)

	case protocol.ToolCallEnvelope:
		if r.dispatcher == nil {
			return r.fail(fmt.Errorf("router: no dispatcher for mcp message"))
		}
		r.dispatcher.Dispatch(r.ctx, m.Payload)

	case protocol.SystemEvent:
		r.handler.OnSystemCommand(m.Command)

	case protocol.AlertEvent:
		r.handler.OnAlert(m)

	case protocol.GoodbyeEvent:
		r.handler.OnGoodbye(m.SessionID)

	case protocol.HelloEvent:
		r.logger.Debug("ignoring hello outside handshake", "session_id", m.SessionID)

	case protocol.Other:
		return r.fail(&protocol.MalformedError{
			Type:   m.Kind,
			Reason: "unrecognized type",
			Err:    protocol.ErrUnknownType,
		})
	}

	r.routed.Add(1)
	return nil
}

func (r *Router) fail(err error) error {
	r.failures.Add(1)
	r.logger.Warn("routing error", "error", err)
	r.mu.Lock()
	fn := r.onError
	r.mu.Unlock()
	if fn != nil {
		fn(err)
	}
	return err
}

// Stats returns routing counters.
func (r *Router) Stats() Stats {
	return Stats{Routed: r.routed.Load(), Errors: r.failures.Load()}
}
