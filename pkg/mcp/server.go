// Package mcp implements the device side of the Model Context Protocol:
// typed tool parameters, an append-only tool registry and a JSON-RPC 2.0
// dispatcher for initialize, tools/list and tools/call.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/worker"
)

// Responder delivers an encoded JSON-RPC response to the backend.
type Responder func(payload []byte) error

// Submitter accepts background tasks. *worker.Pool satisfies it.
type Submitter interface {
	TrySubmit(task worker.Task) error
}

// Server dispatches JSON-RPC requests against a Registry. Tool handlers run
// on the Submitter, never on the caller's goroutine, and several calls may be
// in flight at once. Responses are correlated only by id.
type Server struct {
	registry *Registry
	pool     Submitter
	info     ServerInfo
	logger   *slog.Logger

	mu       sync.Mutex
	respond  Responder
	inflight map[string]struct{}
}

// NewServer creates a dispatcher.
func NewServer(registry *Registry, pool Submitter, info ServerInfo, logger *slog.Logger) *Server {
	return &Server{
		registry: registry,
		pool:     pool,
		info:     info,
		logger:   log.Or(logger, "mcp"),
		inflight: make(map[string]struct{}),
	}
}

// OnResponse sets where responses are sent.
func (s *Server) OnResponse(fn Responder) {
	s.mu.Lock()
	s.respond = fn
	s.mu.Unlock()
}

// Registry returns the tool registry served.
func (s *Server) Registry() *Registry {
	return s.registry
}

// InFlight returns the number of tools/call requests awaiting a response.
func (s *Server) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Dispatch handles one raw JSON-RPC message. It returns once the request is
// answered or handed to the worker pool. A tool call runs under ctx and is
// also cancelled when the pool stops.
func (s *Server) Dispatch(ctx context.Context, payload []byte) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.replyError(nil, CodeParseError, "parse error: "+err.Error(), nil)
		return
	}
	if req.JSONRPC != JSONRPCVersion || req.Method == "" {
		if !req.IsNotification() {
			s.replyError(req.ID, CodeInvalidRequest, "invalid request", nil)
		}
		return
	}
	if req.IsNotification() {
		s.logger.Debug("notification ignored", "method", req.Method)
		return
	}

	switch req.Method {
	case "initialize":
		s.reply(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
		})
	case "tools/list":
		s.reply(req.ID, s.List())
	case "tools/call":
		s.handleCall(ctx, req)
	default:
		s.replyError(req.ID, CodeMethodNotFound, "method not found: "+req.Method, nil)
	}
}

// List builds the tools/list result.
func (s *Server) List() ListResult {
	tools := s.registry.Tools()
	out := ListResult{Tools: make([]ToolInfo, 0, len(tools))}
	for _, t := range tools {
		out.Tools = append(out.Tools, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema(),
		})
	}
	return out
}

// Prepare resolves and validates a call without executing it.
func (s *Server) Prepare(name string, args map[string]any) (*Tool, Values, error) {
	tool, ok := s.registry.Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown tool %s", ErrMethodNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	vals, err := tool.Properties.Validate(args)
	if err != nil {
		return nil, nil, err
	}
	return tool, vals, nil
}

// Execute runs a prepared call on the current goroutine, converting handler
// errors and panics into an isError result.
func (s *Server) Execute(ctx context.Context, tool *Tool, vals Values) (res *CallResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool panicked", "tool", tool.Name, "panic", r)
			res = TextResult(fmt.Sprintf("%v: %v", ErrHandlerFailure, r), true)
		}
	}()
	v, err := tool.Call(ctx, vals)
	if err != nil {
		s.logger.Warn("tool failed", "tool", tool.Name, "error", err)
		return TextResult(err.Error(), true)
	}
	return renderResult(v)
}

// Call validates and runs a tool on the caller's goroutine. It is used by
// local triggers such as the dashboard; remote calls go through Dispatch.
func (s *Server) Call(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	tool, vals, err := s.Prepare(name, args)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, tool, vals), nil
}

func (s *Server) handleCall(ctx context.Context, req Request) {
	var p callParams
	if err := json.Unmarshal(req.Params, &p); err != nil || p.Name == "" {
		s.replyError(req.ID, CodeInvalidParams, "tools/call requires a tool name", map[string]any{"param": "name"})
		return
	}

	args := map[string]any{}
	if raw := bytes.TrimSpace(p.Arguments); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			s.replyError(req.ID, CodeInvalidParams, "arguments must be an object", map[string]any{"param": "arguments"})
			return
		}
	}

	tool, vals, err := s.Prepare(p.Name, args)
	if err != nil {
		var pe *ParamError
		switch {
		case errors.As(err, &pe):
			s.replyError(req.ID, CodeInvalidParams, pe.Error(), map[string]any{"param": pe.Param})
		case errors.Is(err, ErrMethodNotFound):
			s.replyError(req.ID, CodeMethodNotFound, "unknown tool: "+p.Name, nil)
		default:
			s.replyError(req.ID, CodeInternalError, err.Error(), nil)
		}
		return
	}

	key := idKey(req.ID)
	s.mu.Lock()
	if _, busy := s.inflight[key]; busy {
		s.mu.Unlock()
		s.replyError(req.ID, CodeInvalidRequest, "duplicate request id", nil)
		return
	}
	s.inflight[key] = struct{}{}
	s.mu.Unlock()

	id := req.ID
	task := func(poolCtx context.Context) error {
		callCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(poolCtx, cancel)
		defer stop()

		res := s.Execute(callCtx, tool, vals)
		s.release(key)
		s.reply(id, res)
		return nil
	}
	if err := s.pool.TrySubmit(task); err != nil {
		s.release(key)
		s.logger.Warn("tool call rejected", "tool", tool.Name, "error", err)
		s.replyError(id, CodeInternalError, "device busy: "+err.Error(), nil)
	}
}

func (s *Server) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

func (s *Server) reply(id json.RawMessage, result any) {
	s.send(Response{JSONRPC: JSONRPCVersion, ID: normalizeID(id), Result: result})
}

func (s *Server) replyError(id json.RawMessage, code int, msg string, data any) {
	s.send(Response{
		JSONRPC: JSONRPCVersion,
		ID:      normalizeID(id),
		Error:   &RPCError{Code: code, Message: msg, Data: data},
	})
}

func (s *Server) send(resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		return
	}
	s.mu.Lock()
	fn := s.respond
	s.mu.Unlock()
	if fn == nil {
		s.logger.Warn("no responder, dropping response", "id", string(resp.ID))
		return
	}
	if err := fn(payload); err != nil {
		s.logger.Warn("send response", "id", string(resp.ID), "error", err)
	}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(id)) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func idKey(id json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, id); err != nil {
		return string(id)
	}
	return buf.String()
}

func renderResult(v any) *CallResult {
	switch x := v.(type) {
	case *CallResult:
		if x == nil {
			return TextResult("null", false)
		}
		return x
	case CallResult:
		return &x
	case string:
		return TextResult(x, false)
	case bool:
		return TextResult(strconv.FormatBool(x), false)
	case int:
		return TextResult(strconv.Itoa(x), false)
	case int64:
		return TextResult(strconv.FormatInt(x, 10), false)
	case float64:
		return TextResult(strconv.FormatFloat(x, 'f', -1, 64), false)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return TextResult(fmt.Sprintf("%v: encode result: %v", ErrHandlerFailure, err), true)
	}
	return TextResult(strings.TrimSpace(string(data)), false)
}
