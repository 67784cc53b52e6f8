package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/worker"
)

// manualPool queues tasks until runAll is called.
type manualPool struct {
	mu    sync.Mutex
	tasks []worker.Task
	full  bool
}

func (p *manualPool) TrySubmit(task worker.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return worker.ErrQueueFull
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *manualPool) runAll() {
	p.mu.Lock()
	tasks := p.tasks
	p.tasks = nil
	p.mu.Unlock()
	for _, task := range tasks {
		_ = task(context.Background())
	}
}

type capture struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *capture) respond(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, append([]byte(nil), payload...))
	return nil
}

func (c *capture) all() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.msgs...)
}

func (c *capture) last(t *testing.T) Response {
	t.Helper()
	msgs := c.all()
	if len(msgs) == 0 {
		t.Fatal("no response sent")
	}
	var r Response
	if err := json.Unmarshal(msgs[len(msgs)-1], &r); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return r
}

func newTestServer(t *testing.T) (*Server, *manualPool, *capture, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	reg := NewRegistry()
	err := reg.RegisterTool("self.audio_speaker.set_volume", "Set the speaker volume.",
		MustPropertyList(IntRangeProperty("volume", 0, 100)),
		func(ctx context.Context, args Values) (any, error) {
			calls.Add(1)
			return true, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	_ = reg.RegisterTool("self.fail", "Always fails.", PropertyList{},
		func(context.Context, Values) (any, error) { return nil, errors.New("speaker offline") })
	_ = reg.RegisterTool("self.panic", "Always panics.", PropertyList{},
		func(context.Context, Values) (any, error) { panic("codec fault") })
	_ = reg.RegisterTool("self.status", "Status.", PropertyList{},
		func(context.Context, Values) (any, error) { return map[string]int{"volume": 7}, nil })

	pool := &manualPool{}
	c := &capture{}
	s := NewServer(reg, pool, ServerInfo{Name: "test", Version: "1.0"}, log.Discard())
	s.OnResponse(c.respond)
	return s, pool, c, calls
}

func TestToolsCallSuccessWireFormat(t *testing.T) {
	s, pool, c, calls := newTestServer(t)
	s.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.audio_speaker.set_volume","arguments":{"volume":50}},"id":2}`))

	if len(c.all()) != 0 {
		t.Fatal("response sent before the handler ran")
	}
	if s.InFlight() != 1 {
		t.Errorf("InFlight = %d, want 1", s.InFlight())
	}
	pool.runAll()

	want := `{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"text","text":"true"}],"isError":false}}`
	if got := string(c.all()[0]); got != want {
		t.Errorf("response =\n%s\nwant\n%s", got, want)
	}
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d", calls.Load())
	}
	if s.InFlight() != 0 {
		t.Errorf("InFlight after reply = %d", s.InFlight())
	}
}

func TestToolsCallOutOfRange(t *testing.T) {
	s, pool, c, calls := newTestServer(t)
	for _, v := range []string{"150", "-1", "101"} {
		s.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.audio_speaker.set_volume","arguments":{"volume":`+v+`}},"id":3}`))
		pool.runAll()

		r := c.last(t)
		if r.Error == nil || r.Error.Code != CodeInvalidParams {
			t.Fatalf("volume=%s: expected InvalidParams, got %+v", v, r)
		}
		data, _ := r.Error.Data.(map[string]any)
		if data["param"] != "volume" {
			t.Errorf("volume=%s: error data = %v, want param volume", v, r.Error.Data)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("handler invoked %d times on invalid input", calls.Load())
	}
}

func TestDispatchErrors(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode int
	}{
		{"parse error", `{not json`, CodeParseError},
		{"missing version", `{"method":"tools/list","id":1}`, CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"resources/list","id":1}`, CodeMethodNotFound},
		{"unknown tool", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.nope"},"id":1}`, CodeMethodNotFound},
		{"missing name", `{"jsonrpc":"2.0","method":"tools/call","params":{},"id":1}`, CodeInvalidParams},
		{"arguments not object", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.status","arguments":[1]},"id":1}`, CodeInvalidParams},
		{"extra argument", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.status","arguments":{"x":1}},"id":1}`, CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, c, _ := newTestServer(t)
			s.Dispatch(context.Background(), []byte(tt.payload))
			r := c.last(t)
			if r.Error == nil || r.Error.Code != tt.wantCode {
				t.Errorf("got %+v, want code %d", r.Error, tt.wantCode)
			}
		})
	}
}

func TestNotificationsIgnored(t *testing.T) {
	s, _, c, _ := newTestServer(t)
	s.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if n := len(c.all()); n != 0 {
		t.Errorf("notification produced %d responses", n)
	}
}

func TestHandlerFailureIsResult(t *testing.T) {
	tests := []struct {
		tool string
		text string
	}{
		{"self.fail", "speaker offline"},
		{"self.panic", "mcp: handler failure: codec fault"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			s, pool, c, _ := newTestServer(t)
			s.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"`+tt.tool+`"},"id":"abc"}`))
			pool.runAll()

			var r struct {
				ID     string     `json:"id"`
				Result CallResult `json:"result"`
				Error  *RPCError  `json:"error"`
			}
			if err := json.Unmarshal(c.all()[0], &r); err != nil {
				t.Fatal(err)
			}
			if r.Error != nil {
				t.Fatalf("handler failure escalated to RPC error: %+v", r.Error)
			}
			if r.ID != "abc" || !r.Result.IsError || r.Result.Content[0].Text != tt.text {
				t.Errorf("got %+v", r)
			}
		})
	}
}

func TestStructuredResultIsJSONText(t *testing.T) {
	s, pool, c, _ := newTestServer(t)
	s.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.status","arguments":{}},"id":9}`))
	pool.runAll()
	var r struct {
		Result CallResult `json:"result"`
	}
	_ = json.Unmarshal(c.all()[0], &r)
	if r.Result.Content[0].Text != `{"volume":7}` {
		t.Errorf("text = %q", r.Result.Content[0].Text)
	}
}

func TestDuplicateInFlightID(t *testing.T) {
	s, pool, c, calls := newTestServer(t)
	call := []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.audio_speaker.set_volume","arguments":{"volume":10}},"id":5}`)

	s.Dispatch(context.Background(), call)
	s.Dispatch(context.Background(), call)
	r := c.last(t)
	if r.Error == nil || r.Error.Code != CodeInvalidRequest {
		t.Fatalf("duplicate id accepted: %+v", r)
	}

	pool.runAll()
	if calls.Load() != 1 {
		t.Fatalf("handler calls = %d, want 1", calls.Load())
	}

	// Once answered, the id may be reused.
	s.Dispatch(context.Background(), call)
	pool.runAll()
	if r := c.last(t); r.Error != nil {
		t.Errorf("reused id rejected: %+v", r.Error)
	}
}

func TestPoolFullReportsBusy(t *testing.T) {
	s, pool, c, _ := newTestServer(t)
	pool.full = true
	s.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.status"},"id":1}`))
	r := c.last(t)
	if r.Error == nil || r.Error.Code != CodeInternalError {
		t.Errorf("got %+v", r)
	}
	if s.InFlight() != 0 {
		t.Error("rejected call left an in-flight id")
	}
}

func TestInitialize(t *testing.T) {
	s, _, c, _ := newTestServer(t)
	s.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"initialize","params":{"capabilities":{}},"id":1}`))
	var r struct {
		Result initializeResult `json:"result"`
	}
	if err := json.Unmarshal(c.all()[0], &r); err != nil {
		t.Fatal(err)
	}
	if r.Result.ProtocolVersion != ProtocolVersion || r.Result.ServerInfo.Name != "test" {
		t.Errorf("got %+v", r.Result)
	}
}

// Every tool advertised by tools/list accepts arguments built from its own
// advertised schema.
func TestListThenCallConsistency(t *testing.T) {
	s, pool, c, _ := newTestServer(t)
	s.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))

	var list struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				InputSchema struct {
					Required   []string `json:"required"`
					Properties map[string]struct {
						Type    string   `json:"type"`
						Minimum *float64 `json:"minimum"`
						Maximum *float64 `json:"maximum"`
					} `json:"properties"`
				} `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(c.all()[0], &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Result.Tools) != 4 {
		t.Fatalf("listed %d tools, want 4", len(list.Result.Tools))
	}

	for i, tool := range list.Result.Tools {
		args := map[string]any{}
		for _, name := range tool.InputSchema.Required {
			p := tool.InputSchema.Properties[name]
			switch p.Type {
			case "integer":
				v := 0.0
				if p.Minimum != nil && p.Maximum != nil {
					v = (*p.Minimum + *p.Maximum) / 2
				}
				args[name] = int(v)
			case "string":
				args[name] = "x"
			case "boolean":
				args[name] = true
			}
		}
		params, _ := json.Marshal(map[string]any{"name": tool.Name, "arguments": args})
		req, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": "tools/call", "params": json.RawMessage(params), "id": 100 + i})
		s.Dispatch(context.Background(), req)
		pool.runAll()
		if r := c.last(t); r.Error != nil && r.Error.Code == CodeInvalidParams {
			t.Errorf("%s: advertised schema rejected its own arguments: %+v", tool.Name, r.Error)
		}
	}
}

func TestConcurrentCallsOnWorkerPool(t *testing.T) {
	reg := NewRegistry()
	release := make(chan struct{})
	var started atomic.Int32
	_ = reg.RegisterTool("self.slow", "", PropertyList{}, func(ctx context.Context, _ Values) (any, error) {
		started.Add(1)
		<-release
		return "done", nil
	})

	pool := worker.New(worker.Config{Workers: 2, QueueSize: 4}, log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Close()

	c := &capture{}
	s := NewServer(reg, pool, ServerInfo{}, log.Discard())
	s.OnResponse(c.respond)

	s.Dispatch(ctx, []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.slow"},"id":1}`))
	s.Dispatch(ctx, []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.slow"},"id":2}`))

	deadline := time.Now().Add(time.Second)
	for started.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if started.Load() != 2 {
		t.Fatalf("calls were serialized: %d started", started.Load())
	}
	close(release)

	deadline = time.Now().Add(time.Second)
	for len(c.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(c.all()) != 2 {
		t.Fatalf("got %d responses, want 2", len(c.all()))
	}
}

func TestCallRunsSynchronously(t *testing.T) {
	s, pool, c, calls := newTestServer(t)

	res, err := s.Call(context.Background(), "self.audio_speaker.set_volume", map[string]any{"volume": float64(30)})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if res.IsError || res.Content[0].Text != "true" || calls.Load() != 1 {
		t.Errorf("Call() = %+v, calls = %d", res, calls.Load())
	}
	if len(pool.tasks) != 0 || len(c.all()) != 0 {
		t.Error("Call should not use the pool or the responder")
	}

	if _, err := s.Call(context.Background(), "self.nope", nil); !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("unknown tool error = %v", err)
	}
	_, err = s.Call(context.Background(), "self.audio_speaker.set_volume", map[string]any{"volume": 101})
	var pe *ParamError
	if !errors.As(err, &pe) || pe.Param != "volume" {
		t.Errorf("out of range error = %v", err)
	}
}

// An unbounded integer advertises the int32 limits it enforces, and a call at
// each advertised limit is accepted while one past it is rejected.
func TestUnboundedIntegerLimits(t *testing.T) {
	reg := NewRegistry()
	var got atomic.Int64
	err := reg.RegisterTool("self.seek", "Seek.", MustPropertyList(IntProperty("offset")),
		func(_ context.Context, args Values) (any, error) {
			got.Store(int64(args.Int("offset")))
			return true, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	pool := &manualPool{}
	c := &capture{}
	s := NewServer(reg, pool, ServerInfo{}, log.Discard())
	s.OnResponse(c.respond)

	s.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	var list struct {
		Result struct {
			Tools []struct {
				InputSchema struct {
					Properties map[string]struct {
						Minimum *float64 `json:"minimum"`
						Maximum *float64 `json:"maximum"`
					} `json:"properties"`
				} `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(c.all()[0], &list); err != nil {
		t.Fatal(err)
	}
	offset := list.Result.Tools[0].InputSchema.Properties["offset"]
	if offset.Minimum == nil || offset.Maximum == nil {
		t.Fatalf("unbounded integer advertised no limits: %s", c.all()[0])
	}
	lo, hi := int64(*offset.Minimum), int64(*offset.Maximum)
	if lo != math.MinInt32 || hi != math.MaxInt32 {
		t.Errorf("limits = [%d, %d], want int32", lo, hi)
	}

	call := func(id int, v int64) Response {
		req := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.seek","arguments":{"offset":%d}},"id":%d}`, v, id)
		s.Dispatch(context.Background(), []byte(req))
		pool.runAll()
		return c.last(t)
	}

	tests := []struct {
		name    string
		value   int64
		wantErr bool
	}{
		{"advertised maximum", hi, false},
		{"advertised minimum", lo, false},
		{"past maximum", hi + 1, true},
		{"past minimum", lo - 1, true},
		{"beyond int32", 3000000000, true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := call(10+i, tt.value)
			if tt.wantErr {
				if r.Error == nil || r.Error.Code != CodeInvalidParams {
					t.Errorf("offset %d: got %+v, want invalid params", tt.value, r)
				}
				return
			}
			if r.Error != nil {
				t.Fatalf("offset %d rejected: %+v", tt.value, r.Error)
			}
			if got.Load() != tt.value {
				t.Errorf("handler saw %d, want %d", got.Load(), tt.value)
			}
		})
	}
}

func TestCallRunsUnderDispatchContext(t *testing.T) {
	type key struct{}
	reg := NewRegistry()
	seen := make(chan any, 1)
	_ = reg.RegisterTool("self.ctx", "", PropertyList{}, func(ctx context.Context, _ Values) (any, error) {
		seen <- ctx.Value(key{})
		return nil, ctx.Err()
	})
	pool := &manualPool{}
	c := &capture{}
	s := NewServer(reg, pool, ServerInfo{}, log.Discard())
	s.OnResponse(c.respond)

	ctx := context.WithValue(context.Background(), key{}, "session")
	s.Dispatch(ctx, []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.ctx"},"id":1}`))
	pool.runAll()
	if v := <-seen; v != "session" {
		t.Errorf("handler context value = %v, want session", v)
	}
	if r := c.last(t); r.Error != nil {
		t.Errorf("got %+v", r)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	s.Dispatch(cancelled, []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"self.ctx"},"id":2}`))
	pool.runAll()
	<-seen
	raw := c.all()[len(c.all())-1]
	var r struct {
		Result CallResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		t.Fatal(err)
	}
	if !r.Result.IsError {
		t.Errorf("call under a cancelled context should fail: %s", raw)
	}
}
