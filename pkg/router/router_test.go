package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/display"
	"github.com/teslashibe/go-voiceagent/pkg/mcp"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/worker"
)

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
}

func (h *recordingHandler) add(s string) {
	h.mu.Lock()
	h.calls = append(h.calls, s)
	h.mu.Unlock()
}

func (h *recordingHandler) OnSpeakingStarted()            { h.add("speaking_started") }
func (h *recordingHandler) OnSpeakingStopped()            { h.add("speaking_stopped") }
func (h *recordingHandler) OnGoodbye(id string)           { h.add("goodbye:" + id) }
func (h *recordingHandler) OnSystemCommand(cmd string)    { h.add("system:" + cmd) }
func (h *recordingHandler) OnAlert(a protocol.AlertEvent) { h.add("alert:" + a.Status) }

func (h *recordingHandler) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type recordingDispatcher struct {
	payloads []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, payload []byte) {
	d.payloads = append(d.payloads, string(payload))
}

func newTestRouter() (*Router, *recordingHandler, *display.Recorder, *recordingDispatcher) {
	h := &recordingHandler{}
	d := &display.Recorder{}
	disp := &recordingDispatcher{}
	return New(context.Background(), h, d, disp, log.Discard()), h, d, disp
}

func TestRouteStateMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"tts start", `{"type":"tts","state":"start"}`, "speaking_started"},
		{"tts stop", `{"type":"tts","state":"stop"}`, "speaking_stopped"},
		{"goodbye", `{"type":"goodbye","session_id":"s1"}`, "goodbye:s1"},
		{"system", `{"type":"system","command":"reboot"}`, "system:reboot"},
		{"alert", `{"type":"alert","status":"Warning","message":"low battery","emotion":"sad"}`, "alert:Warning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, h, d, _ := newTestRouter()
			if err := r.Route([]byte(tt.raw)); err != nil {
				t.Fatalf("Route() error = %v", err)
			}
			calls := h.Calls()
			if len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("handler calls = %v, want [%s]", calls, tt.want)
			}
			if n := len(d.Events()); n != 0 {
				t.Errorf("display received %d events", n)
			}
		})
	}
}

func TestRouteDisplayMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []display.Event
	}{
		{"assistant sentence", `{"type":"tts","state":"sentence_start","text":"Hello!"}`,
			[]display.Event{{Kind: "chat", Role: display.RoleAssistant, Text: "Hello!"}}},
		{"empty sentence", `{"type":"tts","state":"sentence_start"}`, nil},
		{"sentence end", `{"type":"tts","state":"sentence_end","text":"Hello!"}`, nil},
		{"user speech", `{"type":"stt","text":"turn it up"}`,
			[]display.Event{{Kind: "chat", Role: display.RoleUser, Text: "turn it up"}}},
		{"emotion", `{"type":"llm","emotion":"happy","text":"😀"}`,
			[]display.Event{{Kind: "emotion", Text: "happy"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, h, d, _ := newTestRouter()
			if err := r.Route([]byte(tt.raw)); err != nil {
				t.Fatalf("Route() error = %v", err)
			}
			got := d.Events()
			if len(got) != len(tt.want) {
				t.Fatalf("display events = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("event %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
			if n := len(h.Calls()); n != 0 {
				t.Errorf("display message changed state (%d handler calls)", n)
			}
		})
	}
}

func TestRouteForwardsPayloadVerbatim(t *testing.T) {
	r, _, _, disp := newTestRouter()
	payload := `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`
	if err := r.Route([]byte(`{"type":"mcp","payload":` + payload + `}`)); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if len(disp.payloads) != 1 || disp.payloads[0] != payload {
		t.Errorf("dispatched %q, want %q", disp.payloads, payload)
	}
}

func TestRouteErrors(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantField   string
		wantUnknown bool
	}{
		{"not json", `{{`, "", false},
		{"missing type", `{"text":"x"}`, "type", false},
		{"tts without state", `{"type":"tts"}`, "state", false},
		{"stt without text", `{"type":"stt"}`, "text", false},
		{"llm without emotion", `{"type":"llm","text":"x"}`, "emotion", false},
		{"mcp without payload", `{"type":"mcp"}`, "payload", false},
		{"unknown type", `{"type":"iot","commands":[]}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, h, d, disp := newTestRouter()
			var reported error
			r.OnRoutingError(func(err error) { reported = err })

			err := r.Route([]byte(tt.raw))
			if !errors.Is(err, protocol.ErrMalformedMessage) {
				t.Fatalf("Route() error = %v, want ErrMalformedMessage", err)
			}
			if reported != err {
				t.Errorf("OnRoutingError got %v", reported)
			}
			var me *protocol.MalformedError
			if errors.As(err, &me) && me.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", me.Field, tt.wantField)
			}
			if errors.Is(err, protocol.ErrUnknownType) != tt.wantUnknown {
				t.Errorf("ErrUnknownType match = %v, want %v", !tt.wantUnknown, tt.wantUnknown)
			}
			if len(h.Calls())+len(d.Events())+len(disp.payloads) != 0 {
				t.Error("malformed message reached a collaborator")
			}
			if s := r.Stats(); s.Errors != 1 || s.Routed != 0 {
				t.Errorf("Stats() = %+v", s)
			}
		})
	}
}

func TestRouteDoesNotWaitForTools(t *testing.T) {
	pool := worker.New(worker.Config{Workers: 1, QueueSize: 4}, log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Close()

	release := make(chan struct{})
	reg := mcp.NewRegistry()
	err := reg.RegisterTool("self.slow", "blocks until released", mcp.MustPropertyList(),
		func(ctx context.Context, _ mcp.Values) (any, error) {
			<-release
			return true, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	server := mcp.NewServer(reg, pool, mcp.ServerInfo{Name: "test", Version: "0"}, log.Discard())
	replies := make(chan []byte, 1)
	server.OnResponse(func(b []byte) error { replies <- b; return nil })

	h := &recordingHandler{}
	r := New(ctx, h, display.Nop{}, server, log.Discard())

	done := make(chan error, 1)
	go func() {
		done <- r.Route([]byte(`{"type":"mcp","payload":{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"self.slow","arguments":{}}}}`))
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Route() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Route blocked on tool execution")
	}

	if err := r.Route([]byte(`{"type":"tts","state":"start"}`)); err != nil {
		t.Fatal(err)
	}
	if calls := h.Calls(); len(calls) != 1 {
		t.Errorf("state message not routed while tool runs: %v", calls)
	}

	close(release)
	select {
	case <-replies:
	case <-time.After(2 * time.Second):
		t.Fatal("tool reply never sent")
	}
}
