package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-voiceagent/internal/log"
)

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := New("test", log.Discard())
	for i := 0; i < 257; i++ {
		h.Broadcast(NewJSONMessage([]byte(`{}`)))
	}
	if h.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", h.Dropped())
	}
}

func TestNewEvent(t *testing.T) {
	msg, err := NewEvent("status", map[string]string{"state": "idle"})
	if err != nil {
		t.Fatal(err)
	}
	var ev struct {
		Kind string            `json:"kind"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != "status" || ev.Data["state"] != "idle" || msg.Type != JSONMessage {
		t.Errorf("event = %+v", ev)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHubFanOut(t *testing.T) {
	h := New("status", log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", fws.New(func(c *fws.Conn) {
		NewClient(h, c, NewJSONMessage([]byte(`{"kind":"snapshot"}`))).Run()
	}))
	go app.Listen(":18190")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18190/ws", nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer ws.Close()
		conns = append(conns, ws)
	}
	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastEvent("emotion", "happy"); err != nil {
		t.Fatal(err)
	}
	for i, ws := range conns {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, first, err := ws.ReadMessage()
		if err != nil || string(first) != `{"kind":"snapshot"}` {
			t.Fatalf("client %d first frame = %s, %v", i, first, err)
		}
		_, second, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		var ev Event
		json.Unmarshal(second, &ev)
		if ev.Kind != "emotion" || ev.Data != "happy" {
			t.Errorf("client %d event = %+v", i, ev)
		}
	}

	conns[0].Close()
	waitFor(t, "client removal", func() bool { return h.ClientCount() == 1 })

	cancel()
	waitFor(t, "hub stop", func() bool { return !h.IsRunning() })
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after stop", h.ClientCount())
	}
}
