package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/teslashibe/go-voiceagent/internal/log"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := NewMulti(a, nil, b)

	m.SetStatus("listening")
	m.SetChatMessage(RoleUser, "hello")
	m.SetEmotion("happy")

	for _, r := range []*Recorder{a, b} {
		ev := r.Events()
		if len(ev) != 3 {
			t.Fatalf("recorded %d events, want 3", len(ev))
		}
		if ev[1].Role != RoleUser || ev[1].Text != "hello" {
			t.Errorf("chat event = %+v", ev[1])
		}
		if r.LastStatus() != "listening" {
			t.Errorf("LastStatus() = %q", r.LastStatus())
		}
	}
}

func TestLogDisplay(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDisplay(log.New(&buf, "info", "text"))
	d.SetChatMessage(RoleAssistant, "hi there")
	if !strings.Contains(buf.String(), "role=assistant") {
		t.Errorf("log output = %q", buf.String())
	}
}
