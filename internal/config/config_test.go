package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-voiceagent/pkg/protocol"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Audio.OutboundQueue != 40 || c.Audio.DecodeQueue != 40 || c.Audio.TaskQueue != 64 || c.Audio.EncodeWorkers != 2 {
		t.Errorf("audio defaults = %+v", c.Audio)
	}
	if c.Reconnect.InitialBackoff != time.Second || c.Reconnect.MaxBackoff != 30*time.Second || c.Reconnect.MaxAttempts != 5 {
		t.Errorf("reconnect defaults = %+v", c.Reconnect)
	}
	if c.Mode() != protocol.ModeAuto {
		t.Errorf("mode = %q", c.Mode())
	}
	if tw, ew := c.ToolWorkers(), c.EncodeWorkers(); tw.Workers != 2 || tw.QueueSize != 16 || ew.Workers != 2 || ew.QueueSize != 64 {
		t.Errorf("tool pool = %+v, encode pool = %+v", tw, ew)
	}
}

func TestLoadPrecedence(t *testing.T) {
	yamlPath := writeFile(t, "config.yaml", `
device:
  board: sim
  client_id: from-yaml
server:
  url: ws://yaml/ws
  token: yaml-token
  protocol_version: 2
  hello_timeout: 5s
audio:
  listening_mode: manual
reconnect:
  max_attempts: 9
dashboard:
  enabled: true
  port: 9000
`)
	envPath := writeFile(t, ".env", "VOICEAGENT_TOKEN=dotenv-token\nVOICEAGENT_SERVER_URL=ws://dotenv/ws\n")
	t.Setenv("VOICEAGENT_SERVER_URL", "ws://env/ws")
	t.Setenv("VOICEAGENT_DASHBOARD_PORT", "9100")

	c, err := Load(yamlPath, envPath)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name      string
		got, want any
	}{
		{"env beats dotenv", c.Server.URL, "ws://env/ws"},
		{"dotenv beats yaml", c.Server.Token, "dotenv-token"},
		{"yaml beats default", c.Server.ProtocolVersion, 2},
		{"yaml duration", c.Server.HelloTimeout, 5 * time.Second},
		{"yaml mode", c.Mode(), protocol.ModeManual},
		{"yaml reconnect", c.Reconnect.MaxAttempts, 9},
		{"default kept", c.Reconnect.MaxBackoff, 30 * time.Second},
		{"env int", c.Dashboard.Port, 9100},
		{"client id from yaml", c.Device.ClientID, "from-yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	tc := c.Transport()
	if tc.URL != "ws://env/ws" || tc.ProtocolVersion != 2 || tc.ClientID != "from-yaml" || tc.DeviceID == "" {
		t.Errorf("transport config = %+v", tc)
	}
}

func TestLoadFillsIdentity(t *testing.T) {
	c, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(c.Device.ClientID); err != nil {
		t.Errorf("client id %q is not a uuid", c.Device.ClientID)
	}
	if c.Device.DeviceID == "" {
		t.Error("device id not filled")
	}
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	if _, err := Load("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{"bad yaml", "server: [", nil, "parse"},
		{"bad protocol", "server:\n  protocol_version: 3\n", nil, "protocol_version"},
		{"bad mode", "audio:\n  listening_mode: sometimes\n", nil, "listening_mode"},
		{"bad backoff", "reconnect:\n  initial_backoff: 10s\n  max_backoff: 1s\n", nil, "backoff"},
		{"bad env int", "", map[string]string{"VOICEAGENT_PROTOCOL_VERSION": "two"}, "PROTOCOL_VERSION"},
		{"bad env bool", "", map[string]string{"VOICEAGENT_DASHBOARD_ENABLED": "maybe"}, "DASHBOARD_ENABLED"},
		{"empty board", "device:\n  board: \"\"\n", nil, "board"},
		{"no tool workers", "tools:\n  workers: 0\n", nil, "tools"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "config.yaml", tt.yaml)
			}
			_, err := Load(path, "")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml"), ""); err == nil {
		t.Error("expected error for missing config file")
	}
}
