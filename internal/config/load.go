package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-voiceagent/pkg/audioio"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VOICEAGENT_"

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when empty), then envFile (skipped when empty or missing), then
// the process environment. Missing identities are filled in and the result
// is validated.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return cfg, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}

	cfg.fillIdentity()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from VOICEAGENT_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("BOARD", &c.Device.Board)
	str("DEVICE_ID", &c.Device.DeviceID)
	str("CLIENT_ID", &c.Device.ClientID)
	str("SERVER_URL", &c.Server.URL)
	str("TOKEN", &c.Server.Token)
	str("OTA_URL", &c.OTA.URL)
	str("LISTENING_MODE", &c.Audio.ListeningMode)
	str("SETTINGS_PATH", &c.Settings.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	var backend string
	str("AUDIO_BACKEND", &backend)
	if backend != "" {
		c.Audio.Backend = audioio.Backend(backend)
	}

	return errors.Join(
		num("PROTOCOL_VERSION", &c.Server.ProtocolVersion),
		num("DASHBOARD_PORT", &c.Dashboard.Port),
		flag("DASHBOARD_ENABLED", &c.Dashboard.Enabled),
	)
}

func (c *Config) fillIdentity() {
	if c.Device.ClientID == "" {
		c.Device.ClientID = uuid.NewString()
	}
	if c.Device.DeviceID == "" {
		c.Device.DeviceID = hardwareAddr()
	}
	if c.Device.DeviceID == "" {
		c.Device.DeviceID = c.Device.ClientID
	}
}

// hardwareAddr returns the first non-loopback MAC address, lower case.
func hardwareAddr() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return strings.ToLower(iface.HardwareAddr.String())
	}
	return ""
}
