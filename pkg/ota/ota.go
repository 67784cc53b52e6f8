// Package ota talks to the OTA server: the version check run at startup
// and the activation handshake for devices not yet bound to an account.
package ota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-voiceagent/internal/httpc"
	"github.com/teslashibe/go-voiceagent/internal/log"
)

// Config holds OTA settings.
type Config struct {
	URL                string        `yaml:"url"`
	ActivationInterval time.Duration `yaml:"activation_interval"`
	ActivationAttempts int           `yaml:"activation_attempts"`
	Timeout            time.Duration `yaml:"timeout"`
}

// DefaultConfig returns OTA defaults. The URL is empty, which disables OTA.
func DefaultConfig() Config {
	return Config{
		ActivationInterval: 3 * time.Second,
		ActivationAttempts: 10,
		Timeout:            httpc.DefaultTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL != "" && !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("ota: url must be http(s): %q", c.URL)
	}
	if c.ActivationInterval <= 0 {
		return errors.New("ota: activation_interval must be positive")
	}
	if c.ActivationAttempts <= 0 {
		return errors.New("ota: activation_attempts must be positive")
	}
	return nil
}

// Client performs OTA requests for one device.
type Client struct {
	cfg    Config
	id     Identity
	http   *http.Client
	logger *slog.Logger
}

// New creates an OTA client.
func New(cfg Config, id Identity, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		id:     id,
		http:   httpc.NewClient(cfg.Timeout),
		logger: log.Or(logger, "ota"),
	}
}

// Enabled reports whether an OTA URL is configured.
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Device-Id", c.id.DeviceID)
	h.Set("Client-Id", c.id.ClientID)
	h.Set("User-Agent", c.id.Board+"/"+c.id.Version)
	h.Set("X-Request-Id", uuid.NewString())
	return h
}

// Check posts the device identity and returns what the server advertises.
func (c *Client) Check(ctx context.Context) (*CheckResult, error) {
	if !c.Enabled() {
		return nil, ErrNoURL
	}
	var req checkRequest
	req.Application.Name = "voiceagent"
	req.Application.Version = c.id.Version
	req.Board.Type = c.id.Board
	req.UUID = c.id.ClientID

	var res CheckResult
	if _, err := httpc.DoJSON(ctx, c.http, http.MethodPost, c.cfg.URL, c.header(), req, &res); err != nil {
		return nil, fmt.Errorf("ota: check: %w", err)
	}
	c.logger.Info("version check",
		"current", c.id.Version,
		"advertised", firmwareVersion(res.Firmware),
		"activation", res.NeedsActivation(),
	)
	return &res, nil
}

func firmwareVersion(f *Firmware) string {
	if f == nil {
		return ""
	}
	return f.Version
}

// Activate polls the activation endpoint until the server confirms it with
// 200. 202 means the user has not entered the code yet.
func (c *Client) Activate(ctx context.Context, act *Activation) error {
	if !c.Enabled() {
		return ErrNoURL
	}
	url := strings.TrimSuffix(c.cfg.URL, "/") + "/activate"
	body := map[string]string{"challenge": act.Challenge}

	for attempt := 1; attempt <= c.cfg.ActivationAttempts; attempt++ {
		code, err := httpc.DoJSON(ctx, c.http, http.MethodPost, url, c.header(), body, nil)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			c.logger.Warn("activation request failed", "attempt", attempt, "error", err)
		case code == http.StatusOK:
			c.logger.Info("device activated", "attempts", attempt)
			return nil
		default:
			c.logger.Debug("activation pending", "attempt", attempt, "status", code)
		}

		if attempt == c.cfg.ActivationAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ActivationInterval):
		}
	}
	return ErrActivationTimeout
}
