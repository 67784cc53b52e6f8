package board

import (
	"context"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/mcp"
)

// ToolOptions customizes the common tools.
type ToolOptions struct {
	// DeviceState reports the orchestrator state in self.get_device_status.
	DeviceState func() string

	// OnChange is called after a setting tool succeeds, with the setting
	// key ("volume", "brightness" or "theme") and its new value.
	OnChange func(key string, value any)

	// RebootDelay lets the self.reboot reply reach the server before the
	// device goes down. Zero reboots immediately.
	RebootDelay time.Duration
}

// RegisterTools registers the tools every board offers, then the board's
// own tools if it is a ToolProvider.
func RegisterTools(r mcp.Registrar, b Board, opts ToolOptions) error {
	changed := func(key string, v any) {
		if opts.OnChange != nil {
			opts.OnChange(key, v)
		}
	}

	tools := []struct {
		name, desc string
		props      mcp.PropertyList
		handler    mcp.Handler
	}{
		{
			"self.get_device_status",
			"Provides the real-time information of the device, including the current status of the audio speaker and screen.\n" +
				"Use this tool for answering questions about the current condition of the device, or before changing a setting.",
			mcp.MustPropertyList(),
			func(ctx context.Context, _ mcp.Values) (any, error) {
				st := StatusOf(b)
				if opts.DeviceState != nil {
					st.State = opts.DeviceState()
				}
				return st, nil
			},
		},
		{
			"self.audio_speaker.set_volume",
			"Set the volume of the audio speaker. If the current volume is unknown, call self.get_device_status first.",
			mcp.MustPropertyList(mcp.IntRangeProperty("volume", 0, 100)),
			func(ctx context.Context, args mcp.Values) (any, error) {
				v := args.Int("volume")
				if err := b.SetVolume(v); err != nil {
					return nil, err
				}
				changed("volume", v)
				return true, nil
			},
		},
		{
			"self.screen.set_brightness",
			"Set the brightness of the screen.",
			mcp.MustPropertyList(mcp.IntRangeProperty("brightness", 0, 100)),
			func(ctx context.Context, args mcp.Values) (any, error) {
				v := args.Int("brightness")
				if err := b.SetBrightness(v); err != nil {
					return nil, err
				}
				changed("brightness", v)
				return true, nil
			},
		},
		{
			"self.screen.set_theme",
			"Set the theme of the screen. The theme can be `light` or `dark`.",
			mcp.MustPropertyList(mcp.StringProperty("theme")),
			func(ctx context.Context, args mcp.Values) (any, error) {
				v := args.String("theme")
				if err := b.SetTheme(v); err != nil {
					return nil, err
				}
				changed("theme", v)
				return true, nil
			},
		},
		{
			"self.reboot",
			"Reboot the device. Use only when the user explicitly asks for it.",
			mcp.MustPropertyList(),
			func(ctx context.Context, _ mcp.Values) (any, error) {
				reboot := func() { _ = b.Reboot(context.Background()) }
				if opts.RebootDelay <= 0 {
					reboot()
				} else {
					time.AfterFunc(opts.RebootDelay, reboot)
				}
				return true, nil
			},
		},
	}

	for _, t := range tools {
		if err := r.RegisterTool(t.name, t.desc, t.props, t.handler); err != nil {
			return err
		}
	}
	if p, ok := b.(ToolProvider); ok {
		return p.RegisterTools(r)
	}
	return nil
}
