// Package config loads the overlay runtime configuration from a config file,
// OVERLAY_* environment variables and built-in defaults, and reloads it when
// the file changes.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
)

// EnvPrefix prefixes every environment override, e.g. OVERLAY_BRIDGE_ADDRESS.
const EnvPrefix = "OVERLAY"

// Config is the complete runtime configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Render  RenderConfig  `mapstructure:"render"`
	Window  WindowConfig  `mapstructure:"window"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AppConfig identifies the application to the web layer.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	// Dir overrides the installation directory reported by /paths.
	Dir string `mapstructure:"dir"`
}

// BridgeConfig configures the command bridge listener.
type BridgeConfig struct {
	Address      string        `mapstructure:"address"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RenderConfig configures the frame pipeline.
type RenderConfig struct {
	AllowSoftware   bool   `mapstructure:"allow_software"`
	PowerPreference string `mapstructure:"power_preference"`
	PresentMode     string `mapstructure:"present_mode"`
	// Background is the RGBA clear color used when no layer is posted.
	Background     []float64 `mapstructure:"background"`
	DrawBase       bool      `mapstructure:"draw_base"`
	MaxSurfaceLoss int       `mapstructure:"max_surface_loss"`
	FPS            int       `mapstructure:"fps"`
	Readback       bool      `mapstructure:"readback"`
}

// WindowConfig is the initial main window state.
type WindowConfig struct {
	Title  string `mapstructure:"title"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "overlay",
			Version: "dev",
		},
		Bridge: BridgeConfig{
			Address:      "127.0.0.1:31753",
			ReadLimit:    16 << 20,
			WriteTimeout: 10 * time.Second,
		},
		Render: RenderConfig{
			PowerPreference: "high-performance",
			PresentMode:     "fifo",
			Background:      []float64{0, 0, 0, 0},
			DrawBase:        true,
			MaxSurfaceLoss:  3,
			FPS:             60,
			Readback:        true,
		},
		Window: WindowConfig{
			Title:  "Overlay",
			Width:  1280,
			Height: 720,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// PowerPreferenceValue maps PowerPreference to its GPU type.
// Unknown names select high performance.
func (r RenderConfig) PowerPreferenceValue() gputypes.PowerPreference {
	switch strings.ToLower(r.PowerPreference) {
	case "low-power", "low_power", "lowpower":
		return gputypes.PowerPreferenceLowPower
	case "none":
		return gputypes.PowerPreferenceNone
	default:
		return gputypes.PowerPreferenceHighPerformance
	}
}

// PresentModeValue maps PresentMode to its GPU type.
// Unknown names select fifo.
func (r RenderConfig) PresentModeValue() gputypes.PresentMode {
	switch strings.ToLower(r.PresentMode) {
	case "mailbox":
		return gputypes.PresentModeMailbox
	case "immediate":
		return gputypes.PresentModeImmediate
	case "fifo-relaxed", "fifo_relaxed":
		return gputypes.PresentModeFifoRelaxed
	default:
		return gputypes.PresentModeFifo
	}
}

// BackgroundColor returns Background as a color. Missing components are
// zero.
func (r RenderConfig) BackgroundColor() gputypes.Color {
	var c [4]float64
	copy(c[:], r.Background)
	return gputypes.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
}

// SlogLevel parses Level. Unknown levels select info.
func (l LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
