package config

import (
	"fmt"
	"net"
	"strings"
)

// validateConfig reports every invalid value at once.
func validateConfig(config *Config) error {
	var validationErrors []string

	validationErrors = append(validationErrors, validateBridge(config)...)
	validationErrors = append(validationErrors, validateRender(config)...)
	validationErrors = append(validationErrors, validateWindow(config)...)
	validationErrors = append(validationErrors, validateLogging(config)...)

	if len(validationErrors) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(validationErrors, "\n  - "))
	}
	return nil
}

func validateBridge(config *Config) []string {
	var validationErrors []string
	if _, _, err := net.SplitHostPort(config.Bridge.Address); err != nil {
		validationErrors = append(validationErrors, fmt.Sprintf("bridge.address %q is not host:port", config.Bridge.Address))
	}
	if config.Bridge.ReadLimit < 0 {
		validationErrors = append(validationErrors, "bridge.read_limit must be non-negative")
	}
	if config.Bridge.WriteTimeout < 0 {
		validationErrors = append(validationErrors, "bridge.write_timeout must be non-negative")
	}
	return validationErrors
}

func validateRender(config *Config) []string {
	var validationErrors []string

	switch config.Render.PowerPreference {
	case "", "none", "low-power", "high-performance":
	default:
		validationErrors = append(validationErrors,
			fmt.Sprintf("render.power_preference must be one of none, low-power, high-performance (got %q)", config.Render.PowerPreference))
	}
	switch config.Render.PresentMode {
	case "", "fifo", "fifo-relaxed", "mailbox", "immediate":
	default:
		validationErrors = append(validationErrors,
			fmt.Sprintf("render.present_mode must be one of fifo, fifo-relaxed, mailbox, immediate (got %q)", config.Render.PresentMode))
	}

	if len(config.Render.Background) > 4 {
		validationErrors = append(validationErrors, "render.background takes at most 4 components")
	}
	for _, c := range config.Render.Background {
		if c < 0 || c > 1 {
			validationErrors = append(validationErrors, "render.background components must be between 0 and 1")
			break
		}
	}
	if config.Render.MaxSurfaceLoss < 0 {
		validationErrors = append(validationErrors, "render.max_surface_loss must be non-negative")
	}
	if config.Render.FPS < 0 || config.Render.FPS > 1000 {
		validationErrors = append(validationErrors, "render.fps must be between 0 and 1000")
	}
	return validationErrors
}

func validateWindow(config *Config) []string {
	var validationErrors []string
	if config.Window.Width < 0 || config.Window.Height < 0 {
		validationErrors = append(validationErrors, "window.width and window.height must be non-negative")
	}
	return validationErrors
}

func validateLogging(config *Config) []string {
	var validationErrors []string
	switch config.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		validationErrors = append(validationErrors,
			fmt.Sprintf("logging.level must be one of debug, info, warn, error (got %q)", config.Logging.Level))
	}
	switch config.Logging.Format {
	case "text", "json":
	default:
		validationErrors = append(validationErrors,
			fmt.Sprintf("logging.format must be text or json (got %q)", config.Logging.Format))
	}
	return validationErrors
}
