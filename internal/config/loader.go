package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Manager owns the loaded configuration and its viper instance.
type Manager struct {
	config    *Config
	viper     *viper.Viper
	mu        sync.RWMutex
	callbacks []func(*Config)
	watching  bool
	fromFile  bool
}

// GetConfigDir returns $XDG_CONFIG_HOME/overlay, or ~/.config/overlay.
func GetConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "overlay"), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "overlay"), nil
}

// NewManager creates a manager. When file is empty the manager searches for
// config.{yaml,toml,json} in the config directory and the working directory.
func NewManager(file string) (*Manager, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		configDir, err := GetConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Manager{
		config: DefaultConfig(),
		viper:  v,
	}, nil
}

// Viper exposes the underlying instance so command-line flags can be bound.
func (m *Manager) Viper() *viper.Viper {
	return m.viper
}

// Load reads the configuration. A missing config file is not an error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setDefaults()

	if err := m.readConfigFile(); err != nil {
		return err
	}
	return m.unmarshalConfig()
}

func (m *Manager) setDefaults() {
	d := DefaultConfig()

	m.viper.SetDefault("app.name", d.App.Name)
	m.viper.SetDefault("app.version", d.App.Version)
	m.viper.SetDefault("app.dir", d.App.Dir)

	m.viper.SetDefault("bridge.address", d.Bridge.Address)
	m.viper.SetDefault("bridge.read_limit", d.Bridge.ReadLimit)
	m.viper.SetDefault("bridge.write_timeout", d.Bridge.WriteTimeout)

	m.viper.SetDefault("render.allow_software", d.Render.AllowSoftware)
	m.viper.SetDefault("render.power_preference", d.Render.PowerPreference)
	m.viper.SetDefault("render.present_mode", d.Render.PresentMode)
	m.viper.SetDefault("render.background", d.Render.Background)
	m.viper.SetDefault("render.draw_base", d.Render.DrawBase)
	m.viper.SetDefault("render.max_surface_loss", d.Render.MaxSurfaceLoss)
	m.viper.SetDefault("render.fps", d.Render.FPS)
	m.viper.SetDefault("render.readback", d.Render.Readback)

	m.viper.SetDefault("window.title", d.Window.Title)
	m.viper.SetDefault("window.width", d.Window.Width)
	m.viper.SetDefault("window.height", d.Window.Height)

	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
}

func (m *Manager) readConfigFile() error {
	err := m.viper.ReadInConfig()
	if err == nil {
		m.fromFile = true
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	// SetConfigFile with a missing path reports a plain fs error.
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

func (m *Manager) unmarshalConfig() error {
	config := &Config{}
	if err := m.viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	normalizeConfig(config)

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	m.config = config
	return nil
}

func normalizeConfig(config *Config) {
	config.Render.PowerPreference = strings.ToLower(strings.TrimSpace(config.Render.PowerPreference))
	config.Render.PresentMode = strings.ToLower(strings.TrimSpace(config.Render.PresentMode))
	config.Logging.Level = strings.ToLower(strings.TrimSpace(config.Logging.Level))
	config.Logging.Format = strings.ToLower(strings.TrimSpace(config.Logging.Format))
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	configCopy := *m.config
	configCopy.Render.Background = append([]float64(nil), m.config.Render.Background...)
	return &configCopy
}

// ConfigFileUsed returns the path of the loaded file, or "" when defaults
// and environment were used.
func (m *Manager) ConfigFileUsed() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.fromFile {
		return ""
	}
	return m.viper.ConfigFileUsed()
}
