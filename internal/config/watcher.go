package config

import (
	"errors"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration whenever the config file changes and
// notifies OnConfigChange callbacks. An invalid edit is logged and the
// previous configuration stays in effect.
func (m *Manager) Watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watching {
		return nil
	}
	if !m.fromFile {
		return errors.New("no config file to watch")
	}

	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.mu.Lock()
		if err := m.unmarshalConfig(); err != nil {
			m.mu.Unlock()
			slogger().Warn("config: reload rejected", "file", e.Name, "error", err)
			return
		}
		slogger().Info("config: reloaded", "file", e.Name, "op", e.Op.String())
		m.notifyCallbacksLocked()
	})
	m.viper.WatchConfig()
	m.watching = true
	return nil
}

// OnConfigChange registers a callback run after every successful reload.
func (m *Manager) OnConfigChange(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// notifyCallbacksLocked must be called with m.mu held; it releases the lock
// before running callbacks.
func (m *Manager) notifyCallbacksLocked() {
	callbacks := make([]func(*Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	configCopy := *m.config
	configCopy.Render.Background = append([]float64(nil), m.config.Render.Background...)
	m.mu.Unlock()

	for _, callback := range callbacks {
		callback(&configCopy)
	}
}
