package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/overlay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd("1.2.3", "abc123")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	assert.Contains(t, out, "overlay 1.2.3")
	assert.Contains(t, out, "commit: abc123")
}

func TestRoutesCommand(t *testing.T) {
	out := execute(t, "routes")
	routes := strings.Fields(out)
	assert.Contains(t, routes, "/exit")
	assert.Contains(t, routes, "/fs/file/read")
	assert.Contains(t, routes, "/window/set-fullscreen")
	assert.IsIncreasing(t, routes)
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge:\n  address: 127.0.0.1:4000\nlogging:\n  level: warn\n"), 0o644))

	cmd := newRootCmd("dev", "none")
	require.NoError(t, cmd.ParseFlags([]string{"--address", "127.0.0.1:5000", "--software"}))

	_, cfg, err := loadConfig(cmd, flags{configFile: path})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5000", cfg.Bridge.Address)
	assert.True(t, cfg.Render.AllowSoftware)
	assert.Equal(t, "warn", cfg.Logging.Level, "unset flags keep file values")
	assert.True(t, cfg.Render.Readback, "unset flags keep defaults")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar

	logger := newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"}, &level)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	level.Set(slog.LevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}
