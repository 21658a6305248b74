package overlay

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/overlay/internal/bridge"
	"github.com/gogpu/overlay/internal/config"
	"github.com/gogpu/overlay/internal/frameloop"
	"github.com/gogpu/overlay/internal/gpu"
	"github.com/gogpu/overlay/internal/handlers"
	"github.com/gogpu/wgpu"
)

// nopHandler is a slog.Handler that silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger for the runtime and all its sub-packages,
// including the wgpu backend. By default nothing is logged.
//
// Pass nil to restore the silent default.
//
// Log levels used:
//   - [slog.LevelDebug]: per-request and per-frame diagnostics
//   - [slog.LevelInfo]: lifecycle events (adapter selected, bridge listening)
//   - [slog.LevelWarn]: recoverable problems (surface lost, readback dropped)
//   - [slog.LevelError]: failures that stop a domain
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)

	gpu.SetLogger(l)
	frameloop.SetLogger(l)
	bridge.SetLogger(l)
	handlers.SetLogger(l)
	config.SetLogger(l)
	wgpu.SetLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger { return loggerPtr.Load() }
