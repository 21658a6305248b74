package overlay

import (
	"log/slog"
	"net"

	"github.com/gogpu/overlay/internal/config"
	"github.com/gogpu/overlay/internal/frameloop"
	"github.com/gogpu/overlay/internal/gpu"
	"github.com/gogpu/overlay/internal/handlers"
	"github.com/gogpu/overlay/internal/overlaysdk"
	"github.com/spf13/afero"
)

// Option configures a Runtime during creation.
//
// Example:
//
//	rt := overlay.New(cfg,
//	    overlay.WithWindowHandle(handle),
//	    overlay.WithFrameSink(sink),
//	)
type Option func(*options)

type options struct {
	handle   gpu.WindowHandle
	noRender bool
	listener net.Listener
	sink     frameloop.Sink
	fs       afero.Fs
	launcher handlers.Launcher
	sdk      overlaysdk.Service
	exit     func(code int)
	manager  *config.Manager
	level    *slog.LevelVar
}

func defaultOptions() options {
	return options{
		launcher: handlers.SystemLauncher{},
	}
}

// WithWindowHandle renders into the native window identified by h. Without
// it the runtime renders offscreen.
func WithWindowHandle(h gpu.WindowHandle) Option {
	return func(o *options) {
		o.handle = h
	}
}

// WithoutRender runs only the command bridge. /engine then reports no
// adapter.
func WithoutRender() Option {
	return func(o *options) {
		o.noRender = true
	}
}

// WithListener serves the bridge on ln instead of the configured address.
func WithListener(ln net.Listener) Option {
	return func(o *options) {
		o.listener = ln
	}
}

// WithFrameSink delivers captured frames to s instead of the runtime's
// channel. Frames then returns nil.
func WithFrameSink(s frameloop.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithFS sets the filesystem used by the /fs routes.
func WithFS(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithLauncher sets how /open and /show-in-explorer reach the desktop.
func WithLauncher(l handlers.Launcher) Option {
	return func(o *options) {
		o.launcher = l
	}
}

// WithSDK sets the overlay SDK service behind /steam/raw.
func WithSDK(s overlaysdk.Service) Option {
	return func(o *options) {
		o.sdk = s
	}
}

// WithExit replaces the default /exit behavior, which stops Run and records
// the exit code.
func WithExit(fn func(code int)) Option {
	return func(o *options) {
		o.exit = fn
	}
}

// WithConfigManager applies configuration reloads from m while running.
func WithConfigManager(m *config.Manager) Option {
	return func(o *options) {
		o.manager = m
	}
}

// WithLevelVar lets reloads change the log level through v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(o *options) {
		o.level = v
	}
}
