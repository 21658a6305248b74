package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/overlay/internal/bridge"
	"github.com/gogpu/overlay/internal/capture"
	"github.com/gogpu/overlay/internal/config"
	"github.com/gogpu/overlay/internal/frameloop"
	"github.com/gogpu/overlay/internal/gpu"
	"github.com/gogpu/overlay/internal/handlers"
	"github.com/gogpu/overlay/internal/overlaysdk"
	"github.com/gogpu/overlay/internal/window"
	"golang.org/x/sync/errgroup"
)

type (
	// WindowHandle identifies the native window to render into.
	WindowHandle = gpu.WindowHandle
	// FrameBuffer is a captured frame in RGBA order.
	FrameBuffer = gpu.FrameBuffer
	// Layer is a UI image composited into the next frame.
	Layer = capture.Layer
)

// frameQueue is the capacity of the default frame channel.
const frameQueue = 2

// Runtime runs the two domains of the overlay shell: the render loop on the
// GPU and the command bridge serving the web layer. They share the main
// window and nothing else.
type Runtime struct {
	opts options

	window  *window.Window
	windows *window.Manager
	layers  capture.Mailbox
	frames  *frameloop.ChannelSink
	router  *bridge.Router
	server  *bridge.Server
	sdk     overlaysdk.Service

	mu         sync.Mutex
	cfg        *config.Config
	gpu        *gpu.Context
	compositor *gpu.Compositor
	loop       *frameloop.Loop
	cancel     context.CancelFunc
	exitCode   int
	running    bool
}

// New builds a runtime from cfg. Nothing is started until Run.
func New(cfg *config.Config, opts ...Option) *Runtime {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{opts: o, cfg: cfg}

	r.window = window.New(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	r.windows = window.NewManager(r.window)

	if o.sink == nil {
		r.frames = frameloop.NewChannelSink(frameQueue)
		r.opts.sink = r.frames
	}

	r.sdk = o.sdk
	if r.sdk == nil {
		r.sdk = overlaysdk.NewLocal(overlaysdk.Player{Name: cfg.App.Name})
	}

	exit := o.exit
	if exit == nil {
		exit = r.requestExit
	}

	r.router = bridge.NewRouter()
	handlers.Register(r.router, handlers.Deps{
		Windows:  r.windows,
		FS:       o.fs,
		Paths:    handlers.PathConfig{AppName: cfg.App.Name, AppDir: cfg.App.Dir},
		SDK:      r.sdk,
		Launcher: o.launcher,
		Adapter:  r.adapterInfo,
		Exit:     exit,
		Version:  cfg.App.Version,
	})
	r.server = bridge.NewServer(r.router, bridge.Config{
		Address:      cfg.Bridge.Address,
		ReadLimit:    cfg.Bridge.ReadLimit,
		WriteTimeout: cfg.Bridge.WriteTimeout,
	})
	return r
}

// Window returns the main window.
func (r *Runtime) Window() *window.Window { return r.window }

// Router returns the bridge router so callers can add routes before Run.
func (r *Runtime) Router() *bridge.Router { return r.router }

// Layers returns the mailbox the UI-capture side offers layers to.
func (r *Runtime) Layers() *capture.Mailbox { return &r.layers }

// Frames returns captured frames, or nil when WithFrameSink was used. The
// channel is closed when Run returns.
func (r *Runtime) Frames() <-chan *FrameBuffer {
	if r.frames == nil {
		return nil
	}
	return r.frames.Frames()
}

// ExitCode returns the code passed to /exit, or 0.
func (r *Runtime) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode
}

// Stats returns render loop counters. They are zero before Run.
func (r *Runtime) Stats() frameloop.Stats {
	r.mu.Lock()
	loop := r.loop
	r.mu.Unlock()
	if loop == nil {
		return frameloop.Stats{}
	}
	return loop.Stats()
}

// Run starts the render loop and the bridge and blocks until ctx is done,
// /exit is requested, or either domain fails. GPU resources are released
// before Run returns.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("overlay: runtime already running")
	}
	r.running = true
	r.cancel = cancel
	cfg := r.cfg
	r.mu.Unlock()

	if r.frames != nil {
		defer r.frames.Close()
	}

	var release func()
	if !r.opts.noRender {
		var err error
		release, err = r.startRender(cfg)
		if err != nil {
			return err
		}
		defer release()
	}

	unsubscribe := r.sdk.OnPresence(func(ev overlaysdk.PresenceEvent) {
		slogger().Info("overlay: presence", "name", ev.Name, "state", ev.State.String())
	})
	defer unsubscribe()

	if m := r.opts.manager; m != nil {
		m.OnConfigChange(r.applyConfig)
		if err := m.Watch(); err != nil {
			slogger().Warn("overlay: config not watched", "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if loop := r.renderLoop(); loop != nil {
		g.Go(func() error {
			if err := loop.Run(gctx); err != nil {
				return fmt.Errorf("render loop: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		if r.opts.listener != nil {
			err = r.server.Serve(gctx, r.opts.listener)
		} else {
			err = r.server.ListenAndServe(gctx)
		}
		if err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		return nil
	})

	slogger().Info("overlay: running", "address", cfg.Bridge.Address, "render", !r.opts.noRender)
	err := g.Wait()
	slogger().Info("overlay: stopped", "err", err)
	return err
}

// startRender brings up the GPU, the surface and the render loop. The
// returned function releases them.
func (r *Runtime) startRender(cfg *config.Config) (func(), error) {
	gctx, err := gpu.Initialize(r.opts.handle, gpu.Options{
		AllowSoftware:   cfg.Render.AllowSoftware,
		PowerPreference: cfg.Render.PowerPreferenceValue(),
		PresentMode:     cfg.Render.PresentModeValue(),
		Label:           cfg.App.Name,
	})
	if err != nil {
		return nil, err
	}

	width, height := r.window.Size()
	target := gctx.NewTarget()
	surface, err := gpu.NewSurface(target, gctx.InitialConfig(width, height), cfg.Render.MaxSurfaceLoss)
	if err != nil {
		target.Release()
		gctx.Release()
		return nil, err
	}

	compositor := gpu.NewCompositor(gctx, target, compositorOptions(cfg))
	loop := frameloop.New(surface, compositor, gpu.NewReadback(gctx.Device()), &r.layers, r.opts.sink, frameloop.Config{
		FPS:      cfg.Render.FPS,
		Readback: cfg.Render.Readback,
	})

	r.window.OnResize(func(w, h int) {
		if err := surface.OnResize(w, h); err != nil {
			slogger().Warn("overlay: resize", "width", w, "height", h, "err", err)
		}
	})

	r.mu.Lock()
	r.gpu = gctx
	r.compositor = compositor
	r.loop = loop
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		r.gpu = nil
		r.compositor = nil
		r.mu.Unlock()
		target.Release()
		gctx.Release()
	}, nil
}

func (r *Runtime) renderLoop() *frameloop.Loop {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loop
}

func compositorOptions(cfg *config.Config) gpu.CompositorOptions {
	return gpu.CompositorOptions{
		Background: cfg.Render.BackgroundColor(),
		DrawBase:   cfg.Render.DrawBase,
	}
}

// applyConfig takes the settings that can change while running from a
// reloaded configuration. Bridge address and GPU selection need a restart.
func (r *Runtime) applyConfig(cfg *config.Config) {
	r.mu.Lock()
	r.cfg = cfg
	compositor, loop := r.compositor, r.loop
	r.mu.Unlock()

	if compositor != nil {
		compositor.SetOptions(compositorOptions(cfg))
	}
	if loop != nil {
		loop.SetReadback(cfg.Render.Readback)
	}
	if r.opts.level != nil {
		r.opts.level.Set(cfg.Logging.SlogLevel())
	}
	slogger().Info("overlay: configuration applied")
}

func (r *Runtime) adapterInfo() gpucontext.AdapterInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gpu == nil {
		return gpucontext.AdapterInfo{Name: "none", Type: gpucontext.AdapterTypeUnknown}
	}
	return r.gpu.AdapterInfo()
}

// requestExit stops Run after the /exit response has been written.
func (r *Runtime) requestExit(code int) {
	r.mu.Lock()
	r.exitCode = code
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
