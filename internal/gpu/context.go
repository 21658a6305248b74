package gpu

import (
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

// WindowHandle carries the native handles of the window frames are presented
// to. A zero Window selects headless rendering into an offscreen target.
type WindowHandle struct {
	Display uintptr
	Window  uintptr
}

// Headless reports whether h names no window.
func (h WindowHandle) Headless() bool { return h.Window == 0 }

// Options configures Initialize.
type Options struct {
	// AllowSoftware permits a CPU adapter. Without it Initialize fails with
	// ErrNoAdapter when no hardware adapter is available.
	AllowSoftware bool

	// PowerPreference is passed to adapter selection.
	// Zero selects high performance.
	PowerPreference gputypes.PowerPreference

	// PresentMode is used when the surface supports it; otherwise Fifo.
	PresentMode gputypes.PresentMode

	// HeadlessFormat is the frame format without a window.
	// Zero selects RGBA8Unorm.
	HeadlessFormat gputypes.TextureFormat

	// Label prefixes the device label.
	Label string
}

// Context is the process-wide GPU state: instance, adapter, device, queue,
// the window surface (if any) and the fixed base pipeline. Everything else in
// this package borrows from it.
type Context struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	surface  *wgpu.Surface

	info        gputypes.AdapterInfo
	format      gputypes.TextureFormat
	alphaMode   gputypes.CompositeAlphaMode
	presentMode gputypes.PresentMode

	pipeline *pipeline
	headless bool
	released bool
}

// Initialize brings up the GPU for handle. The adapter is chosen in this
// order: a high-performance hardware adapter compatible with the surface,
// then, only when opts.AllowSoftware is set, the fallback CPU adapter.
//
// The surface format is the first one the adapter reports for the surface.
// On failure every partially created object is released.
func Initialize(handle WindowHandle, opts Options) (_ *Context, err error) {
	c := &Context{headless: handle.Headless()}
	defer func() {
		if err != nil {
			c.Release()
		}
	}()

	c.instance, err = wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrNoAdapter, err)
	}

	if !handle.Headless() {
		c.surface, err = c.instance.CreateSurface(handle.Display, handle.Window)
		if err != nil {
			return nil, fmt.Errorf("gpu: create surface: %w", err)
		}
	}

	c.adapter, err = c.selectAdapter(opts)
	if err != nil {
		return nil, err
	}
	c.info = c.adapter.Info()

	label := "overlay_device"
	if opts.Label != "" {
		label = opts.Label + "_device"
	}
	c.device, err = c.adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}

	c.chooseSurfaceFormat(opts)

	c.pipeline, err = newPipeline(c.device, c.format)
	if err != nil {
		return nil, err
	}

	slogger().Info("gpu: initialized",
		"adapter", c.info.Name,
		"device_type", c.info.DeviceType,
		"backend", c.info.Backend,
		"format", c.format,
		"present_mode", c.presentMode,
		"headless", handle.Headless())
	return c, nil
}

func (c *Context) selectAdapter(opts Options) (*wgpu.Adapter, error) {
	pref := opts.PowerPreference
	if pref == gputypes.PowerPreferenceNone {
		pref = gputypes.PowerPreferenceHighPerformance
	}

	adapter, err := c.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:   pref,
		CompatibleSurface: c.surface,
	})
	if err == nil && adapter.Info().DeviceType != gputypes.DeviceTypeCPU {
		return adapter, nil
	}
	if err == nil {
		// Only a CPU adapter was offered.
		if opts.AllowSoftware {
			return adapter, nil
		}
		adapter.Release()
		return nil, fmt.Errorf("%w: only a software adapter is available", ErrNoAdapter)
	}
	if !opts.AllowSoftware {
		return nil, fmt.Errorf("%w: %w", ErrNoAdapter, err)
	}

	slogger().Warn("gpu: no hardware adapter, falling back to software", "err", err)
	adapter, err = c.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:      pref,
		ForceFallbackAdapter: true,
		CompatibleSurface:    c.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: software fallback: %w", ErrNoAdapter, err)
	}
	return adapter, nil
}

func (c *Context) chooseSurfaceFormat(opts Options) {
	c.format = opts.HeadlessFormat
	if c.format == gputypes.TextureFormatUndefined {
		c.format = gputypes.TextureFormatRGBA8Unorm
	}
	c.alphaMode = gputypes.CompositeAlphaModeOpaque
	c.presentMode = gputypes.PresentModeFifo

	if c.surface == nil {
		return
	}
	caps := c.adapter.GetSurfaceCapabilities(c.surface)
	if caps == nil {
		slogger().Warn("gpu: no surface capabilities reported, using defaults", "format", c.format)
		return
	}
	if len(caps.Formats) > 0 {
		c.format = caps.Formats[0]
	}
	if len(caps.AlphaModes) > 0 {
		c.alphaMode = caps.AlphaModes[0]
	}
	if opts.PresentMode != c.presentMode && slices.Contains(caps.PresentModes, opts.PresentMode) {
		c.presentMode = opts.PresentMode
	}
}

// Device returns the logical device.
func (c *Context) Device() *wgpu.Device { return c.device }

// Queue returns the device queue.
func (c *Context) Queue() *wgpu.Queue { return c.device.Queue() }

// Format returns the frame format.
func (c *Context) Format() gputypes.TextureFormat { return c.format }

// Headless reports whether the context renders without a window surface.
func (c *Context) Headless() bool { return c.headless }

// AdapterInfo describes the selected adapter in the form shared with the
// rest of the runtime.
func (c *Context) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{
		Name: c.info.Name,
		Type: adapterType(c.info.DeviceType),
	}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// InitialConfig returns the surface configuration for a window of the given
// size with the context's format and modes.
func (c *Context) InitialConfig(width, height int) SurfaceConfig {
	return SurfaceConfig{
		Width:       clampDim(width),
		Height:      clampDim(height),
		Format:      c.format,
		AlphaMode:   c.alphaMode,
		PresentMode: c.presentMode,
	}
}

// NewTarget returns the frame target for this context: the window surface,
// or an offscreen texture when headless. The target takes ownership of the
// surface.
func (c *Context) NewTarget() FrameTarget {
	if c.surface == nil {
		return NewOffscreenTarget(c.device)
	}
	t := NewSurfaceTarget(c.device, c.surface)
	c.surface = nil
	return t
}

// Release waits for the device to go idle and releases everything the
// context still owns. It is safe to call more than once.
func (c *Context) Release() {
	if c == nil || c.released {
		return
	}
	c.released = true

	if c.device != nil {
		if err := c.device.WaitIdle(); err != nil {
			slogger().Warn("gpu: wait idle on release", "err", err)
		}
	}
	c.pipeline.release()
	if c.surface != nil {
		c.surface.Release()
	}
	if c.device != nil {
		c.device.Release()
	}
	if c.adapter != nil {
		c.adapter.Release()
	}
	if c.instance != nil {
		c.instance.Release()
	}
}
