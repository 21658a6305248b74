package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"
)

// frameUsage is the texture usage every frame needs: it is rendered to,
// receives the captured layer by copy and is copied out for readback.
const frameUsage = gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst

// errNotConfigured is returned by Acquire before the first Configure.
var errNotConfigured = errors.New("gpu: frame target not configured")

// Frame is one acquired image that the compositor renders into.
// It is valid until Present or Discard is called on the target that
// produced it.
type Frame struct {
	Texture *wgpu.Texture
	View    *wgpu.TextureView
	Width   uint32
	Height  uint32
	Format  gputypes.TextureFormat

	// acquired is set for surface frames only.
	acquired hal.SurfaceTexture
}

// FrameTarget is where frames come from and where they go after capture.
type FrameTarget interface {
	// Configure applies cfg. It is called by the Surface lifecycle manager
	// on startup, on every resize and after a surface loss.
	Configure(cfg SurfaceConfig) error

	// Acquire returns the next frame. Acquire failures that are fixed by
	// reconfiguring match ErrSurfaceRecoverable.
	Acquire() (*Frame, error)

	// Present shows the frame and invalidates it.
	Present(f *Frame) error

	// Discard drops the frame without presenting it.
	Discard(f *Frame)

	// Release frees target resources.
	Release()
}

// SurfaceTarget renders into the swapchain images of a window surface.
//
// The surface is configured through wgpu.Surface, but images are acquired and
// presented through its HAL surface so that the frame can be wrapped as a
// regular wgpu.Texture. Copy commands (captured layer upload, readback) need a
// texture, which wgpu.SurfaceTexture does not expose.
type SurfaceTarget struct {
	surface *wgpu.Surface
	device  *wgpu.Device

	cfg        SurfaceConfig
	configured bool
}

// NewSurfaceTarget returns a target presenting to surface.
func NewSurfaceTarget(device *wgpu.Device, surface *wgpu.Surface) *SurfaceTarget {
	return &SurfaceTarget{surface: surface, device: device}
}

// Configure reconfigures the surface against the current device.
func (t *SurfaceTarget) Configure(cfg SurfaceConfig) error {
	err := t.surface.Configure(t.device, &wgpu.SurfaceConfiguration{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      cfg.Format,
		Usage:       frameUsage,
		PresentMode: cfg.PresentMode,
		AlphaMode:   cfg.AlphaMode,
	})
	if err != nil {
		return fmt.Errorf("gpu: configure surface %dx%d: %w", cfg.Width, cfg.Height, err)
	}
	t.cfg = cfg
	t.configured = true
	return nil
}

// Acquire takes the next swapchain image.
func (t *SurfaceTarget) Acquire() (*Frame, error) {
	raw := t.surface.HAL()
	if !t.configured || raw == nil {
		return nil, errNotConfigured
	}

	acquired, err := raw.AcquireTexture(nil)
	if err != nil {
		if isSurfaceRecoverable(err) {
			return nil, recoverable{cause: err}
		}
		return nil, fmt.Errorf("gpu: acquire surface texture: %w", err)
	}
	if acquired.Suboptimal {
		slogger().Debug("gpu: suboptimal surface image", "width", t.cfg.Width, "height", t.cfg.Height)
	}

	// The wrapper is never released: the image belongs to the swapchain.
	tex := wgpu.NewTextureFromHAL(acquired.Texture, t.device, t.cfg.Format)
	view, err := t.device.CreateTextureView(tex, nil)
	if err != nil {
		raw.DiscardTexture(acquired.Texture)
		return nil, fmt.Errorf("gpu: create surface view: %w", err)
	}

	return &Frame{
		Texture:  tex,
		View:     view,
		Width:    t.cfg.Width,
		Height:   t.cfg.Height,
		Format:   t.cfg.Format,
		acquired: acquired.Texture,
	}, nil
}

// Present queues the frame for display.
func (t *SurfaceTarget) Present(f *Frame) error {
	if f == nil || f.acquired == nil {
		return fmt.Errorf("gpu: present: not a surface frame")
	}
	defer f.View.Release()

	err := t.device.HalQueue().Present(t.surface.HAL(), f.acquired, nil)
	if err != nil {
		if isSurfaceRecoverable(err) {
			return recoverable{cause: err}
		}
		return fmt.Errorf("gpu: present: %w", err)
	}
	return nil
}

// Discard returns the image to the swapchain without presenting.
func (t *SurfaceTarget) Discard(f *Frame) {
	if f == nil || f.acquired == nil {
		return
	}
	f.View.Release()
	if raw := t.surface.HAL(); raw != nil {
		raw.DiscardTexture(f.acquired)
	}
}

// Release unconfigures and releases the surface.
func (t *SurfaceTarget) Release() {
	if t.surface == nil {
		return
	}
	t.surface.Unconfigure()
	t.surface.Release()
	t.surface = nil
	t.configured = false
}

// OffscreenTarget renders into a texture it owns. Present is a no-op, so
// frames only leave the process through readback.
type OffscreenTarget struct {
	device *wgpu.Device

	mu      sync.Mutex
	cfg     SurfaceConfig
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

// NewOffscreenTarget returns an unconfigured offscreen target.
func NewOffscreenTarget(device *wgpu.Device) *OffscreenTarget {
	return &OffscreenTarget{device: device}
}

// Configure (re)allocates the backing texture when the size or format changes.
func (t *OffscreenTarget) Configure(cfg SurfaceConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.texture != nil && t.cfg.Width == cfg.Width && t.cfg.Height == cfg.Height && t.cfg.Format == cfg.Format {
		t.cfg = cfg
		return nil
	}

	tex, err := t.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "overlay_offscreen_frame",
		Size:          wgpu.Extent3D{Width: cfg.Width, Height: cfg.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        cfg.Format,
		Usage:         frameUsage,
	})
	if err != nil {
		return fmt.Errorf("gpu: create offscreen texture %dx%d: %w", cfg.Width, cfg.Height, err)
	}
	view, err := t.device.CreateTextureView(tex, nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("gpu: create offscreen view: %w", err)
	}

	t.releaseLocked()
	t.cfg = cfg
	t.texture = tex
	t.view = view
	return nil
}

// Acquire returns the backing texture as a frame.
func (t *OffscreenTarget) Acquire() (*Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.texture == nil {
		return nil, errNotConfigured
	}
	return &Frame{
		Texture: t.texture,
		View:    t.view,
		Width:   t.cfg.Width,
		Height:  t.cfg.Height,
		Format:  t.cfg.Format,
	}, nil
}

// Present is a no-op.
func (t *OffscreenTarget) Present(*Frame) error { return nil }

// Discard is a no-op.
func (t *OffscreenTarget) Discard(*Frame) {}

// Release frees the backing texture.
func (t *OffscreenTarget) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked()
}

func (t *OffscreenTarget) releaseLocked() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.texture != nil {
		t.texture.Release()
		t.texture = nil
	}
}
