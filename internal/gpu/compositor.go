package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/overlay/internal/capture"
	"github.com/gogpu/wgpu"
)

// CompositorOptions controls how frames are composed.
type CompositorOptions struct {
	// Background is the clear colour used when no captured layer is present.
	Background gputypes.Color

	// DrawBase draws the base pipeline on top of the frame content.
	DrawBase bool
}

// DefaultCompositorOptions clears to fully transparent and draws the base
// pipeline.
func DefaultCompositorOptions() CompositorOptions {
	return CompositorOptions{
		Background: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		DrawBase:   true,
	}
}

// Compositor issues one render pass per frame into a FrameTarget.
type Compositor struct {
	device   *wgpu.Device
	queue    *wgpu.Queue
	pipeline *pipeline
	target   FrameTarget

	mu   sync.RWMutex
	opts CompositorOptions
}

// NewCompositor returns a compositor that renders with ctx's pipeline into
// target.
func NewCompositor(ctx *Context, target FrameTarget, opts CompositorOptions) *Compositor {
	return &Compositor{
		device:   ctx.device,
		queue:    ctx.device.Queue(),
		pipeline: ctx.pipeline,
		target:   target,
		opts:     opts,
	}
}

// SetOptions replaces the compositor options. Takes effect on the next frame.
func (c *Compositor) SetOptions(opts CompositorOptions) {
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
}

// Options returns the current compositor options.
func (c *Compositor) Options() CompositorOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

// RenderFrame acquires the next frame and submits exactly one command buffer
// for it. When layer is non-nil it is fitted to the frame, uploaded to a
// transient texture and copied into the frame before the pass; the pass then
// loads instead of clearing and the base pipeline draws on top.
//
// Acquire failures that need a reconfigure match ErrSurfaceRecoverable; in
// that case no frame is returned and nothing must be presented. On success
// the caller owns the frame and must present or discard it.
func (c *Compositor) RenderFrame(cfg SurfaceConfig, layer *capture.Layer) (*Frame, error) {
	opts := c.Options()

	frame, err := c.target.Acquire()
	if err != nil {
		return nil, err
	}
	if frame.Width != cfg.Width || frame.Height != cfg.Height {
		slogger().Debug("gpu: frame size differs from config",
			"frame_w", frame.Width, "frame_h", frame.Height,
			"config_w", cfg.Width, "config_h", cfg.Height)
	}

	if err := c.encodeAndSubmit(frame, layer, opts); err != nil {
		c.target.Discard(frame)
		return nil, err
	}
	return frame, nil
}

func (c *Compositor) encodeAndSubmit(frame *Frame, layer *capture.Layer, opts CompositorOptions) error {
	var layerTex *wgpu.Texture
	if layer != nil {
		tex, err := c.uploadLayer(frame, layer)
		if err != nil {
			return err
		}
		// Destruction is deferred until the submission completes.
		defer tex.Release()
		layerTex = tex
	}

	encoder, err := c.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "overlay_frame"})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}

	loadOp := gputypes.LoadOpClear
	if layerTex != nil {
		c.encodeLayerCopy(encoder, layerTex, frame)
		loadOp = gputypes.LoadOpLoad
	}

	pass, err := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "overlay_frame_pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       frame.View,
			LoadOp:     loadOp,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: opts.Background,
		}},
	})
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("gpu: begin render pass: %w", err)
	}
	if opts.DrawBase {
		pass.SetPipeline(c.pipeline.render)
		pass.Draw(baseVertexCount, 1, 0, 0)
	}
	if err := pass.End(); err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("gpu: end render pass: %w", err)
	}

	cmd, err := encoder.Finish()
	if err != nil {
		return fmt.Errorf("gpu: finish encoder: %w", err)
	}
	if _, err := c.queue.Submit(cmd); err != nil {
		return fmt.Errorf("gpu: submit frame: %w", err)
	}
	return nil
}

// uploadLayer fits layer to the frame and writes it into a new texture of
// the frame's format.
func (c *Compositor) uploadLayer(frame *Frame, layer *capture.Layer) (*wgpu.Texture, error) {
	fitted := layer.Fit(int(frame.Width), int(frame.Height))
	order := capture.OrderRGBA
	if isBGRA(frame.Format) {
		order = capture.OrderBGRA
	}

	tex, err := c.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "overlay_captured_layer",
		Size:          wgpu.Extent3D{Width: frame.Width, Height: frame.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        frame.Format,
		Usage:         gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create layer texture: %w", err)
	}

	err = c.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: tex, MipLevel: 0},
		fitted.Bytes(order),
		&wgpu.ImageDataLayout{Offset: 0, BytesPerRow: UnalignedRowStride(frame.Width), RowsPerImage: frame.Height},
		&wgpu.Extent3D{Width: frame.Width, Height: frame.Height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("gpu: upload layer: %w", err)
	}
	return tex, nil
}

// encodeLayerCopy records the layer-to-frame copy with the barriers the
// frame needs around it.
func (c *Compositor) encodeLayerCopy(encoder *wgpu.CommandEncoder, layerTex *wgpu.Texture, frame *Frame) {
	encoder.TransitionTextures([]wgpu.TextureBarrier{{
		Texture: frame.Texture,
		Usage: wgpu.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopyDst,
		},
	}})
	encoder.CopyTextureToTexture(layerTex, frame.Texture, []wgpu.TextureCopy{{
		Source:      wgpu.ImageCopyTexture{Texture: layerTex},
		Destination: wgpu.ImageCopyTexture{Texture: frame.Texture},
		Size:        wgpu.Extent3D{Width: frame.Width, Height: frame.Height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]wgpu.TextureBarrier{{
		Texture: frame.Texture,
		Usage: wgpu.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopyDst,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
}
