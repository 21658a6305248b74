// Package gpu implements the frame pipeline of the overlay runtime on top of
// gogpu/wgpu.
//
// The package is organised around four pieces:
//
//   - Context: adapter, device, queue, presentation surface and the single
//     render pipeline. Created once per window by Initialize.
//   - Surface: the lifecycle manager. Owns SurfaceConfig behind a mutex,
//     clamps resizes to 1x1 and reconfigures the FrameTarget synchronously.
//   - Compositor: one render pass per frame, with an optional captured layer
//     copied into the frame before the base pipeline draw.
//   - Readback: copies a finished frame into a 256-byte aligned staging
//     buffer, maps it and strips the row padding into a FrameBuffer.
//
// Frames are rendered into a FrameTarget. SurfaceTarget presents to a window;
// OffscreenTarget owns a texture and is used headless and in tests.
//
// A frame is always captured before it is presented:
//
//	frame, err := compositor.RenderFrame(cfg, layer)
//	if errors.Is(err, gpu.ErrSurfaceRecoverable) {
//	    surface.OnSurfaceLost()
//	    return
//	}
//	fb, err := readback.CaptureFrame(ctx, frame)
//	target.Present(frame)
package gpu
