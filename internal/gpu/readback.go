package gpu

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

// copyPitchAlignment is the row pitch alignment required by texture-to-buffer
// copies (WebGPU, DX12).
const copyPitchAlignment = 256

// bytesPerPixel is fixed: every frame format is 8-bit RGBA or BGRA.
const bytesPerPixel = 4

// UnalignedRowStride is the tightly packed row size of a frame.
func UnalignedRowStride(width uint32) uint32 {
	return width * bytesPerPixel
}

// AlignedRowStride is the row size of a frame in a staging buffer:
// width*4 rounded up to a multiple of 256.
func AlignedRowStride(width uint32) uint32 {
	return (UnalignedRowStride(width) + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

// FrameBuffer is a finished frame in host memory, tightly packed RGBA.
type FrameBuffer struct {
	Width  uint32
	Height uint32
	// Stride is the unaligned row stride, Width*4.
	Stride uint32
	Pix    []byte
}

// At returns the RGBA bytes of the pixel at (x, y).
func (fb *FrameBuffer) At(x, y uint32) [4]byte {
	i := y*fb.Stride + x*bytesPerPixel
	return [4]byte{fb.Pix[i], fb.Pix[i+1], fb.Pix[i+2], fb.Pix[i+3]}
}

// stripRowPadding copies height rows of width*4 bytes out of src, whose rows
// are alignedStride bytes apart, into a tightly packed buffer.
func stripRowPadding(src []byte, width, height, alignedStride uint32) []byte {
	stride := UnalignedRowStride(width)
	if stride == alignedStride {
		out := make([]byte, int(stride)*int(height))
		copy(out, src)
		return out
	}
	out := make([]byte, int(stride)*int(height))
	for row := uint32(0); row < height; row++ {
		srcOff := int(row) * int(alignedStride)
		dstOff := int(row) * int(stride)
		copy(out[dstOff:dstOff+int(stride)], src[srcOff:srcOff+int(stride)])
	}
	return out
}

// convertBGRAToRGBA swaps the R and B channels of pixelCount pixels in place.
func convertBGRAToRGBA(pix []byte, pixelCount int) {
	for i := 0; i < pixelCount; i++ {
		o := i * bytesPerPixel
		pix[o], pix[o+2] = pix[o+2], pix[o]
	}
}

// isBGRA reports whether format stores blue in the first byte.
func isBGRA(format gputypes.TextureFormat) bool {
	return format == gputypes.TextureFormatBGRA8Unorm || format == gputypes.TextureFormatBGRA8UnormSrgb
}

// Readback copies finished frames into host memory.
type Readback struct {
	device *wgpu.Device
	queue  *wgpu.Queue
}

// NewReadback returns a Readback that submits on device's queue.
func NewReadback(device *wgpu.Device) *Readback {
	return &Readback{device: device, queue: device.Queue()}
}

// CaptureFrame reads f back into a FrameBuffer. It must run after the frame's
// render submission and before the frame is presented. It blocks until the
// staging buffer is mapped or ctx is done.
//
// The staging buffer is allocated per call and released before returning.
// Any failure is reported as ErrReadback and no FrameBuffer is produced.
func (r *Readback) CaptureFrame(ctx context.Context, f *Frame) (*FrameBuffer, error) {
	if f == nil || f.Texture == nil {
		return nil, fmt.Errorf("%w: no frame", ErrReadback)
	}
	w, h := f.Width, f.Height
	alignedStride := AlignedRowStride(w)
	size := uint64(alignedStride) * uint64(h)

	staging, err := r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "overlay_readback_staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create staging buffer: %w", ErrReadback, err)
	}
	defer staging.Release()

	encoder, err := r.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "overlay_readback"})
	if err != nil {
		return nil, fmt.Errorf("%w: create command encoder: %w", ErrReadback, err)
	}

	// The frame is in render-attachment layout after the compositor pass.
	encoder.TransitionTextures([]wgpu.TextureBarrier{{
		Texture: f.Texture,
		Usage: wgpu.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	encoder.CopyTextureToBuffer(f.Texture, staging, []wgpu.BufferTextureCopy{{
		BufferLayout: wgpu.ImageDataLayout{Offset: 0, BytesPerRow: alignedStride, RowsPerImage: h},
		TextureBase:  wgpu.ImageCopyTexture{Texture: f.Texture, MipLevel: 0},
		Size:         wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	// Back to render-attachment so present sees the layout it expects.
	encoder.TransitionTextures([]wgpu.TextureBarrier{{
		Texture: f.Texture,
		Usage: wgpu.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmd, err := encoder.Finish()
	if err != nil {
		return nil, fmt.Errorf("%w: finish encoder: %w", ErrReadback, err)
	}
	if _, err := r.queue.Submit(cmd); err != nil {
		return nil, fmt.Errorf("%w: submit copy: %w", ErrReadback, err)
	}

	if err := staging.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("%w: map staging buffer: %w", ErrReadback, err)
	}
	defer func() {
		if err := staging.Unmap(); err != nil {
			slogger().Warn("gpu: unmap staging buffer", "err", err)
		}
	}()

	mapped, err := staging.MappedRange(0, size)
	if err != nil {
		return nil, fmt.Errorf("%w: mapped range: %w", ErrReadback, err)
	}
	pix := stripRowPadding(mapped.Bytes(), w, h, alignedStride)
	mapped.Release()

	if isBGRA(f.Format) {
		convertBGRAToRGBA(pix, int(w)*int(h))
	}

	slogger().Debug("gpu: frame captured",
		"width", w, "height", h,
		"aligned_stride", alignedStride, "stride", UnalignedRowStride(w))

	return &FrameBuffer{
		Width:  w,
		Height: h,
		Stride: UnalignedRowStride(w),
		Pix:    pix,
	}, nil
}
