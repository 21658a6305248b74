//go:build !nogpu

package overlay

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/gogpu/overlay/internal/capture"
	"github.com/gogpu/overlay/internal/config"
	"github.com/gogpu/overlay/internal/gpu"
	_ "github.com/gogpu/wgpu/hal/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startHeadless runs a runtime rendering offscreen at 64x64 with a red clear
// color. It skips when no adapter is available.
func startHeadless(t *testing.T) *Runtime {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Window.Width, cfg.Window.Height = 64, 64
	cfg.Render.AllowSoftware = true
	cfg.Render.Background = []float64{1, 0, 0, 1}
	cfg.Render.DrawBase = false
	cfg.Render.FPS = 120

	rt := New(cfg, WithListener(listen(t)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(10 * time.Second)
	for rt.renderLoop() == nil {
		select {
		case err := <-done:
			done <- err
			if errors.Is(err, gpu.ErrNoAdapter) || errors.Is(err, gpu.ErrNoDevice) {
				t.Skipf("GPU not available: %v", err)
			}
			t.Fatalf("Run: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("render domain did not start")
		}
	}
	return rt
}

// nextFrame waits for a frame matching keep.
func nextFrame(t *testing.T, rt *Runtime, keep func(*FrameBuffer) bool) *FrameBuffer {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case fb, ok := <-rt.Frames():
			if !ok {
				t.Fatal("frame channel closed")
			}
			if keep(fb) {
				return fb
			}
		case <-deadline:
			t.Fatal("no matching frame")
			return nil
		}
	}
}

func TestRuntimeDeliversClearedFrames(t *testing.T) {
	rt := startHeadless(t)

	fb := nextFrame(t, rt, func(*FrameBuffer) bool { return true })
	assert.Equal(t, uint32(64), fb.Width)
	assert.Equal(t, uint32(64), fb.Height)
	assert.Equal(t, [4]byte{255, 0, 0, 255}, fb.At(10, 10))
	assert.Positive(t, rt.Stats().Presented)
}

func TestRuntimeCompositesOfferedLayer(t *testing.T) {
	rt := startHeadless(t)

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{B: 255, A: 255}}, image.Point{}, draw.Src)
	require.NoError(t, rt.Layers().Offer(capture.FromImage(img)))

	fb := nextFrame(t, rt, func(fb *FrameBuffer) bool {
		return fb.At(32, 32) == [4]byte{0, 0, 255, 255}
	})
	assert.Equal(t, [4]byte{0, 0, 255, 255}, fb.At(0, 0))
}

func TestRuntimeFollowsWindowResize(t *testing.T) {
	rt := startHeadless(t)

	rt.Window().SetSize(128, 64)

	fb := nextFrame(t, rt, func(fb *FrameBuffer) bool { return fb.Width == 128 })
	assert.Equal(t, uint32(64), fb.Height)
}

func TestRuntimeReportsAdapter(t *testing.T) {
	rt := startHeadless(t)

	info := rt.adapterInfo()
	assert.NotEqual(t, "none", info.Name)
}
