// Package frameloop drives the render domain: one strictly ordered
// surface check, render, capture and present per tick, with no pipelining
// between ticks.
package frameloop

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gogpu/overlay/internal/capture"
	"github.com/gogpu/overlay/internal/gpu"
)

// DefaultFPS is the tick rate used when Config.FPS is not positive.
const DefaultFPS = 60

// Lifecycle is the part of gpu.Surface the loop depends on.
type Lifecycle interface {
	Frame(fn func(cfg gpu.SurfaceConfig) error) error
	OnSurfaceLost() error
	Target() gpu.FrameTarget
}

// Renderer produces a submitted frame. Implemented by gpu.Compositor.
type Renderer interface {
	RenderFrame(cfg gpu.SurfaceConfig, layer *capture.Layer) (*gpu.Frame, error)
}

// Capturer reads a submitted frame back. Implemented by gpu.Readback.
type Capturer interface {
	CaptureFrame(ctx context.Context, f *gpu.Frame) (*gpu.FrameBuffer, error)
}

// LayerSource yields the captured UI layer for the next frame, or nil.
// Implemented by capture.Mailbox.
type LayerSource interface {
	Take() *capture.Layer
}

// Config configures a Loop.
type Config struct {
	FPS      int
	Readback bool
}

// Stats are cumulative loop counters.
type Stats struct {
	Presented        uint64
	Delivered        uint64
	SkippedSurface   uint64
	DroppedReadbacks uint64
}

// Loop is the render-domain loop. A Loop is driven from a single goroutine.
type Loop struct {
	surface  Lifecycle
	renderer Renderer
	capturer Capturer
	source   LayerSource
	sink     Sink

	interval time.Duration
	readback atomic.Bool

	presented        atomic.Uint64
	delivered        atomic.Uint64
	skippedSurface   atomic.Uint64
	droppedReadbacks atomic.Uint64
}

// New returns a loop. source, capturer and sink may be nil: without a
// source no layer is composited, without a capturer or sink frames are only
// presented.
func New(surface Lifecycle, renderer Renderer, capturer Capturer, source LayerSource, sink Sink, cfg Config) *Loop {
	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	l := &Loop{
		surface:  surface,
		renderer: renderer,
		capturer: capturer,
		source:   source,
		sink:     sink,
		interval: time.Second / time.Duration(fps),
	}
	l.readback.Store(cfg.Readback)
	return l
}

// SetReadback enables or disables frame capture from the next tick.
func (l *Loop) SetReadback(enabled bool) { l.readback.Store(enabled) }

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Presented:        l.presented.Load(),
		Delivered:        l.delivered.Load(),
		SkippedSurface:   l.skippedSurface.Load(),
		DroppedReadbacks: l.droppedReadbacks.Load(),
	}
}

// Run ticks until ctx is done or a tick fails fatally. It returns nil when
// ctx ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	slogger().Info("frameloop: started", "interval", l.interval)
	defer slogger().Info("frameloop: stopped", "presented", l.presented.Load())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Tick renders, captures and presents one frame.
//
// A recoverable surface failure skips the frame and reconfigures the
// surface; it is not an error unless the surface gives up with
// gpu.ErrSurfaceFatal. A readback failure drops the capture but the frame is
// still presented. Any other failure is returned.
func (l *Loop) Tick(ctx context.Context) error {
	var fb *gpu.FrameBuffer
	err := l.surface.Frame(func(cfg gpu.SurfaceConfig) error {
		var layer *capture.Layer
		if l.source != nil {
			layer = l.source.Take()
		}

		frame, err := l.renderer.RenderFrame(cfg, layer)
		if err != nil {
			return err
		}
		target := l.surface.Target()

		if l.capturer != nil && l.readback.Load() {
			fb, err = l.capturer.CaptureFrame(ctx, frame)
			if err != nil {
				if !errors.Is(err, gpu.ErrReadback) {
					target.Discard(frame)
					return err
				}
				l.droppedReadbacks.Add(1)
				slogger().Warn("frameloop: readback dropped", "err", err)
				fb = nil
			}
		}

		if err := target.Present(frame); err != nil {
			fb = nil
			return err
		}
		l.presented.Add(1)
		return nil
	})

	if err != nil {
		if !errors.Is(err, gpu.ErrSurfaceRecoverable) {
			return err
		}
		l.skippedSurface.Add(1)
		if lerr := l.surface.OnSurfaceLost(); lerr != nil {
			if errors.Is(lerr, gpu.ErrSurfaceFatal) {
				slogger().Error("frameloop: surface unrecoverable", "err", lerr)
				return lerr
			}
			slogger().Warn("frameloop: surface reconfigure failed", "err", lerr)
		}
		return nil
	}

	// Delivery happens outside the surface lock so resizes are not held up
	// by consumers.
	if fb != nil && l.sink != nil {
		l.sink.Deliver(fb)
		l.delivered.Add(1)
	}
	return nil
}
