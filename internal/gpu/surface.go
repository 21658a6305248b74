package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
)

// DefaultMaxSurfaceLoss is the number of consecutive surface losses after
// which OnSurfaceLost gives up with ErrSurfaceFatal.
const DefaultMaxSurfaceLoss = 3

// SurfaceConfig is the presentation configuration of a frame target.
// Width and Height are never zero once the config has passed through a
// Surface.
type SurfaceConfig struct {
	Width       uint32
	Height      uint32
	Format      gputypes.TextureFormat
	AlphaMode   gputypes.CompositeAlphaMode
	PresentMode gputypes.PresentMode
}

// clampDim converts a window dimension to a surface dimension of at least 1.
func clampDim(v int) uint32 {
	if v < 1 {
		return 1
	}
	return uint32(v) //nolint:gosec // v >= 1
}

// Surface is the lifecycle manager of a frame target. It owns the
// SurfaceConfig; resize events and the render loop both go through its
// mutex, so a frame never renders against a half-applied configuration.
type Surface struct {
	mu sync.Mutex

	target   FrameTarget
	config   SurfaceConfig
	lastGood SurfaceConfig

	lostStreak int
	maxLoss    int
}

// NewSurface clamps initial, configures target with it and returns the
// manager. maxLoss <= 0 selects DefaultMaxSurfaceLoss.
func NewSurface(target FrameTarget, initial SurfaceConfig, maxLoss int) (*Surface, error) {
	if maxLoss <= 0 {
		maxLoss = DefaultMaxSurfaceLoss
	}
	initial.Width = clampDim(int(initial.Width))
	initial.Height = clampDim(int(initial.Height))

	s := &Surface{target: target, config: initial, maxLoss: maxLoss}
	if err := target.Configure(initial); err != nil {
		return nil, err
	}
	s.lastGood = initial
	return s, nil
}

// Config returns a copy of the current configuration.
func (s *Surface) Config() SurfaceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Target returns the managed frame target.
func (s *Surface) Target() FrameTarget { return s.target }

// OnResize clamps the new size to at least 1x1 and reconfigures the target
// before returning. It blocks while a frame is in flight.
func (s *Surface) OnResize(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.config
	next.Width = clampDim(width)
	next.Height = clampDim(height)
	s.config = next

	if err := s.target.Configure(next); err != nil {
		slogger().Warn("gpu: reconfigure on resize failed",
			"width", next.Width, "height", next.Height, "err", err)
		return err
	}
	s.lastGood = next
	slogger().Debug("gpu: surface resized", "width", next.Width, "height", next.Height)
	return nil
}

// OnSurfaceLost reapplies the last known-good configuration. The frame that
// hit the loss must not be presented. Once maxLoss consecutive losses have
// been reported without a presented frame in between, it returns
// ErrSurfaceFatal and does not reconfigure.
func (s *Surface) OnSurfaceLost() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lostStreak++
	if s.lostStreak >= s.maxLoss {
		return fmt.Errorf("%w: %d consecutive frames", ErrSurfaceFatal, s.lostStreak)
	}

	s.config = s.lastGood
	if err := s.target.Configure(s.lastGood); err != nil {
		slogger().Warn("gpu: reconfigure after surface loss failed", "streak", s.lostStreak, "err", err)
		return err
	}
	slogger().Warn("gpu: surface lost, reconfigured", "streak", s.lostStreak)
	return nil
}

// Frame runs fn with the configuration held exclusively. Resizes wait
// until fn returns. A nil error from fn counts as a presented frame and
// resets the loss streak.
func (s *Surface) Frame(fn func(cfg SurfaceConfig) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn(s.config)
	if err == nil {
		s.lostStreak = 0
	}
	return err
}

// LossStreak returns the number of consecutive surface losses.
func (s *Surface) LossStreak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lostStreak
}
