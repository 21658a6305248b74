package gpu

import (
	"errors"

	"github.com/gogpu/wgpu/hal"
)

// Fatal errors. The render domain cannot continue after any of these.
var (
	// ErrNoAdapter is returned when no compatible adapter is available, or
	// when only a software adapter exists and software fallback is disabled.
	ErrNoAdapter = errors.New("gpu: no compatible adapter")

	// ErrNoDevice is returned when the selected adapter refuses to open a device.
	ErrNoDevice = errors.New("gpu: no compatible device")

	// ErrSurfaceFatal is returned when the surface was lost on too many
	// consecutive frames.
	ErrSurfaceFatal = errors.New("gpu: surface lost repeatedly")
)

// ErrSurfaceRecoverable signals that the next presentable image could not be
// acquired. The caller reconfigures the surface and skips present.
var ErrSurfaceRecoverable = errors.New("gpu: surface recoverable")

// ErrReadback is returned when copying or mapping a frame for readback fails.
// The frame is dropped; rendering continues.
var ErrReadback = errors.New("gpu: readback failed")

// isSurfaceRecoverable reports whether err is one of the acquire failures
// that are fixed by reconfiguring the surface.
func isSurfaceRecoverable(err error) bool {
	return errors.Is(err, hal.ErrSurfaceLost) ||
		errors.Is(err, hal.ErrSurfaceOutdated) ||
		errors.Is(err, hal.ErrDeviceOutOfMemory)
}

// recoverable wraps an acquire failure so that both ErrSurfaceRecoverable and
// the original cause match with errors.Is.
type recoverable struct{ cause error }

func (r recoverable) Error() string { return "gpu: surface recoverable: " + r.cause.Error() }

func (r recoverable) Unwrap() []error { return []error{ErrSurfaceRecoverable, r.cause} }
