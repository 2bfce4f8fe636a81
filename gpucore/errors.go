package gpucore

import "errors"

// Swapchain staleness. Both are recoverable by rebuilding the swapchain.
var (
	// ErrOutOfDate is returned when the swapchain no longer matches the
	// surface and cannot be used.
	ErrOutOfDate = errors.New("gpucore: swapchain out of date")

	// ErrSuboptimal is returned by a present when the swapchain still
	// works but should be rebuilt.
	ErrSuboptimal = errors.New("gpucore: swapchain suboptimal")
)

// ErrTransientExtent is returned when the surface cannot be configured
// for the requested extent right now, typically a zero-area window during
// interactive resize or minimisation. Callers retry on the next frame.
var ErrTransientExtent = errors.New("gpucore: surface extent temporarily unsupported")

// Fatal device conditions.
var (
	// ErrSurfaceLost is returned when the window surface is gone.
	ErrSurfaceLost = errors.New("gpucore: surface lost")

	// ErrDeviceLost is returned when the device stopped working.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrReleased is returned when using a released device.
	ErrReleased = errors.New("gpucore: device released")

	// ErrInvalidID is returned for unknown or destroyed resource IDs.
	ErrInvalidID = errors.New("gpucore: invalid resource id")

	// ErrNotHostVisible is returned by WriteBuffer on device-only buffers.
	ErrNotHostVisible = errors.New("gpucore: buffer is not host visible")
)

// IsStale reports whether err means the swapchain must be rebuilt.
func IsStale(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}
