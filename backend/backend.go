package backend

import (
	"context"
	"errors"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/particle"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoAdapter is returned when a backend finds no usable GPU.
	ErrNoAdapter = errors.New("backend: no suitable adapter")
)

// NativeWindow exposes the platform handles a surface is created from.
// On X11 display is the Display pointer and window the Window XID; on
// Windows display is the HINSTANCE and window the HWND; on macOS display
// is 0 and window the CAMetalLayer.
type NativeWindow interface {
	Handles() (display, window uintptr)
}

// Target describes what a provider opens a device for.
type Target struct {
	// Window is the window to present to. Providers that need a real
	// window fail with ErrBackendNotAvailable when it is nil.
	Window NativeWindow

	// Extent is the initial window size in physical pixels.
	Extent gpucore.Extent

	// HighPerformance prefers a discrete adapter.
	HighPerformance bool

	// Layout and WorkgroupSize describe the simulation program for
	// providers that execute compute work on the CPU.
	Layout        particle.Layout
	WorkgroupSize uint32
}

// Session is an opened device with its presentation surface.
type Session struct {
	// Backend is the name of the provider that opened the session.
	Backend string

	Device  gpucore.Device
	Surface gpucore.Surface
}

// Provider opens devices on one graphics stack.
//
// Providers must be registered via Register() and are selected via
// Get(), Default() or Open().
type Provider interface {
	// Name returns the backend identifier (e.g., "wgpu", "sim").
	Name() string

	// Open creates a device and a surface for t.
	Open(ctx context.Context, t Target) (*Session, error)
}
