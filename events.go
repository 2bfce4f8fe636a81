package particles

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/particles/internal/frame"
)

// Event is an input to [Simulation.Handle]. Window system adapters
// translate their callbacks into these values.
type Event = frame.Event

// Events understood by a Simulation.
type (
	// CloseRequested drains in-flight work and closes the simulation.
	CloseRequested = frame.CloseRequested

	// Resized reports a new window size. The swapchain is rebuilt at the
	// start of the next redraw.
	Resized = frame.Resized

	// CursorMoved is accepted and ignored.
	CursorMoved = frame.CursorMoved

	// RedrawRequested renders one frame and advances the simulation one
	// tick.
	RedrawRequested = frame.RedrawRequested

	// Reconfigure replaces the swapchain preferences. The swapchain is
	// rebuilt at the start of the next redraw.
	Reconfigure = frame.Reconfigure
)

// State is the scheduling state of a Simulation.
type State = frame.State

// Scheduling states.
const (
	StateAwaitingEvent = frame.StateAwaitingEvent
	StateRendering     = frame.StateRendering
	StateClosing       = frame.StateClosing
	StateClosed        = frame.StateClosed
)

// Stats counts scheduling activity.
type Stats = frame.Stats

// Pump queues events produced by window system callbacks until the main
// loop drains them.
type Pump = frame.Pump

// NewPump subscribes a Pump to the resize, cursor and key callbacks of
// src. Escape requests close.
func NewPump(src gpucontext.EventSource) *Pump {
	return frame.NewPump(src)
}
