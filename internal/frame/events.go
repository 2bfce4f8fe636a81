// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"fmt"

	"github.com/gogpu/particles/internal/swapchain"
)

// Event is a window-system or control event consumed by the
// Orchestrator. The set is closed.
type Event interface {
	event()
}

// CloseRequested asks the orchestrator to drain and release everything.
type CloseRequested struct{}

// Resized reports a new window extent in pixels. The swapchain is
// rebuilt lazily on the next redraw.
type Resized struct {
	Width, Height uint32
}

// CursorMoved reports pointer movement. It is ignored.
type CursorMoved struct {
	X, Y float64
}

// RedrawRequested runs one rendering pass.
type RedrawRequested struct{}

// Reconfigure replaces the swapchain preferences and forces a rebuild
// on the next redraw.
type Reconfigure struct {
	Swapchain swapchain.Preferences
}

func (CloseRequested) event()  {}
func (Resized) event()         {}
func (CursorMoved) event()     {}
func (RedrawRequested) event() {}
func (Reconfigure) event()     {}

func (CloseRequested) String() string  { return "CloseRequested" }
func (e Resized) String() string       { return fmt.Sprintf("Resized(%dx%d)", e.Width, e.Height) }
func (e CursorMoved) String() string   { return fmt.Sprintf("CursorMoved(%g, %g)", e.X, e.Y) }
func (RedrawRequested) String() string { return "RedrawRequested" }
func (Reconfigure) String() string     { return "Reconfigure" }

// State is the orchestrator state.
type State uint8

const (
	// StateAwaitingEvent waits for the next event.
	StateAwaitingEvent State = iota

	// StateRendering runs a rendering pass.
	StateRendering

	// StateClosing drains outstanding work and releases resources.
	StateClosing

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingEvent:
		return "AwaitingEvent"
	case StateRendering:
		return "Rendering"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}
