// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package frame drives the simulation one frame at a time.
//
// The Orchestrator is an explicit state machine fed with Event values:
//
//	AwaitingEvent --RedrawRequested--> Rendering --> AwaitingEvent
//	AwaitingEvent --CloseRequested--> Closing --> Closed
//
// A rendering pass rebuilds the swapchain if needed, acquires an image,
// waits for that image's previous frame, submits the render command
// buffer joined after the previous pass and the previous compute tick,
// presents, then waits for the previous compute tick and submits the
// next one ordered after this frame's render. The particle buffer is
// shared by both queues and never copied; the one-tick lag is what keeps
// render and compute from touching it at the same time.
//
// Resize and reconfiguration events only set a flag. The swapchain is
// rebuilt at the start of the next pass, so a burst of resizes costs one
// rebuild.
//
// Pump adapts callback-based window systems ([gpucontext.EventSource])
// to Event values.
package frame
