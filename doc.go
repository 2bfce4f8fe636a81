// Package particles runs a GPU particle simulation and draws it to a
// window, one frame per redraw.
//
// # Overview
//
// The particle field lives in a single device-local storage buffer. A
// compute queue advances it one tick per frame while a graphics queue
// draws it as a point list. Both queues use the same buffer without
// copies: the frame that draws tick k is submitted after tick k-1
// finished and before tick k starts, and the next tick waits for that
// frame's draw. The host blocks at most on the image it is about to
// reuse and on the previous tick.
//
// # Quick Start
//
//	cfg := config.Default()
//	cfg.Window.Headless = true
//
//	sim, err := particles.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer sim.Close(ctx)
//
//	for range 100 {
//	    if err := sim.Redraw(ctx); err != nil {
//	        return err
//	    }
//	}
//
// # Backends
//
// The sim backend executes everything on the CPU with configurable
// completion latency and queue ordering; it needs no window and is always
// registered. The wgpu backend (github.com/gogpu/particles/backend/wgpu)
// runs on Vulkan, Metal or DX12 and presents to a native window passed
// with [WithWindow]. Import it for its side effect:
//
//	import _ "github.com/gogpu/particles/backend/wgpu"
//
// # Events
//
// A Simulation is driven by [Event] values, either one at a time with
// [Simulation.Handle] or from a channel with [Simulation.Run]. Resizes
// and swapchain reconfiguration are coalesced into one rebuild at the
// start of the next redraw. [Pump] collects events from window system
// callbacks.
//
// # Observability
//
// Logging goes through [SetLogger] and is silent by default. Metrics are
// exported to a Prometheus registerer passed with [WithRegisterer]. Every
// frame is an OpenTelemetry span on the global tracer or the one passed
// with [WithTracer].
package particles
