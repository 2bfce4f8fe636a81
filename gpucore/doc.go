// Package gpucore defines the device abstraction the particle scheduler
// is written against.
//
// The scheduler never talks to a graphics API directly. It creates
// resources through the [Device] interface using opaque IDs ([BufferID],
// [RenderPipelineID], ...), records work as a [CommandList], and submits
// command buffers to one of two queues with an explicit dependency list
// of [Future] values. Thin backends translate this onto a real API:
//
//	               +------------------+
//	               |  frame scheduler |
//	               +--------+---------+
//	                        |
//	                   gpucore.Device
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/wgpu   |          |   backend/sim   |
//	|  (gogpu/wgpu)   |          |  (in-memory)    |
//	+-----------------+          +-----------------+
//
// # Futures
//
// Every submission returns a [Future]. The zero value, [Now], is an
// already-completed token, so code that tracks "the last fence for this
// slot" can start from the zero value without special cases. Futures are
// joined by listing them in [SubmitInfo.WaitFor]; there are no nested
// future types.
//
// # Errors
//
// Errors fall into two classes. [ErrOutOfDate], [ErrSuboptimal] and
// [ErrTransientExtent] are recoverable by rebuilding the swapchain on a
// later frame. Everything else, including [ErrDeviceLost] and
// [ErrSurfaceLost], is fatal.
package gpucore
