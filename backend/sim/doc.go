// Package sim provides an in-memory gpucore device for tests and
// headless runs.
//
// The device models two asynchronous queues. Submissions are executed
// lazily, in an order chosen by [WithOrder], bounded only by queue order
// and the explicit dependency list of each submission. A scheduler that
// forgets a dependency therefore reads stale or future data, which shows
// up in the [DrawRecord] passed to a [WithDrawObserver] callback.
//
// The device also tracks what the host has observed through Wait. It
// records a violation when the host:
//
//   - resubmits a command buffer or presents a swap image whose previous
//     submission it has not waited for
//   - destroys a resource an unobserved submission still references
//   - draws with a pipeline whose viewport differs from the target
//   - releases the device with live resources or unobserved work
//
// Compute dispatches run a [Kernel]; [ParticleKernel] is a CPU rendition
// of the simulation program.
//
// Import the package for its side effect to make the "sim" backend
// available:
//
//	import _ "github.com/gogpu/particles/backend/sim"
package sim
