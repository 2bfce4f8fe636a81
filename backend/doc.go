// Package backend selects the graphics stack a simulation runs on.
//
// Providers register themselves by name from init() functions and are
// selected at runtime. Import the providers you want to be available:
//
//	import (
//		_ "github.com/gogpu/particles/backend/sim"
//		_ "github.com/gogpu/particles/backend/wgpu"
//	)
//
// # Backend Selection
//
// Use Open with BackendAuto to take the best provider that works on this
// machine, or name one explicitly:
//
//	s, err := backend.Open(ctx, backend.BackendAuto, backend.Target{
//		Window: win,
//		Extent: gpucore.Extent{Width: 800, Height: 600},
//	})
//
// # Available Backends
//
//   - "wgpu": gogpu/wgpu on Vulkan, Metal or DX12 (requires a window)
//   - "sim": deterministic in-memory device, always available
package backend
