// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package wgpu implements the particle device on gogpu/wgpu, the Pure Go
// WebGPU implementation for Vulkan, Metal and DX12.
//
// Importing the package registers the "wgpu" backend:
//
//	import _ "github.com/gogpu/particles/backend/wgpu"
//
// # Mapping
//
// WebGPU has one queue per device. Both gpucore queues submit to it, so
// every dependency between submissions is satisfied by submission order
// and Capabilities reports SeparateQueues false. Futures carry the wgpu
// submission index; waiting polls the last completed index with
// exponential backoff.
//
// WebGPU command buffers are single use. A gpucore command buffer keeps
// its command list and is encoded again on every submit.
//
// WebGPU has no push constants. A pipeline layout with a push constant
// range gets one extra bind group layout holding a uniform buffer, bound
// at the group after the declared ones. Each PushConstants command in a
// command list gets its own uniform buffer, written once when the list is
// recorded.
//
// A wgpu surface hands out one texture per frame rather than a fixed set
// of images. Configure returns placeholder views, one per requested
// image; the view of the image returned by Acquire resolves to the
// current surface texture when a render pass is encoded. Image indices
// rotate, so the per-image fences bound the number of frames in flight.
//
// # Build tags
//
// Building with the nogpu tag leaves the package empty.
package wgpu
