// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/particles/gpucore"
)

// bufferBindingType converts a gpucore binding type.
func bufferBindingType(t gpucore.BindingType) (gputypes.BufferBindingType, error) {
	switch t {
	case gpucore.BindingTypeUniformBuffer:
		return gputypes.BufferBindingTypeUniform, nil
	case gpucore.BindingTypeStorageBuffer:
		return gputypes.BufferBindingTypeStorage, nil
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		return gputypes.BufferBindingTypeReadOnlyStorage, nil
	}
	return 0, fmt.Errorf("wgpu: unsupported binding type %v", t)
}

// vertexFormat returns the float vertex format with n components.
func vertexFormat(n uint32) (gputypes.VertexFormat, error) {
	switch n {
	case 1:
		return gputypes.VertexFormatFloat32, nil
	case 2:
		return gputypes.VertexFormatFloat32x2, nil
	case 3:
		return gputypes.VertexFormatFloat32x3, nil
	case 4:
		return gputypes.VertexFormatFloat32x4, nil
	}
	return 0, fmt.Errorf("wgpu: unsupported vertex attribute with %d components", n)
}

// vertexBuffers converts vertex buffer layouts.
func vertexBuffers(in []gpucore.VertexBufferLayout) ([]gputypes.VertexBufferLayout, error) {
	out := make([]gputypes.VertexBufferLayout, 0, len(in))
	for _, vb := range in {
		l := gputypes.VertexBufferLayout{
			ArrayStride: vb.Stride,
			StepMode:    gputypes.VertexStepModeVertex,
		}
		for _, a := range vb.Attributes {
			f, err := vertexFormat(a.Components)
			if err != nil {
				return nil, err
			}
			l.Attributes = append(l.Attributes, gputypes.VertexAttribute{
				Format:         f,
				Offset:         a.Offset,
				ShaderLocation: a.Location,
			})
		}
		out = append(out, l)
	}
	return out, nil
}

// bufferUsage adds the usages the device relies on: host-visible buffers
// are written through the queue and every buffer that cannot be mapped
// can be read back for diagnostics.
func bufferUsage(desc *gpucore.BufferDesc) gpucore.BufferUsage {
	u := desc.Usage
	if desc.HostVisible {
		u |= gpucore.BufferUsageCopyDst
	}
	if u&(gpucore.BufferUsageMapRead|gpucore.BufferUsageMapWrite) == 0 {
		u |= gpucore.BufferUsageCopySrc
	}
	return u
}

// align4 rounds n up to a multiple of 4, the copy and mapping alignment.
func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}

// pad4 returns data extended with zeros to a multiple of 4 bytes.
func pad4(data []byte) []byte {
	n := align4(uint64(len(data)))
	if n == uint64(len(data)) {
		return data
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

// pushConstantRange merges the declared ranges into one block.
func pushConstantRange(ranges []gpucore.PushConstantRange) (gpucore.ShaderStages, uint32) {
	var stages gpucore.ShaderStages
	var size uint32
	for _, r := range ranges {
		stages |= r.Stages
		size = max(size, r.Size)
	}
	return stages, size
}

// surfaceFormats keeps the formats the scheduler can render to, in order.
func surfaceFormats(formats []gpucore.TextureFormat) []gpucore.TextureFormat {
	out := make([]gpucore.TextureFormat, 0, len(formats))
	for _, f := range formats {
		switch f {
		case gpucore.TextureFormatBGRA8Unorm, gpucore.TextureFormatBGRA8UnormSrgb,
			gpucore.TextureFormatRGBA8Unorm, gpucore.TextureFormatRGBA8UnormSrgb,
			gpucore.TextureFormatRGBA16Float:
			out = append(out, f)
		}
	}
	return out
}

// presentModes returns modes with Fifo appended when missing.
func presentModes(modes []gpucore.PresentMode) []gpucore.PresentMode {
	for _, m := range modes {
		if m == gpucore.PresentModeFifo {
			return modes
		}
	}
	return append(slices.Clip(modes), gpucore.PresentModeFifo)
}
