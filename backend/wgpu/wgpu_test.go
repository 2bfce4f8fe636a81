// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/particles/backend"
	"github.com/gogpu/particles/gpucore"
)

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendWGPU) {
		t.Fatal("wgpu backend not registered")
	}
}

func TestOpenWithoutWindow(t *testing.T) {
	_, err := provider{}.Open(context.Background(), backend.Target{})
	if !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("Open() error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestBufferBindingType(t *testing.T) {
	tests := []struct {
		in   gpucore.BindingType
		want gputypes.BufferBindingType
	}{
		{gpucore.BindingTypeUniformBuffer, gputypes.BufferBindingTypeUniform},
		{gpucore.BindingTypeStorageBuffer, gputypes.BufferBindingTypeStorage},
		{gpucore.BindingTypeReadOnlyStorageBuffer, gputypes.BufferBindingTypeReadOnlyStorage},
	}
	for _, tt := range tests {
		got, err := bufferBindingType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("bufferBindingType(%v) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := bufferBindingType(0); err == nil {
		t.Error("bufferBindingType(0) error = nil")
	}
}

func TestVertexBuffers(t *testing.T) {
	got, err := vertexBuffers([]gpucore.VertexBufferLayout{{
		Stride:     8,
		Attributes: []gpucore.VertexAttribute{{Location: 0, Components: 2}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ArrayStride != 8 || got[0].StepMode != gputypes.VertexStepModeVertex {
		t.Fatalf("vertexBuffers() = %+v", got)
	}
	if a := got[0].Attributes; len(a) != 1 || a[0].Format != gputypes.VertexFormatFloat32x2 {
		t.Errorf("attributes = %+v, want one float32x2", a)
	}
	if _, err := vertexBuffers([]gpucore.VertexBufferLayout{{
		Attributes: []gpucore.VertexAttribute{{Components: 5}},
	}}); err == nil {
		t.Error("vertexBuffers() accepted 5 components")
	}
}

func TestBufferUsage(t *testing.T) {
	tests := []struct {
		name string
		desc gpucore.BufferDesc
		want gpucore.BufferUsage
	}{
		{
			"storage",
			gpucore.BufferDesc{Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst},
			gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst | gpucore.BufferUsageCopySrc,
		},
		{
			"staging",
			gpucore.BufferDesc{Usage: gpucore.BufferUsageCopySrc, HostVisible: true},
			gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst,
		},
		{
			"readback",
			gpucore.BufferDesc{Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst},
			gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
		},
	}
	for _, tt := range tests {
		if got := bufferUsage(&tt.desc); got != tt.want {
			t.Errorf("%s: bufferUsage() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPad4(t *testing.T) {
	if got := pad4([]byte{1, 2, 3, 4}); len(got) != 4 {
		t.Errorf("pad4(4 bytes) has %d bytes", len(got))
	}
	got := pad4([]byte{1, 2, 3, 4, 5})
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 0, 0, 0}) {
		t.Errorf("pad4(5 bytes) = %v", got)
	}
	if align4(0) != 0 || align4(1) != 4 || align4(8) != 8 {
		t.Error("align4 does not round up to multiples of 4")
	}
}

func TestPushConstantRange(t *testing.T) {
	stages, size := pushConstantRange([]gpucore.PushConstantRange{
		{Stages: gpucore.ShaderStageVertex, Size: 4},
		{Stages: gpucore.ShaderStageFragment, Size: 8},
	})
	if stages != gpucore.ShaderStageVertex|gpucore.ShaderStageFragment || size != 8 {
		t.Errorf("pushConstantRange() = %v, %d", stages, size)
	}
}

func TestPresentModes(t *testing.T) {
	in := make([]gpucore.PresentMode, 1, 4)
	in[0] = gpucore.PresentModeMailbox
	got := presentModes(in)
	if len(got) != 2 || got[1] != gpucore.PresentModeFifo {
		t.Errorf("presentModes() = %v, want Fifo appended", got)
	}
	if in[:2][1] == gpucore.PresentModeFifo {
		t.Error("presentModes() wrote into the caller's backing array")
	}
	withFifo := []gpucore.PresentMode{gpucore.PresentModeFifo}
	if got := presentModes(withFifo); len(got) != 1 {
		t.Errorf("presentModes(%v) = %v", withFifo, got)
	}
}

func TestSurfaceFormats(t *testing.T) {
	got := surfaceFormats([]gpucore.TextureFormat{
		gputypes.TextureFormatR8Unorm,
		gpucore.TextureFormatBGRA8UnormSrgb,
		gpucore.TextureFormatRGBA8Unorm,
	})
	want := []gpucore.TextureFormat{gpucore.TextureFormatBGRA8UnormSrgb, gpucore.TextureFormatRGBA8Unorm}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("surfaceFormats() = %v, want %v", got, want)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{wgpu.ErrSurfaceOutdated, gpucore.ErrOutOfDate},
		{wgpu.ErrSurfaceLost, gpucore.ErrSurfaceLost},
		{wgpu.ErrDeviceLost, gpucore.ErrDeviceLost},
		{hal.ErrZeroArea, gpucore.ErrTransientExtent},
		{wgpu.ErrReleased, gpucore.ErrReleased},
	}
	for _, tt := range tests {
		if err := translate("op", tt.in); !errors.Is(err, tt.want) {
			t.Errorf("translate(%v) = %v, want %v", tt.in, err, tt.want)
		}
	}
	if translate("op", nil) != nil {
		t.Error("translate(nil) != nil")
	}
	other := errors.New("other")
	if err := translate("op", other); !errors.Is(err, other) {
		t.Errorf("translate(other) = %v, want it wrapped", err)
	}
}

// openHeadless opens a device without a surface, skipping the test when
// no adapter is available.
func openHeadless(t *testing.T) *Device {
	t.Helper()
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		t.Skipf("no wgpu instance: %v", err)
	}
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		instance.Release()
		t.Skipf("no GPU adapter: %v", err)
	}
	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		t.Skipf("no GPU device: %v", err)
	}
	d := newDevice(instance, adapter, dev)
	t.Cleanup(d.Release)
	return d
}

func TestDeviceBufferRoundTrip(t *testing.T) {
	d := openHeadless(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data := []byte("particles!") // not a multiple of 4
	staging, err := d.CreateBuffer(&gpucore.BufferDesc{
		Label:       "staging",
		Size:        uint64(len(data)),
		Usage:       gpucore.BufferUsageCopySrc,
		HostVisible: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyBuffer(staging)
	dst, err := d.CreateBuffer(&gpucore.BufferDesc{
		Label: "storage",
		Size:  uint64(len(data)),
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyBuffer(dst)

	if err := d.WriteBuffer(dst, 0, data); !errors.Is(err, gpucore.ErrNotHostVisible) {
		t.Errorf("WriteBuffer(device-only) error = %v, want ErrNotHostVisible", err)
	}
	if err := d.WriteBuffer(staging, 0, data); err != nil {
		t.Fatal(err)
	}

	list := gpucore.CommandList{Label: "copy"}
	list.Add(gpucore.CopyBuffer{Src: staging, Dst: dst, Size: uint64(len(data))})
	cb, err := d.CreateCommandBuffer(&list)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyCommandBuffer(cb)

	// The command buffer is reusable.
	var f gpucore.Future
	for range 2 {
		if f, err = d.Queue(gpucore.QueueCompute).Submit(&gpucore.SubmitInfo{
			Commands: []gpucore.CommandBufferID{cb},
			WaitFor:  gpucore.Join(f),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Wait(ctx, f); err != nil {
		t.Fatal(err)
	}

	got, err := d.ReadBuffer(ctx, dst, 0, uint64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadBuffer() = %q, want %q", got, data)
	}
	if err := d.WaitIdle(); err != nil {
		t.Errorf("WaitIdle() = %v", err)
	}
}

func TestWaitUnsubmitted(t *testing.T) {
	d := openHeadless(t)
	f := gpucore.Future{Queue: gpucore.QueueCompute, Serial: 1 << 40}
	if err := d.Wait(context.Background(), f); err == nil {
		t.Error("Wait() on an unsubmitted future returned nil")
	}
}
