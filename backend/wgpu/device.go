// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/logging"
)

// Fence polling intervals. Waits have no elapsed limit.
const (
	pollInitial = 50 * time.Microsecond
	pollMax     = 2 * time.Millisecond
)

type buffer struct {
	buf  *wgpu.Buffer
	desc gpucore.BufferDesc
}

type pipelineLayout struct {
	layout *wgpu.PipelineLayout

	// push emulates the push constant block; nil without one.
	push      *wgpu.BindGroupLayout
	pushGroup uint32
	pushSize  uint32
}

type renderPipeline struct {
	pipeline *wgpu.RenderPipeline
	layout   *pipelineLayout
	viewport gpucore.Extent
}

// Device is a gpucore.Device on a wgpu device.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue
	info     gputypes.AdapterInfo
	limits   gputypes.Limits

	compute  *queue
	graphics *queue
	surface  *Surface

	nextID   uint64
	buffers  map[gpucore.BufferID]*buffer
	modules  map[gpucore.ShaderModuleID]*wgpu.ShaderModule
	bgls     map[gpucore.BindGroupLayoutID]*wgpu.BindGroupLayout
	layouts  map[gpucore.PipelineLayoutID]*pipelineLayout
	computes map[gpucore.ComputePipelineID]*wgpu.ComputePipeline
	renders  map[gpucore.RenderPipelineID]*renderPipeline
	groups   map[gpucore.BindGroupID]*wgpu.BindGroup
	commands map[gpucore.CommandBufferID]*commandBuffer

	released bool
}

var _ gpucore.Device = (*Device)(nil)

func newDevice(instance *wgpu.Instance, adapter *wgpu.Adapter, dev *wgpu.Device) *Device {
	d := &Device{
		instance: instance,
		adapter:  adapter,
		dev:      dev,
		queue:    dev.Queue(),
		info:     adapter.Info(),
		limits:   dev.Limits(),
		buffers:  make(map[gpucore.BufferID]*buffer),
		modules:  make(map[gpucore.ShaderModuleID]*wgpu.ShaderModule),
		bgls:     make(map[gpucore.BindGroupLayoutID]*wgpu.BindGroupLayout),
		layouts:  make(map[gpucore.PipelineLayoutID]*pipelineLayout),
		computes: make(map[gpucore.ComputePipelineID]*wgpu.ComputePipeline),
		renders:  make(map[gpucore.RenderPipelineID]*renderPipeline),
		groups:   make(map[gpucore.BindGroupID]*wgpu.BindGroup),
		commands: make(map[gpucore.CommandBufferID]*commandBuffer),
	}
	d.compute = &queue{d: d, kind: gpucore.QueueCompute}
	d.graphics = &queue{d: d, kind: gpucore.QueueGraphics}
	return d
}

// Info returns the adapter description.
func (d *Device) Info() gputypes.AdapterInfo { return d.info }

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

func lookup[K ~uint64, V any](m map[K]V, id K, what string) (V, error) {
	v, ok := m[id]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %s %d", gpucore.ErrInvalidID, what, uint64(id))
	}
	return v, nil
}

// Capabilities implements gpucore.Device.
func (d *Device) Capabilities() gpucore.Capabilities {
	return gpucore.Capabilities{
		MaxBufferSize:                    d.limits.MaxBufferSize,
		MaxStorageBufferBindingSize:      d.limits.MaxStorageBufferBindingSize,
		MaxComputeWorkgroupsPerDimension: d.limits.MaxComputeWorkgroupsPerDimension,
	}
}

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if d.released {
		return gpucore.InvalidID, gpucore.ErrReleased
	}
	b, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  align4(desc.Size),
		Usage: bufferUsage(desc),
	})
	if err != nil {
		return gpucore.InvalidID, translate("create buffer "+desc.Label, err)
	}
	id := gpucore.BufferID(d.id())
	d.buffers[id] = &buffer{buf: b, desc: *desc}
	return id, nil
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	if b, ok := d.buffers[id]; ok {
		b.buf.Release()
		delete(d.buffers, id)
	}
}

// WriteBuffer implements gpucore.Device. The write is ordered before the
// next submission.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b, err := lookup(d.buffers, id, "buffer")
	if err != nil {
		return err
	}
	if !b.desc.HostVisible {
		return fmt.Errorf("%w: %q", gpucore.ErrNotHostVisible, b.desc.Label)
	}
	return translate("write buffer "+b.desc.Label, d.queue.WriteBuffer(b.buf, offset, pad4(data)))
}

// ReadBuffer implements gpucore.Device. It copies the range into a
// mappable buffer after all submitted work and maps it.
func (d *Device) ReadBuffer(ctx context.Context, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	src, err := lookup(d.buffers, id, "buffer")
	if err != nil {
		return nil, err
	}
	n := align4(size)
	staging, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "readback " + src.desc.Label,
		Size:  n,
		Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, translate("readback buffer", err)
	}
	defer staging.Release()

	enc, err := d.dev.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "readback"})
	if err != nil {
		return nil, translate("readback encoder", err)
	}
	enc.CopyBufferToBuffer(src.buf, offset, staging, 0, n)
	cb, err := enc.Finish()
	if err != nil {
		return nil, translate("readback encoder", err)
	}
	if _, err := d.queue.Submit(cb); err != nil {
		cb.Release()
		return nil, translate("readback submit", err)
	}

	if err := staging.Map(ctx, wgpu.MapModeRead, 0, n); err != nil {
		return nil, translate("readback map", err)
	}
	defer func() { _ = staging.Unmap() }()
	rng, err := staging.MappedRange(0, n)
	if err != nil {
		return nil, translate("readback range", err)
	}
	defer rng.Release()
	return append([]byte(nil), rng.Bytes()[:size]...), nil
}

// CreateShaderModule implements gpucore.Device.
func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if d.released {
		return gpucore.InvalidID, gpucore.ErrReleased
	}
	m, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: desc.Label, WGSL: desc.WGSL})
	if err != nil {
		return gpucore.InvalidID, translate("shader module "+desc.Label, err)
	}
	id := gpucore.ShaderModuleID(d.id())
	d.modules[id] = m
	return id, nil
}

// DestroyShaderModule implements gpucore.Device.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	if m, ok := d.modules[id]; ok {
		m.Release()
		delete(d.modules, id)
	}
}

// CreateBindGroupLayout implements gpucore.Device.
func (d *Device) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if d.released {
		return gpucore.InvalidID, gpucore.ErrReleased
	}
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		t, err := bufferBindingType(e.Type)
		if err != nil {
			return gpucore.InvalidID, err
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    e.Binding,
			Visibility: e.Visibility,
			Buffer:     &gputypes.BufferBindingLayout{Type: t, MinBindingSize: e.MinBindingSize},
		})
	}
	l, err := d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: desc.Label, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, translate("bind group layout "+desc.Label, err)
	}
	id := gpucore.BindGroupLayoutID(d.id())
	d.bgls[id] = l
	return id, nil
}

// DestroyBindGroupLayout implements gpucore.Device.
func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	if l, ok := d.bgls[id]; ok {
		l.Release()
		delete(d.bgls, id)
	}
}

// CreatePipelineLayout implements gpucore.Device. Push constant ranges
// become a uniform block at the group after the declared layouts.
func (d *Device) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	if d.released {
		return gpucore.InvalidID, gpucore.ErrReleased
	}
	bgls := make([]*wgpu.BindGroupLayout, 0, len(desc.BindGroupLayouts)+1)
	for _, id := range desc.BindGroupLayouts {
		l, err := lookup(d.bgls, id, "bind group layout")
		if err != nil {
			return gpucore.InvalidID, err
		}
		bgls = append(bgls, l)
	}

	pl := &pipelineLayout{}
	if len(desc.PushConstants) > 0 {
		stages, size := pushConstantRange(desc.PushConstants)
		push, err := d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label: desc.Label + " push constants",
			Entries: []gputypes.BindGroupLayoutEntry{{
				Binding:    0,
				Visibility: stages,
				Buffer: &gputypes.BufferBindingLayout{
					Type:           gputypes.BufferBindingTypeUniform,
					MinBindingSize: uint64(size),
				},
			}},
		})
		if err != nil {
			return gpucore.InvalidID, translate("push constant layout "+desc.Label, err)
		}
		pl.push, pl.pushGroup, pl.pushSize = push, uint32(len(bgls)), size
		bgls = append(bgls, push)
	}

	l, err := d.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{Label: desc.Label, BindGroupLayouts: bgls})
	if err != nil {
		if pl.push != nil {
			pl.push.Release()
		}
		return gpucore.InvalidID, translate("pipeline layout "+desc.Label, err)
	}
	pl.layout = l
	id := gpucore.PipelineLayoutID(d.id())
	d.layouts[id] = pl
	return id, nil
}

// DestroyPipelineLayout implements gpucore.Device.
func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	if l, ok := d.layouts[id]; ok {
		l.layout.Release()
		if l.push != nil {
			l.push.Release()
		}
		delete(d.layouts, id)
	}
}

// CreateComputePipeline implements gpucore.Device.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if d.released {
		return gpucore.InvalidID, gpucore.ErrReleased
	}
	l, err := lookup(d.layouts, desc.Layout, "pipeline layout")
	if err != nil {
		return gpucore.InvalidID, err
	}
	m, err := lookup(d.modules, desc.ShaderModule, "shader module")
	if err != nil {
		return gpucore.InvalidID, err
	}
	p, err := d.dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:      desc.Label,
		Layout:     l.layout,
		Module:     m,
		EntryPoint: desc.EntryPoint,
	})
	if err != nil {
		return gpucore.InvalidID, translate("compute pipeline "+desc.Label, err)
	}
	id := gpucore.ComputePipelineID(d.id())
	d.computes[id] = p
	return id, nil
}

// DestroyComputePipeline implements gpucore.Device.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	if p, ok := d.computes[id]; ok {
		p.Release()
		delete(d.computes, id)
	}
}

// CreateRenderPipeline implements gpucore.Device. The viewport is applied
// whenever the pipeline is bound.
func (d *Device) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	if d.released {
		return gpucore.InvalidID, gpucore.ErrReleased
	}
	l, err := lookup(d.layouts, desc.Layout, "pipeline layout")
	if err != nil {
		return gpucore.InvalidID, err
	}
	m, err := lookup(d.modules, desc.ShaderModule, "shader module")
	if err != nil {
		return gpucore.InvalidID, err
	}
	vbs, err := vertexBuffers(desc.VertexBuffers)
	if err != nil {
		return gpucore.InvalidID, err
	}
	p, err := d.dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: l.layout,
		Vertex: wgpu.VertexState{
			Module:     m,
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    vbs,
		},
		Primitive:   gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
		Multisample: gputypes.DefaultMultisampleState(),
		Fragment: &wgpu.FragmentState{
			Module:     m,
			EntryPoint: desc.FragmentEntryPoint,
			Targets: []gputypes.ColorTargetState{{
				Format:    desc.Format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return gpucore.InvalidID, translate("render pipeline "+desc.Label, err)
	}
	id := gpucore.RenderPipelineID(d.id())
	d.renders[id] = &renderPipeline{pipeline: p, layout: l, viewport: desc.Viewport}
	return id, nil
}

// DestroyRenderPipeline implements gpucore.Device.
func (d *Device) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	if p, ok := d.renders[id]; ok {
		p.pipeline.Release()
		delete(d.renders, id)
	}
}

// CreateBindGroup implements gpucore.Device.
func (d *Device) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if d.released {
		return gpucore.InvalidID, gpucore.ErrReleased
	}
	l, err := lookup(d.bgls, desc.Layout, "bind group layout")
	if err != nil {
		return gpucore.InvalidID, err
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		b, err := lookup(d.buffers, e.Buffer, "buffer")
		if err != nil {
			return gpucore.InvalidID, err
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: e.Binding,
			Buffer:  b.buf,
			Offset:  e.Offset,
			Size:    e.Size,
		})
	}
	g, err := d.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: desc.Label, Layout: l, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, translate("bind group "+desc.Label, err)
	}
	id := gpucore.BindGroupID(d.id())
	d.groups[id] = g
	return id, nil
}

// DestroyBindGroup implements gpucore.Device.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	if g, ok := d.groups[id]; ok {
		g.Release()
		delete(d.groups, id)
	}
}

// Queue implements gpucore.Device. Both kinds submit to the single
// WebGPU queue.
func (d *Device) Queue(kind gpucore.QueueKind) gpucore.Queue {
	if kind == gpucore.QueueCompute {
		return d.compute
	}
	return d.graphics
}

// Wait implements gpucore.Device. It polls the last completed submission
// index until it reaches f.
func (d *Device) Wait(ctx context.Context, f gpucore.Future) error {
	if f.IsNow() {
		return nil
	}
	if d.released {
		return gpucore.ErrReleased
	}
	if last := d.queue.LastSubmissionIndex(); f.Serial > last {
		return fmt.Errorf("wgpu: wait on %v, last submission is %d", f, last)
	}
	if d.queue.Poll() >= f.Serial {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pollInitial
	b.MaxInterval = pollMax
	b.MaxElapsedTime = 0
	err := backoff.Retry(func() error {
		if d.queue.Poll() >= f.Serial {
			return nil
		}
		d.dev.Poll(wgpu.PollPoll)
		return errPending
	}, backoff.WithContext(b, ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("wgpu: wait on %v: %w", f, ctxErr)
		}
		return fmt.Errorf("wgpu: wait on %v: %w", f, err)
	}
	return nil
}

// WaitIdle implements gpucore.Device.
func (d *Device) WaitIdle() error {
	if d.released {
		return gpucore.ErrReleased
	}
	if err := d.dev.WaitIdle(); err != nil {
		return translate("wait idle", err)
	}
	d.dev.Poll(wgpu.PollPoll)
	return nil
}

// Release implements gpucore.Device. It also releases the surface.
func (d *Device) Release() {
	if d.released {
		return
	}
	if n := d.live(); n > 0 {
		logging.Logger().Warn("wgpu: device released with live resources", "count", n)
	}
	if d.surface != nil {
		d.surface.release()
	}
	d.dev.Release()
	d.adapter.Release()
	d.instance.Release()
	d.released = true
	logging.Logger().Info("wgpu: device released", "adapter", d.info.Name)
}

func (d *Device) live() int {
	return len(d.buffers) + len(d.modules) + len(d.bgls) + len(d.layouts) +
		len(d.computes) + len(d.renders) + len(d.groups) + len(d.commands)
}
