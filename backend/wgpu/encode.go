// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/particles/gpucore"
)

// pushBinding is the uniform block standing in for one PushConstants
// command.
type pushBinding struct {
	buf   *wgpu.Buffer
	group *wgpu.BindGroup
	index uint32
}

// commandBuffer is a recorded command list, encoded again on each submit.
type commandBuffer struct {
	list   gpucore.CommandList
	pushes map[int]pushBinding
}

func (cb *commandBuffer) release() {
	for _, p := range cb.pushes {
		p.group.Release()
		p.buf.Release()
	}
	cb.pushes = nil
}

// CreateCommandBuffer implements gpucore.Device. Push constant data is
// uploaded here, once per PushConstants command.
func (d *Device) CreateCommandBuffer(list *gpucore.CommandList) (gpucore.CommandBufferID, error) {
	if d.released {
		return gpucore.InvalidID, gpucore.ErrReleased
	}
	if err := list.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	cb := &commandBuffer{
		list: gpucore.CommandList{
			Label:    list.Label,
			Commands: append([]gpucore.Command(nil), list.Commands...),
		},
		pushes: make(map[int]pushBinding),
	}

	var bound *renderPipeline
	for i, c := range cb.list.Commands {
		switch c := c.(type) {
		case gpucore.SetRenderPipeline:
			p, err := lookup(d.renders, c.Pipeline, "render pipeline")
			if err != nil {
				cb.release()
				return gpucore.InvalidID, err
			}
			bound = p
		case gpucore.PushConstants:
			p, err := d.pushConstants(list.Label, bound, c)
			if err != nil {
				cb.release()
				return gpucore.InvalidID, err
			}
			cb.pushes[i] = p
		}
	}

	id := gpucore.CommandBufferID(d.id())
	d.commands[id] = cb
	return id, nil
}

func (d *Device) pushConstants(label string, bound *renderPipeline, c gpucore.PushConstants) (pushBinding, error) {
	if bound == nil || bound.layout.push == nil {
		return pushBinding{}, fmt.Errorf("%w: %s: push constants without a pipeline declaring them",
			gpucore.ErrInvalidCommandList, label)
	}
	l := bound.layout
	if c.Offset+uint32(len(c.Data)) > l.pushSize {
		return pushBinding{}, fmt.Errorf("%w: %s: push constants [%d, %d) exceed block of %d bytes",
			gpucore.ErrInvalidCommandList, label, c.Offset, c.Offset+uint32(len(c.Data)), l.pushSize)
	}

	data := make([]byte, align4(uint64(l.pushSize)))
	copy(data[c.Offset:], c.Data)
	buf, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " push constants",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return pushBinding{}, translate("push constant buffer", err)
	}
	if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
		buf.Release()
		return pushBinding{}, translate("push constant write", err)
	}
	group, err := d.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label + " push constants",
		Layout:  l.push,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: buf}},
	})
	if err != nil {
		buf.Release()
		return pushBinding{}, translate("push constant bind group", err)
	}
	return pushBinding{buf: buf, group: group, index: l.pushGroup}, nil
}

// DestroyCommandBuffer implements gpucore.Device.
func (d *Device) DestroyCommandBuffer(id gpucore.CommandBufferID) {
	if cb, ok := d.commands[id]; ok {
		cb.release()
		delete(d.commands, id)
	}
}

// encode turns a recorded list into a single-use wgpu command buffer.
func (d *Device) encode(cb *commandBuffer) (*wgpu.CommandBuffer, error) {
	enc, err := d.dev.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: cb.list.Label})
	if err != nil {
		return nil, translate("command encoder", err)
	}
	if err := d.record(enc, cb); err != nil {
		enc.DiscardEncoding()
		return nil, err
	}
	out, err := enc.Finish()
	if err != nil {
		return nil, translate("finish "+cb.list.Label, err)
	}
	return out, nil
}

func (d *Device) record(enc *wgpu.CommandEncoder, cb *commandBuffer) error {
	var (
		cp *wgpu.ComputePassEncoder
		rp *wgpu.RenderPassEncoder
	)
	for i, c := range cb.list.Commands {
		var err error
		switch c := c.(type) {
		case gpucore.CopyBuffer:
			var src, dst *buffer
			if src, err = lookup(d.buffers, c.Src, "buffer"); err != nil {
				return err
			}
			if dst, err = lookup(d.buffers, c.Dst, "buffer"); err != nil {
				return err
			}
			enc.CopyBufferToBuffer(src.buf, c.SrcOffset, dst.buf, c.DstOffset, align4(c.Size))

		case gpucore.BeginComputePass:
			cp, err = enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: c.Label})
		case gpucore.SetComputePipeline:
			var p *wgpu.ComputePipeline
			if p, err = lookup(d.computes, c.Pipeline, "compute pipeline"); err == nil {
				cp.SetPipeline(p)
			}
		case gpucore.Dispatch:
			cp.Dispatch(c.X, c.Y, c.Z)
		case gpucore.EndComputePass:
			err = cp.End()
			cp = nil

		case gpucore.BeginRenderPass:
			var view *wgpu.TextureView
			if view, err = d.targetView(c.Target); err == nil {
				rp, err = enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
					Label: c.Label,
					ColorAttachments: []wgpu.RenderPassColorAttachment{{
						View:       view,
						LoadOp:     gputypes.LoadOpClear,
						StoreOp:    gputypes.StoreOpStore,
						ClearValue: c.Clear,
					}},
				})
			}
		case gpucore.SetRenderPipeline:
			var p *renderPipeline
			if p, err = lookup(d.renders, c.Pipeline, "render pipeline"); err == nil {
				rp.SetPipeline(p.pipeline)
				rp.SetViewport(0, 0, float32(p.viewport.Width), float32(p.viewport.Height), 0, 1)
			}
		case gpucore.SetVertexBuffer:
			var b *buffer
			if b, err = lookup(d.buffers, c.Buffer, "buffer"); err == nil {
				rp.SetVertexBuffer(c.Slot, b.buf, c.Offset)
			}
		case gpucore.PushConstants:
			p := cb.pushes[i]
			rp.SetBindGroup(p.index, p.group, nil)
		case gpucore.Draw:
			rp.Draw(c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance)
		case gpucore.EndRenderPass:
			err = rp.End()
			rp = nil

		case gpucore.SetBindGroup:
			var g *wgpu.BindGroup
			if g, err = lookup(d.groups, c.Group, "bind group"); err == nil {
				if cp != nil {
					cp.SetBindGroup(c.Index, g, nil)
				} else {
					rp.SetBindGroup(c.Index, g, nil)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("wgpu: %s: command %d (%T): %w", cb.list.Label, i, c, err)
		}
	}
	return nil
}

func (d *Device) targetView(id gpucore.TextureViewID) (*wgpu.TextureView, error) {
	if d.surface == nil {
		return nil, fmt.Errorf("%w: texture view %d", gpucore.ErrInvalidID, uint64(id))
	}
	return d.surface.view(id)
}

// queue is one of the two gpucore queues over the WebGPU queue.
type queue struct {
	d    *Device
	kind gpucore.QueueKind
}

// Kind implements gpucore.Queue.
func (q *queue) Kind() gpucore.QueueKind { return q.kind }

// Submit implements gpucore.Queue. Every future in info.WaitFor belongs
// to an earlier submission on the same WebGPU queue, so submission order
// already satisfies it.
func (q *queue) Submit(info *gpucore.SubmitInfo) (gpucore.Future, error) {
	d := q.d
	if d.released {
		return gpucore.Now(), gpucore.ErrReleased
	}
	last := d.queue.LastSubmissionIndex()
	for _, f := range info.WaitFor {
		if f.Serial > last {
			return gpucore.Now(), fmt.Errorf("wgpu: %v submission waits on unsubmitted %v", q.kind, f)
		}
	}

	cbs := make([]*wgpu.CommandBuffer, 0, len(info.Commands))
	release := func() {
		for _, cb := range cbs {
			cb.Release()
		}
	}
	for _, id := range info.Commands {
		rec, err := lookup(d.commands, id, "command buffer")
		if err != nil {
			release()
			return gpucore.Now(), err
		}
		cb, err := d.encode(rec)
		if err != nil {
			release()
			return gpucore.Now(), err
		}
		cbs = append(cbs, cb)
	}

	idx, err := d.queue.Submit(cbs...)
	if err != nil {
		release()
		return gpucore.Now(), translate(q.kind.String()+" submit", err)
	}
	f := gpucore.Future{Queue: q.kind, Serial: idx}

	if p := info.Present; p != nil {
		s, ok := p.Surface.(*Surface)
		if !ok || s != d.surface {
			return f, fmt.Errorf("wgpu: present to a foreign surface %T", p.Surface)
		}
		if err := s.present(p.Image); err != nil {
			return f, err
		}
	}
	return f, nil
}
