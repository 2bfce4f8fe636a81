// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sim

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/gogpu/particles/gpucore"
)

type queue struct {
	d    *Device
	kind gpucore.QueueKind
}

func (q *queue) Kind() gpucore.QueueKind { return q.kind }

func (q *queue) Submit(info *gpucore.SubmitInfo) (gpucore.Future, error) {
	return q.d.submit(q.kind, info)
}

type submission struct {
	serial  uint64
	queue   gpucore.QueueKind
	prev    uint64
	lists   []*gpucore.CommandList
	refs    []uint64
	waitFor []gpucore.Future
	present *presentTarget

	executed bool
	observed bool
}

type presentTarget struct {
	surface *Surface
	image   uint32
	gen     uint64
}

func (s *submission) future() gpucore.Future {
	return gpucore.Future{Queue: s.queue, Serial: s.serial}
}

// observedSerial reports whether the host has seen serial complete.
// Pruned submissions were observed.
func (d *Device) observedSerial(serial uint64) bool {
	s, ok := d.subs[serial]
	return !ok || s.observed
}

func (d *Device) submit(kind gpucore.QueueKind, info *gpucore.SubmitInfo) (gpucore.Future, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return gpucore.Now(), err
	}

	s := &submission{queue: kind}
	for _, id := range info.Commands {
		cb, ok := lookup[*commandBuffer](d, uint64(id))
		if !ok {
			return gpucore.Now(), fmt.Errorf("%w: command buffer %d", gpucore.ErrInvalidID, id)
		}
		if last, ok := d.cbLast[id]; ok && !d.observedSerial(last.Serial) {
			d.violate("command buffer %d (%s) resubmitted while %v was not waited for", id, cb.list.Label, last)
		}
		s.lists = append(s.lists, &cb.list)
		s.refs = append(s.refs, cb.refs...)
	}
	for _, f := range info.WaitFor {
		if f.Serial > d.serial {
			return gpucore.Now(), fmt.Errorf("%w: dependency %v was never submitted", gpucore.ErrInvalidID, f)
		}
		if !f.IsNow() {
			s.waitFor = append(s.waitFor, f)
		}
	}

	var surf *Surface
	if info.Present != nil {
		var ok bool
		surf, ok = info.Present.Surface.(*Surface)
		if !ok || surf.d != d {
			return gpucore.Now(), fmt.Errorf("sim: present to a surface of another device")
		}
		if err := surf.checkPresent(info.Present.Image); err != nil {
			return gpucore.Now(), err
		}
		s.present = &presentTarget{surface: surf, image: info.Present.Image, gen: surf.gen}
	}

	d.serial++
	s.serial = d.serial
	s.prev = d.lastOn[kind]
	d.lastOn[kind] = s.serial
	for _, id := range info.Commands {
		d.cbLast[id] = s.future()
	}
	d.subs[s.serial] = s
	d.pending = append(d.pending, s)
	d.stats.Submissions++
	d.stats.MaxPending = max(d.stats.MaxPending, len(d.pending))

	var presentErr error
	if surf != nil {
		presentErr = surf.present(s)
		d.stats.Presents++
	}

	for len(d.pending) > d.opts.latency {
		if err := d.execute(d.next()); err != nil {
			return s.future(), err
		}
	}
	return s.future(), presentErr
}

// next picks the submission the simulated GPU runs when it is not told to.
func (d *Device) next() *submission {
	var prefer gpucore.QueueKind
	switch d.opts.order {
	case OrderComputeFirst:
		prefer = gpucore.QueueCompute
	case OrderGraphicsFirst:
		prefer = gpucore.QueueGraphics
	default:
		return d.pending[0]
	}
	for _, s := range d.pending {
		if s.queue == prefer {
			return s
		}
	}
	return d.pending[0]
}

// execute runs s after everything it depends on. Errors mark the device
// lost.
func (d *Device) execute(s *submission) error {
	if s.executed {
		return nil
	}
	if p, ok := d.subs[s.prev]; ok {
		if err := d.execute(p); err != nil {
			return err
		}
	}
	for _, f := range s.waitFor {
		if p, ok := d.subs[f.Serial]; ok {
			if err := d.execute(p); err != nil {
				return err
			}
		}
	}

	s.executed = true
	if i := slices.Index(d.pending, s); i >= 0 {
		d.pending = slices.Delete(d.pending, i, i+1)
	}
	d.stats.Executed++
	for _, l := range s.lists {
		if err := d.run(s, l); err != nil {
			d.lost = fmt.Errorf("submission #%d (%s): %w", s.serial, l.Label, err)
			return fmt.Errorf("%w: %v", gpucore.ErrDeviceLost, d.lost)
		}
	}
	return nil
}

// observe marks s, every earlier submission on its queue and everything
// they waited for as seen complete by the host.
func (d *Device) observe(s *submission) {
	stack := []*submission{s}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for y := x; y != nil && !y.observed; y = d.subs[y.prev] {
			y.observed = true
			for _, f := range y.waitFor {
				if p, ok := d.subs[f.Serial]; ok && !p.observed {
					stack = append(stack, p)
				}
			}
		}
	}
}

// prune forgets submissions that are executed and observed.
func (d *Device) prune() {
	for serial, s := range d.subs {
		if s.executed && s.observed {
			delete(d.subs, serial)
		}
	}
}

type passState struct {
	compute  gpucore.ComputePipelineID
	render   gpucore.RenderPipelineID
	groups   map[uint32]gpucore.BindGroupID
	push     []byte
	target   gpucore.TextureViewID
	inRender bool
}

func (d *Device) run(s *submission, l *gpucore.CommandList) error {
	var st passState
	for _, cmd := range l.Commands {
		switch c := cmd.(type) {
		case gpucore.CopyBuffer:
			if err := d.copyBuffer(c); err != nil {
				return err
			}
		case gpucore.BeginComputePass:
			st = passState{groups: make(map[uint32]gpucore.BindGroupID)}
		case gpucore.SetComputePipeline:
			st.compute = c.Pipeline
		case gpucore.SetBindGroup:
			st.groups[c.Index] = c.Group
		case gpucore.Dispatch:
			if err := d.dispatch(&st, c); err != nil {
				return err
			}
		case gpucore.BeginRenderPass:
			st = passState{groups: make(map[uint32]gpucore.BindGroupID), target: c.Target, inRender: true}
		case gpucore.SetRenderPipeline:
			st.render = c.Pipeline
		case gpucore.PushConstants:
			end := int(c.Offset) + len(c.Data)
			if len(st.push) < end {
				st.push = append(st.push, make([]byte, end-len(st.push))...)
			}
			copy(st.push[c.Offset:], c.Data)
		case gpucore.Draw:
			if err := d.draw(s, &st); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Device) copyBuffer(c gpucore.CopyBuffer) error {
	src, ok := lookup[*buffer](d, uint64(c.Src))
	if !ok {
		return fmt.Errorf("%w: copy source %d", gpucore.ErrInvalidID, c.Src)
	}
	dst, ok := lookup[*buffer](d, uint64(c.Dst))
	if !ok {
		return fmt.Errorf("%w: copy destination %d", gpucore.ErrInvalidID, c.Dst)
	}
	if src.desc.Usage&gpucore.BufferUsageCopySrc == 0 || dst.desc.Usage&gpucore.BufferUsageCopyDst == 0 {
		return fmt.Errorf("sim: copy %q -> %q without CopySrc/CopyDst usage", src.desc.Label, dst.desc.Label)
	}
	if c.SrcOffset+c.Size > uint64(len(src.data)) || c.DstOffset+c.Size > uint64(len(dst.data)) {
		return fmt.Errorf("sim: copy of %d bytes out of bounds", c.Size)
	}
	copy(dst.data[c.DstOffset:c.DstOffset+c.Size], src.data[c.SrcOffset:c.SrcOffset+c.Size])
	return nil
}

// storage returns the buffer bound at group 0, binding 0.
func (d *Device) storage(st *passState) (*buffer, []byte, error) {
	bg, ok := lookup[*gpucore.BindGroupDesc](d, uint64(st.groups[0]))
	if !ok {
		return nil, nil, fmt.Errorf("%w: no bind group at index 0", gpucore.ErrInvalidID)
	}
	for _, e := range bg.Entries {
		if e.Binding != 0 {
			continue
		}
		b, ok := lookup[*buffer](d, uint64(e.Buffer))
		if !ok {
			return nil, nil, fmt.Errorf("%w: bound buffer %d", gpucore.ErrInvalidID, e.Buffer)
		}
		end := uint64(len(b.data))
		if e.Size != 0 {
			end = e.Offset + e.Size
		}
		return b, b.data[e.Offset:end], nil
	}
	return nil, nil, fmt.Errorf("sim: bind group %q has no binding 0", bg.Label)
}

func (d *Device) dispatch(st *passState, c gpucore.Dispatch) error {
	if _, ok := lookup[*gpucore.ComputePipelineDesc](d, uint64(st.compute)); !ok {
		return fmt.Errorf("%w: compute pipeline %d", gpucore.ErrInvalidID, st.compute)
	}
	limit := d.opts.caps.MaxComputeWorkgroupsPerDimension
	if c.X > limit || c.Y > limit || c.Z > limit {
		return fmt.Errorf("sim: dispatch %dx%dx%d exceeds %d per dimension", c.X, c.Y, c.Z, limit)
	}
	b, data, err := d.storage(st)
	if err != nil {
		return err
	}
	if d.opts.kernel != nil {
		if err := d.opts.kernel(data, [3]uint32{c.X, c.Y, c.Z}); err != nil {
			return fmt.Errorf("sim: kernel: %w", err)
		}
	}
	b.dispatches++
	d.stats.Dispatches++
	return nil
}

func (d *Device) draw(s *submission, st *passState) error {
	rp, ok := lookup[*gpucore.RenderPipelineDesc](d, uint64(st.render))
	if !ok {
		return fmt.Errorf("%w: render pipeline %d", gpucore.ErrInvalidID, st.render)
	}
	v, ok := lookup[*view](d, uint64(st.target))
	if !ok {
		d.violate("submission #%d draws into destroyed view %d", s.serial, st.target)
		return nil
	}
	if v.extent != rp.Viewport {
		d.violate("submission #%d: pipeline viewport %v does not match target %v", s.serial, rp.Viewport, v.extent)
	}
	if p := s.present; p != nil && (p.surface != v.surface || p.image != v.image || p.gen != v.gen) {
		d.violate("submission #%d renders into image %d but presents image %d", s.serial, v.image, p.image)
	}

	b, data, err := d.storage(st)
	if err != nil {
		return err
	}
	rec := DrawRecord{Serial: s.serial, Image: v.image, Viewport: rp.Viewport, Dispatches: b.dispatches}

	window := st.push
	if len(window) < 8 {
		if bg, ok := lookup[*gpucore.BindGroupDesc](d, uint64(st.groups[1])); ok && len(bg.Entries) > 0 {
			if ub, ok := lookup[*buffer](d, uint64(bg.Entries[0].Buffer)); ok {
				window = ub.data[bg.Entries[0].Offset:]
			}
		}
	}
	if len(window) >= 8 {
		rec.Window[0] = math.Float32frombits(binary.LittleEndian.Uint32(window[0:]))
		rec.Window[1] = math.Float32frombits(binary.LittleEndian.Uint32(window[4:]))
	}

	d.stats.Draws++
	if d.opts.observer != nil {
		rec.Particles = append([]byte(nil), data...)
		d.opts.observer(rec)
	}
	return nil
}
