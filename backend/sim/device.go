// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/logging"
)

// Order decides which queue runs first when the simulated GPU executes
// submissions the host has not waited for.
type Order uint8

const (
	// OrderSubmit executes in submission order.
	OrderSubmit Order = iota

	// OrderComputeFirst lets compute work overtake graphics work that it
	// does not depend on.
	OrderComputeFirst

	// OrderGraphicsFirst lets graphics work overtake compute work that it
	// does not depend on.
	OrderGraphicsFirst
)

func (o Order) String() string {
	switch o {
	case OrderSubmit:
		return "submit"
	case OrderComputeFirst:
		return "compute-first"
	case OrderGraphicsFirst:
		return "graphics-first"
	default:
		return fmt.Sprintf("Order(%d)", uint8(o))
	}
}

// DrawRecord describes one executed draw.
type DrawRecord struct {
	// Serial is the submission that contained the draw.
	Serial uint64

	// Image is the swap image index the render target belongs to.
	Image uint32

	// Viewport is the extent baked into the render pipeline.
	Viewport gpucore.Extent

	// Window is the width and height supplied through push constants or
	// the window uniform block.
	Window [2]float32

	// Dispatches is the number of compute dispatches that had written the
	// particle buffer when the draw executed.
	Dispatches uint64

	// Particles is a copy of the particle buffer as the draw read it.
	Particles []byte
}

// Stats counts simulated device activity.
type Stats struct {
	Submissions uint64
	Executed    uint64
	Dispatches  uint64
	Draws       uint64
	Presents    uint64
	HostWaits   uint64

	// MaxPending is the largest number of submissions that were
	// simultaneously waiting for execution.
	MaxPending int
}

// Option configures a Device.
type Option func(*options)

type options struct {
	latency  int
	order    Order
	kernel   Kernel
	observer func(DrawRecord)
	caps     gpucore.Capabilities
}

func defaultOptions() options {
	return options{
		latency: 2,
		caps: gpucore.Capabilities{
			MaxBufferSize:                    1 << 30,
			MaxStorageBufferBindingSize:      1 << 27,
			MaxComputeWorkgroupsPerDimension: 65535,
			SeparateQueues:                   true,
		},
	}
}

// WithLatency sets how many submissions may wait for execution before the
// simulated GPU runs the oldest. 0 executes every submission immediately.
func WithLatency(n int) Option {
	return func(o *options) {
		o.latency = max(n, 0)
	}
}

// WithOrder sets which queue the simulated GPU favours.
func WithOrder(order Order) Option {
	return func(o *options) {
		o.order = order
	}
}

// WithKernel sets the function that executes compute dispatches.
// Without a kernel, dispatches leave the buffer unchanged.
func WithKernel(k Kernel) Option {
	return func(o *options) {
		o.kernel = k
	}
}

// WithDrawObserver registers fn to receive every executed draw. fn runs
// while the device is locked and must not call back into it.
func WithDrawObserver(fn func(DrawRecord)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithCapabilities overrides the reported device limits.
func WithCapabilities(c gpucore.Capabilities) Option {
	return func(o *options) {
		o.caps = c
	}
}

// Device is an in-memory gpucore.Device.
//
// Submissions are queued and executed lazily: when the host waits for
// them, when more than the configured latency are pending, or when a
// later submission depends on them. Execution honours queue order and
// explicit dependencies only, so missing dependencies surface as wrong
// data in DrawRecord. Host-side ordering mistakes are reported by
// Violations.
type Device struct {
	mu   sync.Mutex
	opts options

	nextID uint64
	res    map[uint64]any

	serial   uint64
	subs     map[uint64]*submission
	pending  []*submission
	lastOn   map[gpucore.QueueKind]uint64
	cbLast   map[gpucore.CommandBufferID]gpucore.Future
	queues   map[gpucore.QueueKind]*queue
	surfaces []*Surface

	violations []string
	stats      Stats
	lost       error
	released   bool
}

var _ gpucore.Device = (*Device)(nil)

// New creates a simulated device.
func New(opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		opts:   o,
		res:    make(map[uint64]any),
		subs:   make(map[uint64]*submission),
		lastOn: make(map[gpucore.QueueKind]uint64),
		cbLast: make(map[gpucore.CommandBufferID]gpucore.Future),
	}
	d.queues = map[gpucore.QueueKind]*queue{
		gpucore.QueueCompute:  {d: d, kind: gpucore.QueueCompute},
		gpucore.QueueGraphics: {d: d, kind: gpucore.QueueGraphics},
	}
	return d
}

type buffer struct {
	desc       gpucore.BufferDesc
	data       []byte
	dispatches uint64
}

type commandBuffer struct {
	list gpucore.CommandList
	refs []uint64
}

type view struct {
	surface *Surface
	image   uint32
	gen     uint64
	extent  gpucore.Extent
}

// Violations returns a description of every ordering or lifetime rule the
// host broke so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Stats returns activity counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Live returns the number of resources that have not been destroyed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.res)
}

// Pending returns the number of submitted but unexecuted submissions.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Device) violate(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.violations = append(d.violations, msg)
	logging.Logger().Warn("sim: violation", "detail", msg)
}

func (d *Device) check() error {
	if d.released {
		return gpucore.ErrReleased
	}
	if d.lost != nil {
		return fmt.Errorf("%w: %v", gpucore.ErrDeviceLost, d.lost)
	}
	return nil
}

func (d *Device) alloc(v any) uint64 {
	d.nextID++
	d.res[d.nextID] = v
	return d.nextID
}

// lookup returns the live resource id if it has type T.
func lookup[T any](d *Device, id uint64) (T, bool) {
	v, ok := d.res[id].(T)
	return v, ok
}

func (d *Device) destroy(id uint64, kind string) {
	if d.released {
		return
	}
	if _, ok := d.res[id]; !ok {
		d.violate("destroy of unknown %s %d", kind, id)
		return
	}
	for _, s := range d.subs {
		if s.observed {
			continue
		}
		for _, r := range s.refs {
			if r == id {
				d.violate("%s %d destroyed while submission #%d may still use it", kind, id, s.serial)
				break
			}
		}
	}
	delete(d.res, id)
}

// Capabilities implements gpucore.Device.
func (d *Device) Capabilities() gpucore.Capabilities {
	return d.opts.caps
}

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc.Size > d.opts.caps.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("sim: buffer %q: size %d exceeds limit %d", desc.Label, desc.Size, d.opts.caps.MaxBufferSize)
	}
	return gpucore.BufferID(d.alloc(&buffer{desc: *desc, data: make([]byte, desc.Size)})), nil
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(id), "buffer")
}

// WriteBuffer implements gpucore.Device.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	b, ok := lookup[*buffer](d, uint64(id))
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrInvalidID, id)
	}
	if !b.desc.HostVisible {
		return fmt.Errorf("%w: %q", gpucore.ErrNotHostVisible, b.desc.Label)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("sim: write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, b.desc.Label, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

// ReadBuffer implements gpucore.Device. It executes and observes all
// submitted work first.
func (d *Device) ReadBuffer(ctx context.Context, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := lookup[*buffer](d, uint64(id))
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpucore.ErrInvalidID, id)
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("sim: read of %d bytes at %d overflows buffer %q (%d bytes)", size, offset, b.desc.Label, len(b.data))
	}
	if err := d.drain(); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

// CreateShaderModule implements gpucore.Device.
func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc.WGSL == "" {
		return gpucore.InvalidID, fmt.Errorf("sim: shader module %q has no source", desc.Label)
	}
	c := *desc
	return gpucore.ShaderModuleID(d.alloc(&c)), nil
}

// DestroyShaderModule implements gpucore.Device.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(id), "shader module")
}

// CreateBindGroupLayout implements gpucore.Device.
func (d *Device) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return gpucore.InvalidID, err
	}
	c := *desc
	c.Entries = append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...)
	return gpucore.BindGroupLayoutID(d.alloc(&c)), nil
}

// DestroyBindGroupLayout implements gpucore.Device.
func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(id), "bind group layout")
}

// CreatePipelineLayout implements gpucore.Device.
func (d *Device) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return gpucore.InvalidID, err
	}
	for _, l := range desc.BindGroupLayouts {
		if _, ok := lookup[*gpucore.BindGroupLayoutDesc](d, uint64(l)); !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrInvalidID, l)
		}
	}
	c := *desc
	c.BindGroupLayouts = append([]gpucore.BindGroupLayoutID(nil), desc.BindGroupLayouts...)
	c.PushConstants = append([]gpucore.PushConstantRange(nil), desc.PushConstants...)
	return gpucore.PipelineLayoutID(d.alloc(&c)), nil
}

// DestroyPipelineLayout implements gpucore.Device.
func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(id), "pipeline layout")
}

// CreateComputePipeline implements gpucore.Device.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return gpucore.InvalidID, err
	}
	if _, ok := lookup[*gpucore.PipelineLayoutDesc](d, uint64(desc.Layout)); !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", gpucore.ErrInvalidID, desc.Layout)
	}
	if _, ok := lookup[*gpucore.ShaderModuleDesc](d, uint64(desc.ShaderModule)); !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrInvalidID, desc.ShaderModule)
	}
	c := *desc
	return gpucore.ComputePipelineID(d.alloc(&c)), nil
}

// DestroyComputePipeline implements gpucore.Device.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(id), "compute pipeline")
}

// CreateRenderPipeline implements gpucore.Device.
func (d *Device) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return gpucore.InvalidID, err
	}
	if _, ok := lookup[*gpucore.PipelineLayoutDesc](d, uint64(desc.Layout)); !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", gpucore.ErrInvalidID, desc.Layout)
	}
	if _, ok := lookup[*gpucore.ShaderModuleDesc](d, uint64(desc.ShaderModule)); !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrInvalidID, desc.ShaderModule)
	}
	if desc.Viewport.IsZero() {
		return gpucore.InvalidID, fmt.Errorf("sim: render pipeline %q: zero viewport", desc.Label)
	}
	c := *desc
	c.VertexBuffers = append([]gpucore.VertexBufferLayout(nil), desc.VertexBuffers...)
	return gpucore.RenderPipelineID(d.alloc(&c)), nil
}

// DestroyRenderPipeline implements gpucore.Device.
func (d *Device) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(id), "render pipeline")
}

// CreateBindGroup implements gpucore.Device.
func (d *Device) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return gpucore.InvalidID, err
	}
	layout, ok := lookup[*gpucore.BindGroupLayoutDesc](d, uint64(desc.Layout))
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrInvalidID, desc.Layout)
	}
	if len(desc.Entries) != len(layout.Entries) {
		return gpucore.InvalidID, fmt.Errorf("sim: bind group %q: %d entries, layout has %d", desc.Label, len(desc.Entries), len(layout.Entries))
	}
	for _, e := range desc.Entries {
		b, ok := lookup[*buffer](d, uint64(e.Buffer))
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: buffer %d", gpucore.ErrInvalidID, e.Buffer)
		}
		var want gpucore.BufferUsage
		for _, le := range layout.Entries {
			if le.Binding != e.Binding {
				continue
			}
			if le.Type == gpucore.BindingTypeUniformBuffer {
				want = gpucore.BufferUsageUniform
			} else {
				want = gpucore.BufferUsageStorage
			}
			if le.MinBindingSize > 0 && uint64(len(b.data)) < le.MinBindingSize {
				return gpucore.InvalidID, fmt.Errorf("sim: bind group %q: buffer %q smaller than %d bytes", desc.Label, b.desc.Label, le.MinBindingSize)
			}
		}
		if want == 0 {
			return gpucore.InvalidID, fmt.Errorf("sim: bind group %q: binding %d not in layout", desc.Label, e.Binding)
		}
		if b.desc.Usage&want == 0 {
			return gpucore.InvalidID, fmt.Errorf("sim: bind group %q: buffer %q lacks usage %v", desc.Label, b.desc.Label, want)
		}
	}
	c := *desc
	c.Entries = append([]gpucore.BindGroupEntry(nil), desc.Entries...)
	return gpucore.BindGroupID(d.alloc(&c)), nil
}

// DestroyBindGroup implements gpucore.Device.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(id), "bind group")
}

// CreateCommandBuffer implements gpucore.Device.
func (d *Device) CreateCommandBuffer(list *gpucore.CommandList) (gpucore.CommandBufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return gpucore.InvalidID, err
	}
	if err := list.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	refs, err := d.references(list)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("sim: command buffer %q: %w", list.Label, err)
	}
	cb := &commandBuffer{
		list: gpucore.CommandList{Label: list.Label, Commands: append([]gpucore.Command(nil), list.Commands...)},
		refs: refs,
	}
	id := d.alloc(cb)
	cb.refs = append(cb.refs, id)
	return gpucore.CommandBufferID(id), nil
}

// references resolves every resource a command list uses.
func (d *Device) references(list *gpucore.CommandList) ([]uint64, error) {
	var refs []uint64
	need := func(id uint64, ok bool, kind string) error {
		if !ok {
			return fmt.Errorf("%w: %s %d", gpucore.ErrInvalidID, kind, id)
		}
		refs = append(refs, id)
		return nil
	}
	for _, cmd := range list.Commands {
		var err error
		switch c := cmd.(type) {
		case gpucore.CopyBuffer:
			_, ok := lookup[*buffer](d, uint64(c.Src))
			if err = need(uint64(c.Src), ok, "buffer"); err == nil {
				_, ok = lookup[*buffer](d, uint64(c.Dst))
				err = need(uint64(c.Dst), ok, "buffer")
			}
		case gpucore.SetComputePipeline:
			_, ok := lookup[*gpucore.ComputePipelineDesc](d, uint64(c.Pipeline))
			err = need(uint64(c.Pipeline), ok, "compute pipeline")
		case gpucore.SetRenderPipeline:
			_, ok := lookup[*gpucore.RenderPipelineDesc](d, uint64(c.Pipeline))
			err = need(uint64(c.Pipeline), ok, "render pipeline")
		case gpucore.SetBindGroup:
			bg, ok := lookup[*gpucore.BindGroupDesc](d, uint64(c.Group))
			if err = need(uint64(c.Group), ok, "bind group"); err == nil {
				for _, e := range bg.Entries {
					refs = append(refs, uint64(e.Buffer))
				}
			}
		case gpucore.SetVertexBuffer:
			_, ok := lookup[*buffer](d, uint64(c.Buffer))
			err = need(uint64(c.Buffer), ok, "buffer")
		case gpucore.BeginRenderPass:
			_, ok := lookup[*view](d, uint64(c.Target))
			err = need(uint64(c.Target), ok, "texture view")
		}
		if err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// DestroyCommandBuffer implements gpucore.Device.
func (d *Device) DestroyCommandBuffer(id gpucore.CommandBufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(id), "command buffer")
	delete(d.cbLast, id)
}

// Queue implements gpucore.Device.
func (d *Device) Queue(kind gpucore.QueueKind) gpucore.Queue {
	q, ok := d.queues[kind]
	if !ok {
		return nil
	}
	return q
}

// Wait implements gpucore.Device.
func (d *Device) Wait(ctx context.Context, f gpucore.Future) error {
	if f.IsNow() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if f.Serial > d.serial {
		return fmt.Errorf("%w: future %v was never submitted", gpucore.ErrInvalidID, f)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.stats.HostWaits++
	s, ok := d.subs[f.Serial]
	if !ok {
		return nil
	}
	if err := d.execute(s); err != nil {
		return err
	}
	d.observe(s)
	d.prune()
	return nil
}

// WaitIdle implements gpucore.Device.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpucore.ErrReleased
	}
	d.stats.HostWaits++
	return d.drain()
}

// drain executes and observes every submission.
func (d *Device) drain() error {
	for len(d.pending) > 0 {
		if err := d.execute(d.pending[0]); err != nil {
			return err
		}
	}
	for _, s := range d.subs {
		s.observed = true
	}
	d.prune()
	return nil
}

// Release implements gpucore.Device. Leaked resources and unobserved work
// are reported as violations.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	for _, s := range d.subs {
		if !s.observed {
			d.violate("device released while submission #%d was not waited for", s.serial)
		}
	}
	if n := len(d.res); n > 0 {
		d.violate("device released with %d live resources", n)
	}
	d.released = true
	d.pending = nil
	d.subs = nil
}
