// Package commands records the command buffers of the simulation.
//
// The Builder owns everything that survives swapchain rebuilds: shader
// modules, bind group layouts, pipeline layouts, the compute pipeline,
// the bind groups over the particle buffer, the full-screen triangle and
// the reusable compute command buffer. Render pipelines and render
// command buffers depend on the swapchain extent and format; the Builder
// creates them on request and the swapchain manager owns them.
package commands

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/arena"
	"github.com/gogpu/particles/internal/stager"
	"github.com/gogpu/particles/shader"
)

// WindowConstantsSize is the size of the push constant block carrying the
// window width and height.
const WindowConstantsSize = 8

// fullScreenTriangle covers clip space with one triangle.
var fullScreenTriangle = [6]float32{
	-1, -1,
	3, -1,
	-1, 3,
}

// Builder creates pipelines and records command buffers.
type Builder struct {
	dev   gpucore.Device
	progs *shader.Programs
	arena *arena.Arena

	computeModule gpucore.ShaderModuleID
	renderModule  gpucore.ShaderModuleID

	computeBGL gpucore.BindGroupLayoutID
	renderBGL  gpucore.BindGroupLayoutID

	computeLayout gpucore.PipelineLayoutID
	renderLayout  gpucore.PipelineLayoutID

	computePipeline gpucore.ComputePipelineID

	computeGroup gpucore.BindGroupID
	renderGroup  gpucore.BindGroupID

	vertices gpucore.BufferID
	groups   uint32
	compute  gpucore.CommandBufferID
}

// New creates the swapchain independent objects for progs over the
// particle buffer of a.
func New(ctx context.Context, dev gpucore.Device, st *stager.Stager, progs *shader.Programs, a *arena.Arena) (*Builder, error) {
	if progs.Layout != a.Layout() {
		return nil, fmt.Errorf("commands: programs for %v layout, buffer in %v layout", progs.Layout, a.Layout())
	}
	// Devices without push constants bind the window block at the group
	// after the particle group.
	if rc := progs.RenderContract; rc.Window.Group != rc.Particles.Group+1 {
		return nil, fmt.Errorf("%w: window block at group %d, want %d",
			shader.ErrContract, rc.Window.Group, rc.Particles.Group+1)
	}
	if rc := progs.RenderContract; rc.Particles.Group != 0 {
		return nil, fmt.Errorf("%w: particles at group %d, want 0", shader.ErrContract, rc.Particles.Group)
	}

	b := &Builder{dev: dev, progs: progs, arena: a}
	b.groups = progs.ComputeContract.WorkgroupCount(a.Count())
	if limit := dev.Capabilities().MaxComputeWorkgroupsPerDimension; b.groups > limit {
		return nil, fmt.Errorf("commands: %d particles need %d workgroups, device allows %d",
			a.Count(), b.groups, limit)
	}
	if err := b.build(ctx, st); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func (b *Builder) build(ctx context.Context, st *stager.Stager) error {
	var err error
	cc, rc := b.progs.ComputeContract, b.progs.RenderContract

	if b.computeModule, err = b.dev.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label: b.progs.Compute.Label,
		WGSL:  b.progs.Compute.Source,
	}); err != nil {
		return fmt.Errorf("commands: compute shader: %w", err)
	}
	if b.renderModule, err = b.dev.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label: b.progs.Render.Label,
		WGSL:  b.progs.Render.Source,
	}); err != nil {
		return fmt.Errorf("commands: render shader: %w", err)
	}

	if b.computeBGL, err = b.dev.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "particles compute",
		Entries: []gpucore.BindGroupLayoutEntry{{
			Binding:        cc.Particles.Binding,
			Visibility:     gpucore.ShaderStageCompute,
			Type:           cc.Particles.Type,
			MinBindingSize: b.arena.Layout().Stride(),
		}},
	}); err != nil {
		return fmt.Errorf("commands: compute bind group layout: %w", err)
	}
	if b.renderBGL, err = b.dev.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "particles render",
		Entries: []gpucore.BindGroupLayoutEntry{{
			Binding:        rc.Particles.Binding,
			Visibility:     gpucore.ShaderStageFragment,
			Type:           rc.Particles.Type,
			MinBindingSize: b.arena.Layout().Stride(),
		}},
	}); err != nil {
		return fmt.Errorf("commands: render bind group layout: %w", err)
	}

	if b.computeLayout, err = b.dev.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		Label:            "simulate",
		BindGroupLayouts: []gpucore.BindGroupLayoutID{b.computeBGL},
	}); err != nil {
		return fmt.Errorf("commands: compute pipeline layout: %w", err)
	}
	if b.renderLayout, err = b.dev.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		Label:            "render",
		BindGroupLayouts: []gpucore.BindGroupLayoutID{b.renderBGL},
		PushConstants: []gpucore.PushConstantRange{{
			Stages: gpucore.ShaderStageFragment,
			Size:   rc.WindowSize,
		}},
	}); err != nil {
		return fmt.Errorf("commands: render pipeline layout: %w", err)
	}

	if b.computePipeline, err = b.dev.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        "simulate",
		Layout:       b.computeLayout,
		ShaderModule: b.computeModule,
		EntryPoint:   cc.EntryPoint,
	}); err != nil {
		return fmt.Errorf("commands: compute pipeline: %w", err)
	}

	if b.computeGroup, err = b.dev.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   "particles compute",
		Layout:  b.computeBGL,
		Entries: []gpucore.BindGroupEntry{{Binding: cc.Particles.Binding, Buffer: b.arena.Buffer()}},
	}); err != nil {
		return fmt.Errorf("commands: compute bind group: %w", err)
	}
	if b.renderGroup, err = b.dev.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   "particles render",
		Layout:  b.renderBGL,
		Entries: []gpucore.BindGroupEntry{{Binding: rc.Particles.Binding, Buffer: b.arena.Buffer()}},
	}); err != nil {
		return fmt.Errorf("commands: render bind group: %w", err)
	}

	verts, err := binary.Append(nil, binary.LittleEndian, fullScreenTriangle)
	if err != nil {
		return fmt.Errorf("commands: encode vertices: %w", err)
	}
	if b.vertices, err = st.Upload(ctx, "full-screen triangle", gpucore.BufferUsageVertex, verts, 0); err != nil {
		return fmt.Errorf("commands: %w", err)
	}

	list := b.ComputeList()
	if b.compute, err = b.dev.CreateCommandBuffer(&list); err != nil {
		return fmt.Errorf("commands: compute command buffer: %w", err)
	}
	return nil
}

// WorkgroupCount returns the number of workgroups each dispatch runs.
func (b *Builder) WorkgroupCount() uint32 { return b.groups }

// ComputeList returns the commands of one simulation tick.
func (b *Builder) ComputeList() gpucore.CommandList {
	return gpucore.CommandList{
		Label: "simulate",
		Commands: []gpucore.Command{
			gpucore.BeginComputePass{Label: "simulate"},
			gpucore.SetComputePipeline{Pipeline: b.computePipeline},
			gpucore.SetBindGroup{Index: b.progs.ComputeContract.Particles.Group, Group: b.computeGroup},
			gpucore.Dispatch{X: b.groups, Y: 1, Z: 1},
			gpucore.EndComputePass{},
		},
	}
}

// ComputeCommands returns the reusable compute command buffer.
func (b *Builder) ComputeCommands() gpucore.CommandBufferID { return b.compute }

// RenderPipeline creates the render pipeline for one swapchain
// configuration. The caller destroys it when the swapchain is rebuilt.
func (b *Builder) RenderPipeline(format gpucore.TextureFormat, viewport gpucore.Extent) (gpucore.RenderPipelineID, error) {
	rc := b.progs.RenderContract
	p, err := b.dev.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Label:              "render",
		Layout:             b.renderLayout,
		ShaderModule:       b.renderModule,
		VertexEntryPoint:   rc.VertexEntryPoint,
		FragmentEntryPoint: rc.FragmentEntryPoint,
		VertexBuffers: []gpucore.VertexBufferLayout{{
			Stride: uint64(rc.VertexComponents) * 4,
			Attributes: []gpucore.VertexAttribute{{
				Location:   rc.VertexLocation,
				Components: rc.VertexComponents,
			}},
		}},
		Format:   format,
		Viewport: viewport,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("commands: render pipeline %v: %w", viewport, err)
	}
	return p, nil
}

// RenderList returns the commands that draw the particles into target.
// The window constants carry extent.
func (b *Builder) RenderList(pipeline gpucore.RenderPipelineID, target gpucore.TextureViewID, extent gpucore.Extent, clear gpucore.Color) gpucore.CommandList {
	return gpucore.CommandList{
		Label: "render",
		Commands: []gpucore.Command{
			gpucore.BeginRenderPass{Label: "render", Target: target, Clear: clear},
			gpucore.SetRenderPipeline{Pipeline: pipeline},
			gpucore.SetBindGroup{Index: b.progs.RenderContract.Particles.Group, Group: b.renderGroup},
			gpucore.PushConstants{Stages: gpucore.ShaderStageFragment, Data: WindowConstants(extent)},
			gpucore.SetVertexBuffer{Slot: 0, Buffer: b.vertices},
			gpucore.Draw{VertexCount: 3, InstanceCount: 1},
			gpucore.EndRenderPass{},
		},
	}
}

// RenderCommands records RenderList into a command buffer.
func (b *Builder) RenderCommands(pipeline gpucore.RenderPipelineID, target gpucore.TextureViewID, extent gpucore.Extent, clear gpucore.Color) (gpucore.CommandBufferID, error) {
	list := b.RenderList(pipeline, target, extent, clear)
	cb, err := b.dev.CreateCommandBuffer(&list)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("commands: render command buffer: %w", err)
	}
	return cb, nil
}

// WindowConstants encodes extent as two little-endian f32 values.
func WindowConstants(extent gpucore.Extent) []byte {
	out := make([]byte, WindowConstantsSize)
	binary.LittleEndian.PutUint32(out[0:], math.Float32bits(float32(extent.Width)))
	binary.LittleEndian.PutUint32(out[4:], math.Float32bits(float32(extent.Height)))
	return out
}

// Release destroys everything New created. Submitted work using it must
// have completed.
func (b *Builder) Release() {
	d := b.dev
	if b.compute != gpucore.InvalidID {
		d.DestroyCommandBuffer(b.compute)
	}
	if b.vertices != gpucore.InvalidID {
		d.DestroyBuffer(b.vertices)
	}
	if b.renderGroup != gpucore.InvalidID {
		d.DestroyBindGroup(b.renderGroup)
	}
	if b.computeGroup != gpucore.InvalidID {
		d.DestroyBindGroup(b.computeGroup)
	}
	if b.computePipeline != gpucore.InvalidID {
		d.DestroyComputePipeline(b.computePipeline)
	}
	if b.renderLayout != gpucore.InvalidID {
		d.DestroyPipelineLayout(b.renderLayout)
	}
	if b.computeLayout != gpucore.InvalidID {
		d.DestroyPipelineLayout(b.computeLayout)
	}
	if b.renderBGL != gpucore.InvalidID {
		d.DestroyBindGroupLayout(b.renderBGL)
	}
	if b.computeBGL != gpucore.InvalidID {
		d.DestroyBindGroupLayout(b.computeBGL)
	}
	if b.renderModule != gpucore.InvalidID {
		d.DestroyShaderModule(b.renderModule)
	}
	if b.computeModule != gpucore.InvalidID {
		d.DestroyShaderModule(b.computeModule)
	}
	*b = Builder{dev: d, progs: b.progs, arena: b.arena}
}
