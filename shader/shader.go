// Package shader holds the simulation's WGSL programs and checks that they
// honour the buffer contract the scheduler binds against.
//
// Each program is a layout prelude (the Particle struct for one
// [particle.Layout]) followed by a layout-independent body. Programs are
// parsed and lowered with naga at load time; the resulting IR is used to
// reflect entry points, bindings and workgroup size, and to verify the
// host record layout with [particle.Verify].
package shader

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/cache"
	"github.com/gogpu/particles/particle"
)

//go:embed wgsl/particle_legacy.wgsl
var legacyPrelude string

//go:embed wgsl/particle_padded.wgsl
var paddedPrelude string

//go:embed wgsl/simulate.wgsl
var simulateBody string

//go:embed wgsl/render.wgsl
var renderBody string

// ErrContract is returned when a program does not expose the bindings and
// entry points the scheduler relies on.
var ErrContract = errors.New("shader: program contract violated")

// ParticlesGlobal is the name of the particle storage array in both programs.
const ParticlesGlobal = "particles"

// Binding locates a buffer binding.
type Binding struct {
	Group   uint32
	Binding uint32
	Type    gpucore.BindingType
}

func (b Binding) String() string {
	return fmt.Sprintf("@group(%d) @binding(%d) %s", b.Group, b.Binding, b.Type)
}

// ComputeContract is what the scheduler needs to know about the
// simulation program.
type ComputeContract struct {
	EntryPoint    string
	WorkgroupSize [3]uint32
	Particles     Binding
}

// RenderContract is what the scheduler needs to know about the render
// program.
type RenderContract struct {
	VertexEntryPoint   string
	FragmentEntryPoint string

	// VertexLocation and VertexComponents describe the single float
	// vector vertex input.
	VertexLocation   uint32
	VertexComponents uint32

	Particles Binding

	// Window is the block carrying the window width and height as two
	// f32 values. Devices with push constants supply it that way; the
	// uniform binding here is where emulating devices bind it.
	Window     Binding
	WindowSize uint32
}

// Program is a loaded WGSL program.
type Program struct {
	Label  string
	Source string
	Module *ir.Module
}

// Programs is the compute and render program pair for one layout.
type Programs struct {
	Layout  particle.Layout
	Compute Program
	Render  Program

	ComputeContract ComputeContract
	RenderContract  RenderContract
}

// Source returns the WGSL source of both programs for layout l without
// loading them.
func Source(l particle.Layout) (compute, render string, err error) {
	var prelude string
	switch l {
	case particle.LayoutLegacy:
		prelude = legacyPrelude
	case particle.LayoutPadded:
		prelude = paddedPrelude
	default:
		return "", "", fmt.Errorf("shader: unknown layout %v", l)
	}
	return prelude + "\n" + simulateBody, prelude + "\n" + renderBody, nil
}

// loaded holds the programs of every layout loaded so far.
var loaded = cache.New[particle.Layout, *Programs](0)

// Load parses, lowers and validates both programs for layout l, reflects
// their contracts and verifies the host particle layout against them.
//
// Programs are loaded once per layout and shared. Callers must not
// modify them.
func Load(l particle.Layout) (*Programs, error) {
	if p, ok := loaded.Get(l); ok {
		return p, nil
	}
	p, err := load(l)
	if err != nil {
		return nil, err
	}
	loaded.Set(l, p)
	return p, nil
}

func load(l particle.Layout) (*Programs, error) {
	csrc, rsrc, err := Source(l)
	if err != nil {
		return nil, err
	}
	compute, err := Compile("simulate", csrc)
	if err != nil {
		return nil, err
	}
	render, err := Compile("render", rsrc)
	if err != nil {
		return nil, err
	}

	cc, err := ReflectCompute(compute.Module)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", compute.Label, err)
	}
	rc, err := ReflectRender(render.Module)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", render.Label, err)
	}
	if cc.Particles.Group != rc.Particles.Group || cc.Particles.Binding != rc.Particles.Binding {
		return nil, fmt.Errorf("%w: particle buffer bound at %v for compute but %v for render",
			ErrContract, cc.Particles, rc.Particles)
	}

	for _, p := range []Program{compute, render} {
		if err := particle.Verify(p.Module, ParticlesGlobal, l); err != nil {
			return nil, fmt.Errorf("%s: %w", p.Label, err)
		}
	}

	return &Programs{
		Layout:          l,
		Compute:         compute,
		Render:          render,
		ComputeContract: cc,
		RenderContract:  rc,
	}, nil
}

// Compile parses, lowers and validates one WGSL program.
func Compile(label, src string) (Program, error) {
	ast, err := naga.Parse(src)
	if err != nil {
		return Program{}, fmt.Errorf("shader: %s: parse: %w", label, err)
	}
	mod, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return Program{}, fmt.Errorf("shader: %s: lower: %w", label, err)
	}
	verrs, err := naga.Validate(mod)
	if err != nil {
		return Program{}, fmt.Errorf("shader: %s: validate: %w", label, err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Message
		}
		return Program{}, fmt.Errorf("shader: %s: invalid: %s", label, strings.Join(msgs, "; "))
	}
	return Program{Label: label, Source: src, Module: mod}, nil
}

// ReflectCompute extracts the compute contract: exactly one compute entry
// point and a read-write storage array named particles.
func ReflectCompute(mod *ir.Module) (ComputeContract, error) {
	eps := entryPoints(mod, ir.StageCompute)
	if len(eps) != 1 {
		return ComputeContract{}, fmt.Errorf("%w: %d compute entry points, want 1", ErrContract, len(eps))
	}
	ep := eps[0]
	for i, n := range ep.Workgroup {
		if n == 0 {
			return ComputeContract{}, fmt.Errorf("%w: workgroup size[%d] is 0", ErrContract, i)
		}
	}

	b, err := binding(mod, ParticlesGlobal)
	if err != nil {
		return ComputeContract{}, err
	}
	if b.Type != gpucore.BindingTypeStorageBuffer {
		return ComputeContract{}, fmt.Errorf("%w: compute binds %s as %s, want read-write storage",
			ErrContract, ParticlesGlobal, b.Type)
	}
	return ComputeContract{EntryPoint: ep.Name, WorkgroupSize: ep.Workgroup, Particles: b}, nil
}

// ReflectRender extracts the render contract: one vertex entry point with
// a single vector input, one fragment entry point, the particle array as
// read-only storage and a uniform window block of two f32 values.
func ReflectRender(mod *ir.Module) (RenderContract, error) {
	vs := entryPoints(mod, ir.StageVertex)
	fs := entryPoints(mod, ir.StageFragment)
	if len(vs) != 1 || len(fs) != 1 {
		return RenderContract{}, fmt.Errorf("%w: %d vertex and %d fragment entry points, want 1 each",
			ErrContract, len(vs), len(fs))
	}
	rc := RenderContract{VertexEntryPoint: vs[0].Name, FragmentEntryPoint: fs[0].Name}

	var inputs int
	for _, arg := range vs[0].Function.Arguments {
		if arg.Binding == nil {
			continue
		}
		lb, ok := (*arg.Binding).(ir.LocationBinding)
		if !ok {
			continue
		}
		inputs++
		vec, ok := mod.Types[arg.Type].Inner.(ir.VectorType)
		if !ok || vec.Scalar.Kind != ir.ScalarFloat || vec.Scalar.Width != 4 {
			return RenderContract{}, fmt.Errorf("%w: vertex input %q is not a float vector", ErrContract, arg.Name)
		}
		rc.VertexLocation = lb.Location
		rc.VertexComponents = uint32(vec.Size)
	}
	if inputs != 1 {
		return RenderContract{}, fmt.Errorf("%w: %d vertex inputs, want 1", ErrContract, inputs)
	}

	b, err := binding(mod, ParticlesGlobal)
	if err != nil {
		return RenderContract{}, err
	}
	if b.Type != gpucore.BindingTypeReadOnlyStorageBuffer {
		return RenderContract{}, fmt.Errorf("%w: render binds %s as %s, want read-only storage",
			ErrContract, ParticlesGlobal, b.Type)
	}
	rc.Particles = b

	for _, gv := range mod.GlobalVariables {
		if gv.Space != ir.SpaceUniform || gv.Binding == nil {
			continue
		}
		st, ok := mod.Types[gv.Type].Inner.(ir.StructType)
		if !ok || st.Span != 8 {
			continue
		}
		rc.Window = Binding{Group: gv.Binding.Group, Binding: gv.Binding.Binding, Type: gpucore.BindingTypeUniformBuffer}
		rc.WindowSize = st.Span
	}
	if rc.WindowSize == 0 {
		return RenderContract{}, fmt.Errorf("%w: no window size block", ErrContract)
	}
	if rc.Window.Group <= rc.Particles.Group {
		return RenderContract{}, fmt.Errorf("%w: window block at group %d must follow the particle group",
			ErrContract, rc.Window.Group)
	}
	return rc, nil
}

// WorkgroupCount returns the number of workgroups along x needed to cover
// n particles. It is never 0 so that an empty buffer still dispatches.
func (c ComputeContract) WorkgroupCount(n int) uint32 {
	size := c.WorkgroupSize[0]
	if size == 0 {
		size = 1
	}
	groups := (uint32(n) + size - 1) / size
	return max(groups, 1)
}

func entryPoints(mod *ir.Module, stage ir.ShaderStage) []ir.EntryPoint {
	var out []ir.EntryPoint
	for _, ep := range mod.EntryPoints {
		if ep.Stage == stage {
			out = append(out, ep)
		}
	}
	return out
}

func binding(mod *ir.Module, name string) (Binding, error) {
	for _, gv := range mod.GlobalVariables {
		if gv.Name != name {
			continue
		}
		if gv.Binding == nil {
			return Binding{}, fmt.Errorf("%w: %s has no binding", ErrContract, name)
		}
		b := Binding{Group: gv.Binding.Group, Binding: gv.Binding.Binding}
		switch {
		case gv.Space == ir.SpaceUniform:
			b.Type = gpucore.BindingTypeUniformBuffer
		case gv.Space == ir.SpaceStorage && gv.Access == ir.StorageRead:
			b.Type = gpucore.BindingTypeReadOnlyStorageBuffer
		case gv.Space == ir.SpaceStorage:
			b.Type = gpucore.BindingTypeStorageBuffer
		default:
			return Binding{}, fmt.Errorf("%w: %s is not a buffer", ErrContract, name)
		}
		return b, nil
	}
	return Binding{}, fmt.Errorf("%w: no global %q", ErrContract, name)
}
