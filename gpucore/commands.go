package gpucore

import (
	"errors"
	"fmt"
)

// Command is one recorded GPU command. The set of commands is closed;
// backends switch over the concrete types below.
type Command interface {
	command()
}

// CopyBuffer copies Size bytes between two buffers.
type CopyBuffer struct {
	Src, Dst             BufferID
	SrcOffset, DstOffset uint64
	Size                 uint64
}

// BeginComputePass opens a compute pass.
type BeginComputePass struct {
	Label string
}

// SetComputePipeline binds a compute pipeline.
type SetComputePipeline struct {
	Pipeline ComputePipelineID
}

// SetBindGroup binds a bind group at the given group index.
type SetBindGroup struct {
	Index uint32
	Group BindGroupID
}

// Dispatch dispatches compute workgroups.
type Dispatch struct {
	X, Y, Z uint32
}

// EndComputePass closes the current compute pass.
type EndComputePass struct{}

// BeginRenderPass opens a render pass that clears Target to Clear.
type BeginRenderPass struct {
	Label  string
	Target TextureViewID
	Clear  Color
}

// SetRenderPipeline binds a render pipeline.
type SetRenderPipeline struct {
	Pipeline RenderPipelineID
}

// SetVertexBuffer binds a vertex buffer to a slot.
type SetVertexBuffer struct {
	Slot   uint32
	Buffer BufferID
	Offset uint64
}

// PushConstants uploads a push constant block for the bound pipeline.
type PushConstants struct {
	Stages ShaderStages
	Offset uint32
	Data   []byte
}

// Draw issues a non-indexed draw.
type Draw struct {
	VertexCount, InstanceCount, FirstVertex, FirstInstance uint32
}

// EndRenderPass closes the current render pass.
type EndRenderPass struct{}

func (CopyBuffer) command()         {}
func (BeginComputePass) command()   {}
func (SetComputePipeline) command() {}
func (SetBindGroup) command()       {}
func (Dispatch) command()           {}
func (EndComputePass) command()     {}
func (BeginRenderPass) command()    {}
func (SetRenderPipeline) command()  {}
func (SetVertexBuffer) command()    {}
func (PushConstants) command()      {}
func (Draw) command()               {}
func (EndRenderPass) command()      {}

// ErrInvalidCommandList is returned for command lists that break pass
// nesting rules.
var ErrInvalidCommandList = errors.New("gpucore: invalid command list")

// CommandList is an ordered command sequence. Devices turn a list into a
// reusable command buffer with Device.CreateCommandBuffer.
type CommandList struct {
	Label    string
	Commands []Command
}

// Add appends commands to the list.
func (l *CommandList) Add(cmds ...Command) {
	l.Commands = append(l.Commands, cmds...)
}

type passKind uint8

const (
	passNone passKind = iota
	passCompute
	passRender
)

// Validate checks that passes are balanced and that every command is
// recorded in the kind of pass it belongs to.
func (l *CommandList) Validate() error {
	pass := passNone
	for i, c := range l.Commands {
		var want passKind
		switch c := c.(type) {
		case CopyBuffer:
			if c.Src == InvalidID || c.Dst == InvalidID {
				return fmt.Errorf("%w: command %d: copy with invalid buffer", ErrInvalidCommandList, i)
			}
			want = passNone
		case BeginComputePass, BeginRenderPass:
			if pass != passNone {
				return fmt.Errorf("%w: command %d: nested pass", ErrInvalidCommandList, i)
			}
			if _, ok := c.(BeginComputePass); ok {
				pass = passCompute
			} else {
				pass = passRender
			}
			continue
		case EndComputePass, SetComputePipeline, Dispatch:
			want = passCompute
		case EndRenderPass, SetRenderPipeline, SetVertexBuffer, PushConstants, Draw:
			want = passRender
		case SetBindGroup:
			if pass == passNone {
				return fmt.Errorf("%w: command %d: bind group outside a pass", ErrInvalidCommandList, i)
			}
			continue
		default:
			return fmt.Errorf("%w: command %d: unknown command %T", ErrInvalidCommandList, i, c)
		}
		if pass != want {
			return fmt.Errorf("%w: command %d: %T not allowed here", ErrInvalidCommandList, i, c)
		}
		switch c.(type) {
		case EndComputePass, EndRenderPass:
			pass = passNone
		}
	}
	if pass != passNone {
		return fmt.Errorf("%w: unterminated pass", ErrInvalidCommandList)
	}
	return nil
}
