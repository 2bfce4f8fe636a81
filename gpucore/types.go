package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// RenderPipelineID is an opaque handle to a render pipeline.
type RenderPipelineID uint64

// CommandBufferID is an opaque handle to a recorded command buffer.
// Unlike single-use encoders, a command buffer may be submitted any
// number of times until it is destroyed.
type CommandBufferID uint64

// TextureViewID is an opaque handle to a render target view.
// Swapchain image views returned by Surface.Configure act as framebuffers.
type TextureViewID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Shared enumerations come from gputypes so that backends built on the
// gogpu stack can pass them through unchanged.
type (
	// BufferUsage is a bitmask specifying how a buffer will be used.
	BufferUsage = gputypes.BufferUsage

	// TextureFormat specifies the format of swapchain images.
	TextureFormat = gputypes.TextureFormat

	// PresentMode selects how presented images are queued for display.
	PresentMode = gputypes.PresentMode

	// ShaderStages is a bitmask of shader stages.
	ShaderStages = gputypes.ShaderStages

	// Color is an RGBA clear colour with float64 components.
	Color = gputypes.Color
)

// Buffer usage flags.
const (
	BufferUsageMapRead  = gputypes.BufferUsageMapRead
	BufferUsageMapWrite = gputypes.BufferUsageMapWrite
	BufferUsageCopySrc  = gputypes.BufferUsageCopySrc
	BufferUsageCopyDst  = gputypes.BufferUsageCopyDst
	BufferUsageVertex   = gputypes.BufferUsageVertex
	BufferUsageUniform  = gputypes.BufferUsageUniform
	BufferUsageStorage  = gputypes.BufferUsageStorage
)

// Present modes.
const (
	PresentModeFifo        = gputypes.PresentModeFifo
	PresentModeFifoRelaxed = gputypes.PresentModeFifoRelaxed
	PresentModeImmediate   = gputypes.PresentModeImmediate
	PresentModeMailbox     = gputypes.PresentModeMailbox
)

// Swapchain image formats.
const (
	TextureFormatBGRA8Unorm     = gputypes.TextureFormatBGRA8Unorm
	TextureFormatBGRA8UnormSrgb = gputypes.TextureFormatBGRA8UnormSrgb
	TextureFormatRGBA8Unorm     = gputypes.TextureFormatRGBA8Unorm
	TextureFormatRGBA8UnormSrgb = gputypes.TextureFormatRGBA8UnormSrgb
	TextureFormatRGBA16Float    = gputypes.TextureFormatRGBA16Float
)

// Shader stages.
const (
	ShaderStageVertex   = gputypes.ShaderStageVertex
	ShaderStageFragment = gputypes.ShaderStageFragment
	ShaderStageCompute  = gputypes.ShaderStageCompute
)

// Extent is a two-dimensional size in physical pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero.
// A zero-area extent cannot back a swapchain.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// BindingType specifies the type of a buffer binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer
)

// String returns the WGSL-style name of the binding type.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "uniform"
	case BindingTypeStorageBuffer:
		return "storage, read_write"
	case BindingTypeReadOnlyStorageBuffer:
		return "storage, read"
	default:
		return fmt.Sprintf("BindingType(%d)", uint32(t))
	}
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage is the set of allowed usages.
	Usage BufferUsage

	// HostVisible requests memory the host can write through
	// Device.WriteBuffer. Device-only buffers leave this false and are
	// populated by copy commands.
	HostVisible bool
}

// ShaderModuleDesc describes a shader module.
type ShaderModuleDesc struct {
	// Label is an optional debug label.
	Label string

	// WGSL is the WGSL source code.
	WGSL string
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Visibility is the set of stages that can access the binding.
	Visibility ShaderStages

	// Type is the type of resource bound at this index.
	Type BindingType

	// MinBindingSize is the minimum buffer size for buffer bindings.
	MinBindingSize uint64
}

// PushConstantRange declares a block of push constants visible to
// the given stages.
type PushConstantRange struct {
	Stages ShaderStages
	Size   uint32
}

// PipelineLayoutDesc describes a pipeline layout.
type PipelineLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// BindGroupLayouts are the layouts for groups 0..n-1.
	BindGroupLayouts []BindGroupLayoutID

	// PushConstants lists the push constant blocks.
	PushConstants []PushConstantRange
}

// BindGroupEntry describes a single binding in a bind group.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind.
	Buffer BufferID

	// Offset is the offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer from offset.
	Size uint64
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the bind group layout.
	Layout BindGroupLayoutID

	// Entries are the resource bindings.
	Entries []BindGroupEntry
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// ShaderModule contains the compute shader.
	ShaderModule ShaderModuleID

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string
}

// VertexAttribute describes one float vector attribute in a vertex buffer.
type VertexAttribute struct {
	// Location is the shader input location.
	Location uint32

	// Offset is the byte offset within one vertex.
	Offset uint64

	// Components is the number of float32 components (1..4).
	Components uint32
}

// VertexBufferLayout describes one vertex buffer slot.
type VertexBufferLayout struct {
	Stride     uint64
	Attributes []VertexAttribute
}

// RenderPipelineDesc describes a render pipeline.
type RenderPipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// ShaderModule holds both the vertex and fragment entry points.
	ShaderModule ShaderModuleID

	// VertexEntryPoint and FragmentEntryPoint name the shader functions.
	VertexEntryPoint   string
	FragmentEntryPoint string

	// VertexBuffers describes the vertex input slots.
	VertexBuffers []VertexBufferLayout

	// Format is the colour target format.
	Format TextureFormat

	// Viewport is baked into the pipeline; a new extent needs a new pipeline.
	Viewport Extent
}
