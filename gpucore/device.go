package gpucore

import "context"

// Device abstracts a logical GPU device with one compute queue and one
// graphics/present queue.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use by the GPU is undefined behavior;
//     callers drain with Wait or WaitIdle first
//   - IDs become invalid after destruction and are never reused
//
// Device methods are called from the frame loop goroutine only.
type Device interface {
	// Capabilities reports device limits relevant to the scheduler.
	Capabilities() Capabilities

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer writes host data into a host-visible buffer.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer downloads buffer contents for diagnostics.
	// It blocks until all prior work touching the buffer has completed.
	ReadBuffer(ctx context.Context, id BufferID, offset, size uint64) ([]byte, error)

	// === Shaders and Pipelines ===

	// CreateShaderModule creates a shader module from WGSL source.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout.
	CreatePipelineLayout(desc *PipelineLayoutDesc) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateRenderPipeline creates a render pipeline.
	CreateRenderPipeline(desc *RenderPipelineDesc) (RenderPipelineID, error)

	// DestroyRenderPipeline releases a render pipeline.
	DestroyRenderPipeline(id RenderPipelineID)

	// CreateBindGroup creates a bind group.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command Recording and Execution ===

	// CreateCommandBuffer records list into a command buffer that can be
	// submitted repeatedly. The list is validated first.
	CreateCommandBuffer(list *CommandList) (CommandBufferID, error)

	// DestroyCommandBuffer releases a command buffer.
	DestroyCommandBuffer(id CommandBufferID)

	// Queue returns the queue of the given kind.
	Queue(kind QueueKind) Queue

	// Wait blocks until f has completed. There is no timeout; ctx is the
	// only way to abandon the wait.
	Wait(ctx context.Context, f Future) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Release destroys the device. All other resources must be
	// destroyed first.
	Release()
}

// Queue submits command buffers.
type Queue interface {
	// Kind reports which queue this is.
	Kind() QueueKind

	// Submit executes info.Commands after every future in info.WaitFor
	// has completed and, when info.Present is set, presents the image
	// afterwards. The returned future completes when the commands have
	// executed.
	//
	// A stale swapchain detected while presenting is reported as
	// ErrOutOfDate or ErrSuboptimal. In that case the commands were still
	// submitted and the returned future is valid for them.
	Submit(info *SubmitInfo) (Future, error)
}

// SubmitInfo is a single submission with an explicit dependency list.
type SubmitInfo struct {
	Commands []CommandBufferID
	WaitFor  []Future
	Present  *PresentInfo
}

// PresentInfo chains a present of one swapchain image after a submission.
type PresentInfo struct {
	Surface Surface
	Image   uint32
}

// Capabilities describes device limits.
type Capabilities struct {
	// MaxBufferSize is the maximum buffer size in bytes.
	MaxBufferSize uint64

	// MaxStorageBufferBindingSize is the maximum storage binding size.
	MaxStorageBufferBindingSize uint64

	// MaxComputeWorkgroupsPerDimension bounds each dispatch dimension.
	MaxComputeWorkgroupsPerDimension uint32

	// SeparateQueues reports whether compute and graphics submissions
	// run on distinct hardware queues.
	SeparateQueues bool
}

// Surface is a presentable window surface.
type Surface interface {
	// Capabilities reports what the surface supports on the device.
	Capabilities() (SurfaceCapabilities, error)

	// Configure (re)creates the swapchain and returns one framebuffer
	// view per swap image. Views from a previous configuration become
	// invalid. A zero or momentarily unsupported extent yields
	// ErrTransientExtent and leaves the previous configuration intact.
	Configure(cfg *SurfaceConfig) ([]TextureViewID, error)

	// Acquire blocks until a swap image is available and returns its
	// index. A stale swapchain yields ErrOutOfDate.
	Acquire(ctx context.Context) (AcquiredImage, error)

	// Unconfigure releases the swapchain images.
	Unconfigure()
}

// SurfaceCapabilities is the result of surface capability negotiation.
type SurfaceCapabilities struct {
	// MinImageCount and MaxImageCount bound the swapchain length.
	// MaxImageCount 0 means unbounded.
	MinImageCount uint32
	MaxImageCount uint32

	// CurrentExtent is the surface size when the platform dictates it.
	// A zero extent means the window size decides.
	CurrentExtent Extent

	// MinExtent and MaxExtent bound the configurable extent.
	MinExtent Extent
	MaxExtent Extent

	// Formats lists supported image formats, preferred first.
	Formats []TextureFormat

	// PresentModes lists supported present modes. Fifo is always present.
	PresentModes []PresentMode
}

// SurfaceConfig configures a swapchain.
type SurfaceConfig struct {
	Extent      Extent
	ImageCount  uint32
	Format      TextureFormat
	PresentMode PresentMode
}

// AcquiredImage is the result of a successful acquire.
type AcquiredImage struct {
	// Index is the swap image index.
	Index uint32

	// Suboptimal reports that the swapchain no longer matches the
	// surface exactly. The image is still valid for this frame.
	Suboptimal bool

	// Ready completes when the image may be rendered to.
	Ready Future
}
